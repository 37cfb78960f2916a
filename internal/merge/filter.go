package merge

import (
	"fmt"
	"strconv"
	"strings"

	"scriptreel/internal/queue"
)

const (
	sampleRate = 48000
	frameRate  = 24
)

// MixInput is a resolved audio layer ready for ffmpeg.
type MixInput struct {
	Layer  Layer
	Path   string
	Offset float64
}

// DialogueOffsets returns the start time of each line when lines play back
// to back with gap seconds between them.
func DialogueOffsets(durations []float64, gap float64) []float64 {
	out := make([]float64, len(durations))
	at := 0.0
	for i, d := range durations {
		out[i] = at
		if d < 0 {
			d = 0
		}
		at += d + gap
	}
	return out
}

// SegmentDuration is the longer of the video and the dialogue run. A segment
// with neither lasts clip seconds.
func SegmentDuration(video float64, durations []float64, gap, clip float64) float64 {
	spoken := 0.0
	for i, d := range durations {
		if d > 0 {
			spoken += d
		}
		if i > 0 {
			spoken += gap
		}
	}
	d := max(video, spoken)
	if d <= 0 {
		d = clip
	}
	return d
}

// clampFades keeps fade-in plus fade-out within the segment.
func clampFades(duration, in, out float64) (float64, float64) {
	if in < 0 {
		in = 0
	}
	if out < 0 {
		out = 0
	}
	if total := in + out; total > duration && total > 0 {
		scale := duration / total
		in, out = in*scale, out*scale
	}
	return in, out
}

func seconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// MixFilter builds the filter graph that layers inputs into [aout]. Inputs
// are mixed in the order given; spoken layers are delayed to their offsets.
func MixFilter(inputs []MixInput, duration, fadeIn, fadeOut float64) string {
	fadeIn, fadeOut = clampFades(duration, fadeIn, fadeOut)
	var chains []string
	labels := make([]string, 0, len(inputs))
	for i, in := range inputs {
		chain := fmt.Sprintf("[%d:a]aformat=sample_rates=%d:channel_layouts=stereo,volume=%s", i, sampleRate, seconds(in.Layer.Volume))
		if ms := int64(in.Offset * 1000); ms > 0 {
			chain += fmt.Sprintf(",adelay=%d|%d", ms, ms)
		}
		label := fmt.Sprintf("[a%d]", i)
		chains = append(chains, chain+label)
		labels = append(labels, label)
	}

	tail := fmt.Sprintf("apad,atrim=0:%s", seconds(duration))
	if fadeIn > 0 {
		tail += fmt.Sprintf(",afade=t=in:st=0:d=%s", seconds(fadeIn))
	}
	if fadeOut > 0 {
		tail += fmt.Sprintf(",afade=t=out:st=%s:d=%s", seconds(duration-fadeOut), seconds(fadeOut))
	}

	if len(inputs) == 0 {
		return fmt.Sprintf("[0:a]%s[aout]", tail)
	}
	mix := fmt.Sprintf("%samix=inputs=%d:duration=longest:dropout_transition=0:normalize=0,%s[aout]",
		strings.Join(labels, ""), len(inputs), tail)
	return strings.Join(append(chains, mix), ";")
}

// MixArgs returns the ffmpeg arguments rendering a scene's audio to out.
func MixArgs(inputs []MixInput, duration, fadeIn, fadeOut float64, bitrate, out string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if len(inputs) == 0 {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", sampleRate))
	}
	for _, in := range inputs {
		args = append(args, "-i", in.Path)
	}
	return append(args,
		"-filter_complex", MixFilter(inputs, duration, fadeIn, fadeOut),
		"-map", "[aout]",
		"-t", seconds(duration),
		"-c:a", "aac",
		"-b:a", bitrate,
		out,
	)
}

// SceneSource is the visual input of a rendered scene. Both empty means a
// black frame.
type SceneSource struct {
	Video string
	Image string
}

// VideoFilter scales and pads the visual input to the profile and applies
// the segment fades.
func VideoFilter(profile queue.TierProfile, duration, fadeIn, fadeOut float64) string {
	fadeIn, fadeOut = clampFades(duration, fadeIn, fadeOut)
	w, h := profile.Width, profile.Height
	chain := fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d,tpad=stop_mode=clone:stop_duration=%s,trim=duration=%s",
		w, h, w, h, frameRate, seconds(duration), seconds(duration))
	if fadeIn > 0 {
		chain += fmt.Sprintf(",fade=t=in:st=0:d=%s", seconds(fadeIn))
	}
	if fadeOut > 0 {
		chain += fmt.Sprintf(",fade=t=out:st=%s:d=%s", seconds(duration-fadeOut), seconds(fadeOut))
	}
	return chain + "[vout]"
}

// SceneArgs returns the ffmpeg arguments rendering one scene clip from its
// visual source and mixed audio.
func SceneArgs(src SceneSource, audio string, profile queue.TierProfile, duration, fadeIn, fadeOut float64, out string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	switch {
	case strings.TrimSpace(src.Video) != "":
		args = append(args, "-i", src.Video)
	case strings.TrimSpace(src.Image) != "":
		args = append(args, "-loop", "1", "-framerate", strconv.Itoa(frameRate), "-t", seconds(duration), "-i", src.Image)
	default:
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d", profile.Width, profile.Height, frameRate))
	}
	return append(args,
		"-i", audio,
		"-filter_complex", VideoFilter(profile, duration, fadeIn, fadeOut),
		"-map", "[vout]",
		"-map", "1:a",
		"-t", seconds(duration),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", strconv.Itoa(profile.CRF),
		"-maxrate", profile.VideoBitrate,
		"-bufsize", profile.VideoBitrate,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", profile.AudioBitrate,
		"-ar", strconv.Itoa(sampleRate),
		"-movflags", "+faststart",
		out,
	)
}

// ConcatList renders the concat demuxer list for clips.
func ConcatList(clips []string) string {
	var b strings.Builder
	for _, clip := range clips {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(clip, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// ConcatArgs returns the ffmpeg arguments joining the clips in list into out.
// Every clip shares one encoding profile, so streams are copied.
func ConcatArgs(list, out string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", list,
		"-c", "copy",
		"-movflags", "+faststart",
		out,
	}
}
