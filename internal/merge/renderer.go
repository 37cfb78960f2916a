package merge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"scriptreel/internal/capability"
	"scriptreel/internal/queue"
)

// SceneAudio is a mixed scene soundtrack on local disk.
type SceneAudio struct {
	Path     string
	Duration float64
}

// Renderer performs the media work of a merge.
type Renderer interface {
	// MixScene layers a segment's audio into one track under dir.
	MixScene(ctx context.Context, seg Segment, profile queue.TierProfile, dir string) (SceneAudio, error)
	// RenderScene encodes the segment's visuals with its mixed audio to out.
	RenderScene(ctx context.Context, seg Segment, audio SceneAudio, profile queue.TierProfile, out string) error
	// Concatenate joins rendered clips, in order, into out.
	Concatenate(ctx context.Context, clips []string, out string) error
}

type commandRunner func(ctx context.Context, name string, args ...string) error

type prober func(ctx context.Context, binary, input string) (float64, error)

// FFmpegRenderer shells out to ffmpeg and ffprobe.
type FFmpegRenderer struct {
	ffmpeg  string
	ffprobe string
	gap     float64
	run     commandRunner
	probe   prober
}

// RendererOption customizes an FFmpegRenderer.
type RendererOption func(*FFmpegRenderer)

// WithCommandRunner replaces command execution, mainly for tests.
func WithCommandRunner(run func(ctx context.Context, name string, args ...string) error) RendererOption {
	return func(r *FFmpegRenderer) {
		if run != nil {
			r.run = run
		}
	}
}

// WithProber replaces duration probing, mainly for tests.
func WithProber(probe func(ctx context.Context, binary, input string) (float64, error)) RendererOption {
	return func(r *FFmpegRenderer) {
		if probe != nil {
			r.probe = probe
		}
	}
}

// WithDialogueGap sets the silence between consecutive lines.
func WithDialogueGap(gap float64) RendererOption {
	return func(r *FFmpegRenderer) {
		if gap >= 0 {
			r.gap = gap
		}
	}
}

// NewFFmpegRenderer builds a renderer for the ffmpeg binary. ffprobe is
// looked up next to it.
func NewFFmpegRenderer(ffmpeg string, opts ...RendererOption) *FFmpegRenderer {
	ffmpeg = strings.TrimSpace(ffmpeg)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	r := &FFmpegRenderer{
		ffmpeg:  ffmpeg,
		ffprobe: siblingBinary(ffmpeg, "ffprobe"),
		gap:     DefaultOptions().DialogueGap,
		run:     runCommand,
		probe:   ProbeDuration,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func siblingBinary(ffmpeg, name string) string {
	if dir := filepath.Dir(ffmpeg); dir != "." && strings.ContainsRune(ffmpeg, filepath.Separator) {
		return filepath.Join(dir, name)
	}
	return name
}

// MixScene implements Renderer.
func (r *FFmpegRenderer) MixScene(ctx context.Context, seg Segment, profile queue.TierProfile, dir string) (SceneAudio, error) {
	durations := make([]float64, len(seg.Dialogue))
	offsets := map[string]float64{}
	for i, line := range seg.Dialogue {
		durations[i] = line.Duration
		if durations[i] <= 0 {
			d, err := r.probe(ctx, r.ffprobe, inputOf(line.URL))
			if err != nil {
				return SceneAudio{}, fmt.Errorf("probe line %s: %w", line.AssetID, err)
			}
			durations[i] = d
		}
	}
	for i, at := range DialogueOffsets(durations, r.gap) {
		offsets[seg.Dialogue[i].AssetID] = at
	}

	video := 0.0
	if !seg.AudioOnly() {
		d, err := r.probe(ctx, r.ffprobe, inputOf(seg.VideoURL))
		if err != nil {
			return SceneAudio{}, fmt.Errorf("probe %s video: %w", seg.Key(), err)
		}
		video = d
	}
	duration := SegmentDuration(video, durations, r.gap, profile.ClipSeconds)

	inputs := make([]MixInput, 0, len(seg.Layers))
	for _, layer := range seg.Layers {
		in := MixInput{Layer: layer, Path: inputOf(layer.URL)}
		if layer.Dialogue() {
			in.Offset = offsets[layer.AssetID]
		}
		inputs = append(inputs, in)
	}
	out := filepath.Join(dir, seg.Key()+".m4a")
	if err := r.run(ctx, r.ffmpeg, MixArgs(inputs, duration, seg.FadeIn, seg.FadeOut, profile.AudioBitrate, out)...); err != nil {
		return SceneAudio{}, fmt.Errorf("mix %s: %w", seg.Key(), err)
	}
	return SceneAudio{Path: out, Duration: duration}, nil
}

// RenderScene implements Renderer.
func (r *FFmpegRenderer) RenderScene(ctx context.Context, seg Segment, audio SceneAudio, profile queue.TierProfile, out string) error {
	src := SceneSource{Video: inputOf(seg.VideoURL), Image: inputOf(seg.ImageURL)}
	args := SceneArgs(src, audio.Path, profile, audio.Duration, seg.FadeIn, seg.FadeOut, out)
	if err := r.run(ctx, r.ffmpeg, args...); err != nil {
		return fmt.Errorf("render %s: %w", seg.Key(), err)
	}
	return nil
}

// Concatenate implements Renderer.
func (r *FFmpegRenderer) Concatenate(ctx context.Context, clips []string, out string) error {
	if len(clips) == 0 {
		return fmt.Errorf("concatenate: no clips")
	}
	list := out + ".txt"
	if err := os.WriteFile(list, []byte(ConcatList(clips)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(list)
	if err := r.run(ctx, r.ffmpeg, ConcatArgs(list, out)...); err != nil {
		return fmt.Errorf("concatenate: %w", err)
	}
	return nil
}

// inputOf turns a media URL into an ffmpeg input. Local URLs become paths;
// remote URLs are read by ffmpeg directly.
func inputOf(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	if path, ok := capability.LocalPath(url); ok {
		return path
	}
	return url
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
