package merge_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptreel/internal/merge"
	"scriptreel/internal/queue"
)

func TestDialogueOffsetsAndDuration(t *testing.T) {
	offsets := merge.DialogueOffsets([]float64{2, 1.5, 3}, 0.5)
	assert.Equal(t, []float64{0, 2.5, 4.5}, offsets)
	assert.Equal(t, 7.5, merge.SegmentDuration(0, []float64{2, 1.5, 3}, 0.5, 6))
	assert.Equal(t, 10.0, merge.SegmentDuration(10, []float64{2}, 0.5, 6))
	assert.Equal(t, 6.0, merge.SegmentDuration(0, nil, 0.5, 6))
}

func TestMixFilterLayersInputs(t *testing.T) {
	inputs := []merge.MixInput{
		{Layer: merge.Layer{Category: queue.CategoryBackgroundMusic, Volume: 0.25}, Path: "music.mp3"},
		{Layer: merge.Layer{Category: queue.CategoryCharacter, Volume: 1}, Path: "a.mp3"},
		{Layer: merge.Layer{Category: queue.CategoryNarrator, Volume: 1}, Path: "n.mp3", Offset: 2.5},
	}
	graph := merge.MixFilter(inputs, 8, 0.5, 0.5)

	assert.Contains(t, graph, "[0:a]aformat=sample_rates=48000:channel_layouts=stereo,volume=0.25[a0]")
	assert.Contains(t, graph, "[1:a]aformat=sample_rates=48000:channel_layouts=stereo,volume=1[a1]")
	assert.Contains(t, graph, "adelay=2500|2500[a2]")
	assert.Contains(t, graph, "[a0][a1][a2]amix=inputs=3:duration=longest:dropout_transition=0:normalize=0")
	assert.Contains(t, graph, "atrim=0:8,afade=t=in:st=0:d=0.5,afade=t=out:st=7.5:d=0.5[aout]")

	args := merge.MixArgs(inputs, 8, 0, 0, "160k", "out.m4a")
	assert.Equal(t, "out.m4a", args[len(args)-1])
	assert.Equal(t, 3, strings.Count(strings.Join(args, " "), " -i "))
	assert.NotContains(t, strings.Join(args, " "), "afade")
}

func TestMixFilterSilentScene(t *testing.T) {
	args := merge.MixArgs(nil, 4, 0, 0, "96k", "silent.m4a")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f lavfi -i anullsrc=r=48000:cl=stereo")
	assert.Contains(t, joined, "[0:a]apad,atrim=0:4[aout]")
}

func TestFadesAreClampedToSegment(t *testing.T) {
	graph := merge.VideoFilter(queue.TierDraft.Profile(), 1, 1, 1)
	assert.Contains(t, graph, "fade=t=in:st=0:d=0.5")
	assert.Contains(t, graph, "fade=t=out:st=0.5:d=0.5")
	assert.Contains(t, graph, "scale=854:480")
}

func TestSceneArgsSources(t *testing.T) {
	profile := queue.TierStandard.Profile()

	video := strings.Join(merge.SceneArgs(merge.SceneSource{Video: "clip.mp4"}, "a.m4a", profile, 6, 0, 0, "out.mp4"), " ")
	assert.Contains(t, video, "-i clip.mp4 -i a.m4a")
	assert.Contains(t, video, "-crf 23")
	assert.Contains(t, video, "-maxrate 3M")
	assert.Contains(t, video, "-b:a 160k")

	still := strings.Join(merge.SceneArgs(merge.SceneSource{Image: "still.png"}, "a.m4a", profile, 6, 0, 0, "out.mp4"), " ")
	assert.Contains(t, still, "-loop 1 -framerate 24 -t 6 -i still.png")

	black := strings.Join(merge.SceneArgs(merge.SceneSource{}, "a.m4a", profile, 6, 0, 0, "out.mp4"), " ")
	assert.Contains(t, black, "-f lavfi -i color=c=black:s=1280x720:r=24")
}

func TestConcatList(t *testing.T) {
	list := merge.ConcatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	require.Equal(t, "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n", list)
	args := merge.ConcatArgs("list.txt", "final.mp4")
	assert.Contains(t, strings.Join(args, " "), "-f concat -safe 0 -i list.txt -c copy")
}
