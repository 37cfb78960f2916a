package merge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptreel/internal/config"
	"scriptreel/internal/mapper"
	"scriptreel/internal/merge"
	"scriptreel/internal/queue"
	"scriptreel/internal/testsupport"
)

func completed(id string, kind queue.AssetKind, category string, scene int) *queue.Asset {
	a := &queue.Asset{
		ID:       id,
		Kind:     kind,
		Category: category,
		Status:   queue.AssetCompleted,
		URL:      "file:///media/" + id,
		Metadata: map[string]any{},
	}
	if scene > 0 {
		a.OwnerSceneNumber = testsupport.SceneNumber(scene)
	}
	return a
}

func samplePlan(t *testing.T, opts merge.Options) merge.Plan {
	t.Helper()
	scenes := []queue.SceneRecord{{Number: 1, Heading: "INT. KITCHEN"}, {Number: 2, Heading: "EXT. YARD"}, {Number: 3}}
	clip := completed("clip1", queue.KindVideo, queue.CategoryScene, 1)
	clip.Character = "Alice"
	failedClip := completed("clip2", queue.KindVideo, queue.CategoryScene, 2)
	failedClip.Status, failedClip.URL, failedClip.Character = queue.AssetFailed, "", "Bob"

	portrait := completed("bob.png", queue.KindImage, queue.CategoryCharacter, 0)
	portrait.Character = "Bob"

	narr := completed("narr", queue.KindAudio, queue.CategoryNarrator, 1)
	narr.Metadata["line"] = 2
	alice := completed("alice", queue.KindAudio, queue.CategoryCharacter, 1)
	alice.Metadata["line"] = 1
	music := completed("music", queue.KindAudio, queue.CategoryBackgroundMusic, 1)
	sfx := completed("sfx", queue.KindAudio, queue.CategorySoundEffect, 1)
	stray := completed("stray", queue.KindAudio, queue.CategoryCharacter, 0)

	tracks := mapper.Map(mapper.GroupByCategory([]*queue.Asset{narr, alice, music, sfx, stray}), []*queue.Asset{clip, failedClip})
	return merge.BuildPlan(scenes, []*queue.Asset{failedClip, clip}, []*queue.Asset{portrait}, tracks, queue.TierPremium, opts)
}

func TestBuildPlanOrdersSegmentsAndLayers(t *testing.T) {
	plan := samplePlan(t, merge.DefaultOptions())

	require.Len(t, plan.Segments, 3)
	assert.Equal(t, 1920, plan.Profile.Width)
	assert.Equal(t, 1, plan.Unmapped)
	for i, seg := range plan.Segments {
		assert.Equal(t, i+1, seg.SceneNumber)
	}

	first := plan.Segments[0]
	assert.Equal(t, "INT. KITCHEN", first.Heading)
	assert.Equal(t, "file:///media/clip1", first.VideoURL)
	assert.False(t, first.AudioOnly())

	var order []string
	for _, l := range first.Layers {
		order = append(order, l.Category)
	}
	assert.Equal(t, []string{queue.CategoryBackgroundMusic, queue.CategorySoundEffect, queue.CategoryCharacter, queue.CategoryNarrator}, order)
	assert.Less(t, first.Layers[0].Volume, first.Layers[2].Volume)

	require.Len(t, first.Dialogue, 2)
	assert.Equal(t, "alice", first.Dialogue[0].AssetID)
	assert.Equal(t, "narr", first.Dialogue[1].AssetID)
}

func TestBuildPlanFallsBackToStills(t *testing.T) {
	plan := samplePlan(t, merge.DefaultOptions())

	second := plan.Segments[1]
	assert.True(t, second.AudioOnly())
	assert.Equal(t, "file:///media/bob.png", second.ImageURL)
	assert.True(t, second.CharacterFallback)

	third := plan.Segments[2]
	assert.True(t, third.AudioOnly())
	assert.Empty(t, third.ImageURL)
	assert.Empty(t, third.Layers)
}

func TestBuildPlanFadesOnlyAtBoundaries(t *testing.T) {
	plain := samplePlan(t, merge.DefaultOptions())
	for _, seg := range plain.Segments {
		assert.Zero(t, seg.FadeIn)
		assert.Zero(t, seg.FadeOut)
	}

	opts := merge.DefaultOptions()
	opts.AddTransitions = true
	opts.FadeSeconds = 0.75
	plan := samplePlan(t, opts)
	assert.Zero(t, plan.Segments[0].FadeIn)
	assert.Equal(t, 0.75, plan.Segments[0].FadeOut)
	assert.Equal(t, 0.75, plan.Segments[1].FadeIn)
	assert.Equal(t, 0.75, plan.Segments[1].FadeOut)
	assert.Equal(t, 0.75, plan.Segments[2].FadeIn)
	assert.Zero(t, plan.Segments[2].FadeOut)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Merge.AddTransitions = true
	cfg.Merge.MusicVolume = 0.1
	opts := merge.OptionsFromConfig(cfg.Merge)
	assert.True(t, opts.AddTransitions)
	assert.Equal(t, 0.1, opts.Volumes.Of(queue.CategoryBackgroundMusic))
	assert.Equal(t, cfg.Merge.NarratorVolume, opts.Volumes.Of(queue.CategoryNarrator))
	assert.Equal(t, cfg.Merge.FadeSeconds, opts.FadeSeconds)
}

func TestBuildPlanPlaysReusedImportOnce(t *testing.T) {
	scenes := []queue.SceneRecord{{Number: 1, Heading: "INT. KITCHEN"}}
	clip := completed("clip1", queue.KindVideo, queue.CategoryScene, 1)

	imported := completed("import", queue.KindAudio, queue.CategoryCharacter, 0)
	imported.Source, imported.Character, imported.URL = queue.SourceImported, "Alice", "https://cdn/alice.mp3"
	line := completed("line", queue.KindAudio, queue.CategoryCharacter, 1)
	line.Character, line.Source, line.ReusedFrom, line.URL = "Alice", queue.SourceReused, imported.ID, imported.URL
	line.Metadata["line"] = 1

	tracks := mapper.Map(mapper.GroupByCategory([]*queue.Asset{imported, line}), []*queue.Asset{clip})
	plan := merge.BuildPlan(scenes, []*queue.Asset{clip}, nil, tracks, queue.TierDraft, merge.DefaultOptions())

	require.Len(t, plan.Segments, 1)
	require.Len(t, plan.Segments[0].Dialogue, 1)
	assert.Equal(t, "line", plan.Segments[0].Dialogue[0].AssetID)
	assert.Equal(t, 0, plan.Unmapped)
}
