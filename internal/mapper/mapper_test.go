package mapper_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptreel/internal/mapper"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
	"scriptreel/internal/testsupport"
)

func audio(id, category string) *queue.Asset {
	return &queue.Asset{ID: id, Kind: queue.KindAudio, Category: category, Status: queue.AssetCompleted, URL: "file:///" + id, Metadata: map[string]any{}}
}

func video(scene int) *queue.Asset {
	return &queue.Asset{Kind: queue.KindVideo, Category: queue.CategoryScene, OwnerSceneNumber: testsupport.SceneNumber(scene), Status: queue.AssetCompleted}
}

func TestSceneIDBeatsMetadata(t *testing.T) {
	a := audio("line", queue.CategoryCharacter)
	a.SceneID = "scene_2"
	a.Metadata["scene"] = 1

	out := mapper.Map(map[string][]*queue.Asset{queue.CategoryCharacter: {a}}, []*queue.Asset{video(1), video(2)})

	require.Len(t, out.Scene(2).Characters, 1)
	assert.Equal(t, "line", out.Scene(2).Characters[0].ID)
	assert.Empty(t, out.Scene(1).Characters)
	assert.Empty(t, out.Gaps)
}

func TestSceneResolutionOrder(t *testing.T) {
	owner := audio("owner", queue.CategoryNarrator)
	owner.OwnerSceneNumber = testsupport.SceneNumber(3)
	owner.Metadata["scene_number"] = 1

	meta := audio("meta", queue.CategoryNarrator)
	meta.Metadata["sceneNumber"] = "Scene 4"

	floaty := audio("float", queue.CategoryNarrator)
	floaty.Metadata["scene"] = float64(5)

	bad := audio("bad", queue.CategoryNarrator)
	bad.SceneID = "intro"
	bad.Metadata["scene_number"] = 6

	for _, tc := range []struct {
		asset *queue.Asset
		want  int
	}{{owner, 3}, {meta, 4}, {floaty, 5}, {bad, 6}} {
		n, ok := mapper.SceneOf(tc.asset)
		require.True(t, ok, tc.asset.ID)
		assert.Equal(t, tc.want, n, tc.asset.ID)
	}
}

func TestEveryEntryHasFourLists(t *testing.T) {
	music := audio("music", queue.CategoryBackgroundMusic)
	music.SceneID = "7"
	out := mapper.Map(map[string][]*queue.Asset{queue.CategoryBackgroundMusic: {music}}, []*queue.Asset{video(1), video(2)})

	assert.Equal(t, []int{1, 2, 7}, out.Numbers())
	for _, n := range out.Numbers() {
		tr := out.Scene(n)
		assert.NotNil(t, tr.Narrator)
		assert.NotNil(t, tr.Characters)
		assert.NotNil(t, tr.SoundEffects)
		assert.NotNil(t, tr.BackgroundMusic)
	}

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded, "unmapped")
	require.Contains(t, decoded, "scene_7")
	for key, entry := range decoded {
		assert.Len(t, entry, 4, key)
		for category, list := range entry {
			assert.NotEqual(t, "null", string(list), key+"."+category)
		}
	}
}

func TestAudioWithoutVideoIsKept(t *testing.T) {
	a := audio("orphan", queue.CategoryCharacter)
	a.OwnerSceneNumber = testsupport.SceneNumber(9)
	out := mapper.Map(map[string][]*queue.Asset{queue.CategoryCharacter: {a}}, []*queue.Asset{video(1)})
	require.Len(t, out.Scene(9).Characters, 1)
	assert.Equal(t, 1, out.Scene(9).Len())
}

func TestUnresolvableAudioIsUnmapped(t *testing.T) {
	lost := audio("lost", queue.CategorySoundEffect)
	odd := audio("odd", "laugh_track")
	odd.SceneID = "scene_1"

	out := mapper.Map(map[string][]*queue.Asset{
		queue.CategorySoundEffect: {lost},
		"laugh_track":             {odd},
	}, nil)

	require.Len(t, out.Gaps, 2)
	assert.Len(t, out.Unmapped.SoundEffects, 1)
	assert.Len(t, out.Unmapped.Characters, 1)
	assert.Empty(t, out.Scenes)
	for _, gap := range out.Gaps {
		assert.True(t, errors.Is(gap.Err(), services.ErrMappingGap))
	}
}

func TestIncompleteAudioIsIgnoredAndLinesAreOrdered(t *testing.T) {
	second := audio("second", queue.CategoryCharacter)
	second.SceneID = "scene_1"
	second.Metadata["line"] = 2
	first := audio("first", queue.CategoryCharacter)
	first.SceneID = "scene_1"
	first.Metadata["line"] = 1
	failed := audio("failed", queue.CategoryCharacter)
	failed.SceneID = "scene_1"
	failed.Status = queue.AssetFailed

	out := mapper.Map(mapper.GroupByCategory([]*queue.Asset{second, failed, first, video(1)}), nil)
	lines := out.Scene(1).Characters
	require.Len(t, lines, 2)
	assert.Equal(t, "first", lines[0].ID)
	assert.Equal(t, "second", lines[1].ID)
	assert.Same(t, first, out.Scene(1).Category(queue.CategoryCharacter)[0])
}

func TestReusedImportMapsOnce(t *testing.T) {
	imported := audio("import", queue.CategoryCharacter)
	imported.Source, imported.Character, imported.SceneID = queue.SourceImported, "Alice", "scene_1"
	line := audio("line", queue.CategoryCharacter)
	line.Character, line.SceneID = "Alice", "scene_1"
	line.Source, line.ReusedFrom, line.URL = queue.SourceReused, imported.ID, imported.URL
	spare := audio("spare", queue.CategoryCharacter)
	spare.Source, spare.SceneID = queue.SourceImported, "scene_1"

	out := mapper.Map(mapper.GroupByCategory([]*queue.Asset{imported, line, spare}), []*queue.Asset{video(1)})

	ids := []string{}
	for _, a := range out.Scene(1).Characters {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"line", "spare"}, ids)
	assert.Empty(t, out.Gaps)
}
