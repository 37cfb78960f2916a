// Package mapper assigns completed audio assets to the scenes they belong to.
package mapper

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"scriptreel/internal/queue"
	"scriptreel/internal/script"
	"scriptreel/internal/services"
)

// UnmappedKey is the JSON key holding audio with no resolvable scene.
const UnmappedKey = "unmapped"

// metadataSceneKeys are consulted in order when an asset has neither a
// scene id nor an owner scene number.
var metadataSceneKeys = []string{"scene", "scene_number", "sceneNumber"}

// Tracks holds one scene's audio by category. Every list is non-nil.
type Tracks struct {
	Narrator        []*queue.Asset `json:"narrator"`
	Characters      []*queue.Asset `json:"characters"`
	SoundEffects    []*queue.Asset `json:"sound_effects"`
	BackgroundMusic []*queue.Asset `json:"background_music"`
}

// NewTracks returns Tracks with four empty lists.
func NewTracks() Tracks {
	return Tracks{
		Narrator:        []*queue.Asset{},
		Characters:      []*queue.Asset{},
		SoundEffects:    []*queue.Asset{},
		BackgroundMusic: []*queue.Asset{},
	}
}

// Category returns the list for an asset category.
func (t Tracks) Category(category string) []*queue.Asset {
	switch category {
	case queue.CategoryNarrator:
		return t.Narrator
	case queue.CategoryCharacter:
		return t.Characters
	case queue.CategorySoundEffect:
		return t.SoundEffects
	case queue.CategoryBackgroundMusic:
		return t.BackgroundMusic
	}
	return nil
}

// Len counts every track in t.
func (t Tracks) Len() int {
	return len(t.Narrator) + len(t.Characters) + len(t.SoundEffects) + len(t.BackgroundMusic)
}

func (t *Tracks) add(category string, a *queue.Asset) {
	switch category {
	case queue.CategoryNarrator:
		t.Narrator = append(t.Narrator, a)
	case queue.CategorySoundEffect:
		t.SoundEffects = append(t.SoundEffects, a)
	case queue.CategoryBackgroundMusic:
		t.BackgroundMusic = append(t.BackgroundMusic, a)
	default:
		t.Characters = append(t.Characters, a)
	}
}

func (t *Tracks) sort() {
	for _, list := range [][]*queue.Asset{t.Narrator, t.Characters, t.SoundEffects, t.BackgroundMusic} {
		sort.SliceStable(list, func(i, j int) bool {
			li, lj := lineOf(list[i]), lineOf(list[j])
			if li != lj {
				return li < lj
			}
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
	}
}

// Gap records an audio asset whose scene could not be resolved, or whose
// category is unknown.
type Gap struct {
	AssetID  string
	Category string
	Reason   string
}

// Err returns the gap as an ErrMappingGap error.
func (g Gap) Err() error {
	return services.Wrap(services.ErrMappingGap, "mapper", "map", fmt.Sprintf("asset %s (%s): %s", g.AssetID, g.Category, g.Reason), nil)
}

// SceneAudioTracks is the mapper output.
type SceneAudioTracks struct {
	Scenes   map[int]Tracks
	Unmapped Tracks
	Gaps     []Gap
}

// Scene returns the tracks of scene number, or empty tracks.
func (s SceneAudioTracks) Scene(number int) Tracks {
	if t, ok := s.Scenes[number]; ok {
		return t
	}
	return NewTracks()
}

// Numbers returns the mapped scene numbers in ascending order.
func (s SceneAudioTracks) Numbers() []int {
	out := make([]int, 0, len(s.Scenes))
	for n := range s.Scenes {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON renders scenes under their canonical keys ("scene_2") next to
// the unmapped entry.
func (s SceneAudioTracks) MarshalJSON() ([]byte, error) {
	out := make(map[string]Tracks, len(s.Scenes)+1)
	for n, t := range s.Scenes {
		out[script.SceneKey(n)] = t
	}
	out[UnmappedKey] = s.Unmapped
	return json.Marshal(out)
}

// Map groups completed audio by scene. Every scene present in sceneVideos
// gets an entry, and audio for scenes without a video keeps its own entry.
// Assets that are not completed are ignored, and so are imported clips that
// a planned line already reuses: the line carries the clip into the mix.
func Map(audioByCategory map[string][]*queue.Asset, sceneVideos []*queue.Asset) SceneAudioTracks {
	out := SceneAudioTracks{Scenes: map[int]Tracks{}, Unmapped: NewTracks()}
	consumed := consumedImports(audioByCategory)
	for _, v := range sceneVideos {
		if n, ok := SceneOf(v); ok {
			if _, exists := out.Scenes[n]; !exists {
				out.Scenes[n] = NewTracks()
			}
		}
	}

	categories := make([]string, 0, len(audioByCategory))
	for category := range audioByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		known := isAudioCategory(category)
		for _, a := range audioByCategory[category] {
			if a == nil || a.Status != queue.AssetCompleted || consumed[a.ID] {
				continue
			}
			if !known {
				out.Gaps = append(out.Gaps, Gap{AssetID: a.ID, Category: category, Reason: "unknown audio category"})
				out.Unmapped.add(category, a)
				continue
			}
			n, ok := SceneOf(a)
			if !ok {
				out.Gaps = append(out.Gaps, Gap{AssetID: a.ID, Category: category, Reason: "no scene id or scene metadata"})
				out.Unmapped.add(category, a)
				continue
			}
			t, exists := out.Scenes[n]
			if !exists {
				t = NewTracks()
			}
			t.add(category, a)
			out.Scenes[n] = t
		}
	}

	for n, t := range out.Scenes {
		t.sort()
		out.Scenes[n] = t
	}
	out.Unmapped.sort()
	return out
}

// consumedImports returns the ids of imported audio that a completed asset
// in the set lists as its reuse source.
func consumedImports(audioByCategory map[string][]*queue.Asset) map[string]bool {
	imported := map[string]bool{}
	for _, list := range audioByCategory {
		for _, a := range list {
			if a != nil && a.Source == queue.SourceImported {
				imported[a.ID] = true
			}
		}
	}
	consumed := map[string]bool{}
	for _, list := range audioByCategory {
		for _, a := range list {
			if a != nil && a.Status == queue.AssetCompleted && imported[a.ReusedFrom] {
				consumed[a.ReusedFrom] = true
			}
		}
	}
	return consumed
}

// GroupByCategory buckets audio assets by their category.
func GroupByCategory(assets []*queue.Asset) map[string][]*queue.Asset {
	out := map[string][]*queue.Asset{}
	for _, a := range assets {
		if a == nil || a.Kind != queue.KindAudio {
			continue
		}
		out[a.Category] = append(out[a.Category], a)
	}
	return out
}

// SceneOf resolves the scene an asset belongs to. The top-level scene id
// wins over the owner scene number, which wins over metadata.
func SceneOf(a *queue.Asset) (int, bool) {
	if a == nil {
		return 0, false
	}
	if n, ok := script.ParseSceneID(a.SceneID); ok {
		return n, true
	}
	if a.OwnerSceneNumber != nil && *a.OwnerSceneNumber > 0 {
		return *a.OwnerSceneNumber, true
	}
	for _, key := range metadataSceneKeys {
		if n, ok := sceneNumberValue(a.Metadata[key]); ok {
			return n, true
		}
	}
	return 0, false
}

func sceneNumberValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0
	case float64:
		if n <= 0 || n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil && i > 0
	case string:
		return script.ParseSceneID(strings.TrimSpace(n))
	}
	return 0, false
}

func lineOf(a *queue.Asset) int {
	if a.Metadata == nil {
		return 0
	}
	switch v := a.Metadata["line"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func isAudioCategory(category string) bool {
	for _, c := range queue.AudioCategories {
		if c == category {
			return true
		}
	}
	return false
}
