package merge

import (
	"sort"
	"strings"

	"scriptreel/internal/config"
	"scriptreel/internal/mapper"
	"scriptreel/internal/queue"
	"scriptreel/internal/script"
	"scriptreel/internal/stage"
)

// Volumes are the mix gains per audio category.
type Volumes struct {
	Music     float64
	SFX       float64
	Character float64
	Narrator  float64
}

// Of returns the gain for an audio category.
func (v Volumes) Of(category string) float64 {
	switch category {
	case queue.CategoryBackgroundMusic:
		return v.Music
	case queue.CategorySoundEffect:
		return v.SFX
	case queue.CategoryNarrator:
		return v.Narrator
	default:
		return v.Character
	}
}

// Options tune a merge plan.
type Options struct {
	AddTransitions bool
	FadeSeconds    float64
	Volumes        Volumes
	// DialogueGap is the silence inserted between consecutive dialogue lines.
	DialogueGap float64
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		FadeSeconds: 0.5,
		Volumes:     Volumes{Music: 0.25, SFX: 0.6, Character: 1, Narrator: 1},
		DialogueGap: 0.25,
	}
}

// OptionsFromConfig builds Options from the merge section.
func OptionsFromConfig(cfg config.Merge) Options {
	opts := DefaultOptions()
	opts.AddTransitions = cfg.AddTransitions
	if cfg.FadeSeconds > 0 {
		opts.FadeSeconds = cfg.FadeSeconds
	}
	opts.Volumes = Volumes{
		Music:     cfg.MusicVolume,
		SFX:       cfg.SFXVolume,
		Character: cfg.CharacterVolume,
		Narrator:  cfg.NarratorVolume,
	}
	return opts
}

// Layer is one audio input of a segment.
type Layer struct {
	Category string
	AssetID  string
	URL      string
	Volume   float64
	// Duration is the known length in seconds, or zero when the renderer
	// must probe it.
	Duration float64
}

// Dialogue reports whether the layer is spoken and therefore sequenced.
func (l Layer) Dialogue() bool {
	return l.Category == queue.CategoryCharacter || l.Category == queue.CategoryNarrator
}

// Segment is one scene of the final cut.
type Segment struct {
	SceneNumber int
	Heading     string
	VideoURL    string
	// ImageURL is the still used when the scene has no video.
	ImageURL          string
	CharacterFallback bool
	// Layers run music, sound effects, character lines, then narration.
	Layers []Layer
	// Dialogue lists the spoken layers in script order.
	Dialogue []Layer
	FadeIn   float64
	FadeOut  float64
}

// AudioOnly reports whether the segment has no scene video.
func (s Segment) AudioOnly() bool { return strings.TrimSpace(s.VideoURL) == "" }

// Key returns the canonical scene key.
func (s Segment) Key() string { return script.SceneKey(s.SceneNumber) }

// Plan is a full render description.
type Plan struct {
	Tier     queue.QualityTier
	Profile  queue.TierProfile
	Segments []Segment
	// Unmapped audio could not be placed in any scene.
	Unmapped int
}

// BuildPlan assembles segments for every scene known to the records, the
// videos or the mapped audio, in ascending scene order.
func BuildPlan(scenes []queue.SceneRecord, videos, images []*queue.Asset, tracks mapper.SceneAudioTracks, tier queue.QualityTier, opts Options) Plan {
	plan := Plan{Tier: tier, Profile: tier.Profile(), Unmapped: tracks.Unmapped.Len()}

	headings := map[int]string{}
	numbers := map[int]struct{}{}
	for _, rec := range scenes {
		numbers[rec.Number] = struct{}{}
		headings[rec.Number] = rec.Heading
	}
	clips := map[int]*queue.Asset{}
	for _, v := range videos {
		n, ok := mapper.SceneOf(v)
		if !ok {
			continue
		}
		numbers[n] = struct{}{}
		if _, seen := clips[n]; !seen || usableVideo(v) && !usableVideo(clips[n]) {
			clips[n] = v
		}
	}
	for _, n := range tracks.Numbers() {
		numbers[n] = struct{}{}
	}

	ordered := make([]int, 0, len(numbers))
	for n := range numbers {
		ordered = append(ordered, n)
	}
	sort.Ints(ordered)

	for i, n := range ordered {
		seg := Segment{SceneNumber: n, Heading: headings[n]}
		character := ""
		if v := clips[n]; v != nil {
			character = v.Character
			if usableVideo(v) {
				seg.VideoURL = v.URL
			}
		}
		if seg.AudioOnly() {
			ref := stage.ChooseReference(images, n, character)
			seg.ImageURL, seg.CharacterFallback = ref.URL, ref.CharacterFallback
		}
		seg.Layers, seg.Dialogue = layersFor(tracks.Scene(n), opts.Volumes)
		if opts.AddTransitions && opts.FadeSeconds > 0 {
			if i > 0 {
				seg.FadeIn = opts.FadeSeconds
			}
			if i < len(ordered)-1 {
				seg.FadeOut = opts.FadeSeconds
			}
		}
		plan.Segments = append(plan.Segments, seg)
	}
	return plan
}

func layersFor(t mapper.Tracks, vol Volumes) ([]Layer, []Layer) {
	var layers []Layer
	for _, category := range queue.AudioCategories {
		for _, a := range t.Category(category) {
			layers = append(layers, layerOf(a, category, vol))
		}
	}
	dialogue := make([]Layer, 0, len(t.Characters)+len(t.Narrator))
	spoken := append(append([]*queue.Asset{}, t.Characters...), t.Narrator...)
	sort.SliceStable(spoken, func(i, j int) bool {
		li, lj := lineNumber(spoken[i]), lineNumber(spoken[j])
		if li != lj {
			return li < lj
		}
		return spoken[i].CreatedAt.Before(spoken[j].CreatedAt)
	})
	for _, a := range spoken {
		dialogue = append(dialogue, layerOf(a, a.Category, vol))
	}
	return layers, dialogue
}

func layerOf(a *queue.Asset, category string, vol Volumes) Layer {
	l := Layer{Category: category, AssetID: a.ID, URL: a.URL, Volume: vol.Of(category)}
	if d, ok := a.Metadata[stage.MetaDuration].(float64); ok && d > 0 {
		l.Duration = d
	}
	return l
}

func lineNumber(a *queue.Asset) int {
	switch v := a.Metadata["line"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func usableVideo(a *queue.Asset) bool {
	return a != nil && a.Status == queue.AssetCompleted && strings.TrimSpace(a.URL) != ""
}
