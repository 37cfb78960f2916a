package stage

import (
	"fmt"
	"strings"

	"scriptreel/internal/queue"
	"scriptreel/internal/roster"
	"scriptreel/internal/script"
)

// PlanOptions tune PlanAssets.
type PlanOptions struct {
	// Sound plans sound effect and music assets for scene sound cues.
	Sound bool
}

// PlanAssets returns the asset rows a generation needs for scenes. Dialogue
// audio and scene videos are required; stills, portraits and sound cues are
// optional.
func PlanAssets(scenes []script.Scene, cast roster.Roster, opts PlanOptions) []*queue.Asset {
	var (
		audio     []*queue.Asset
		images    []*queue.Asset
		videos    []*queue.Asset
		portraits = map[string]bool{}
	)
	for _, sc := range scenes {
		number := sc.Number
		for i, line := range sc.Dialogues {
			audio = append(audio, dialogueAsset(sc, i, line, cast))
			if line.Character == script.Narrator {
				continue
			}
			key := strings.ToLower(line.Character)
			if portraits[key] {
				continue
			}
			portraits[key] = true
			images = append(images, portraitAsset(line.Character, cast))
		}
		if opts.Sound {
			for _, cue := range sc.SoundCues {
				category := queue.CategorySoundEffect
				if cue.Kind == script.SoundMusic {
					category = queue.CategoryBackgroundMusic
				}
				audio = append(audio, &queue.Asset{
					Kind:             queue.KindAudio,
					Category:         category,
					OwnerSceneNumber: intPtr(number),
					SceneID:          sc.Key(),
					Description:      cue.Description,
					Prompt:           cue.Description,
				})
			}
		}
		images = append(images, &queue.Asset{
			Kind:             queue.KindImage,
			Category:         queue.CategoryScene,
			OwnerSceneNumber: intPtr(number),
			SceneID:          sc.Key(),
			Description:      sceneDescription(sc),
			Prompt:           scenePrompt(sc, cast),
		})
		videos = append(videos, &queue.Asset{
			Kind:             queue.KindVideo,
			Category:         queue.CategoryScene,
			OwnerSceneNumber: intPtr(number),
			SceneID:          sc.Key(),
			Character:        sc.PrimaryCharacter(),
			Description:      sceneDescription(sc),
			Prompt:           videoPrompt(sc, cast),
			Required:         true,
		})
	}
	out := make([]*queue.Asset, 0, len(audio)+len(images)+len(videos))
	out = append(out, audio...)
	out = append(out, images...)
	return append(out, videos...)
}

func dialogueAsset(sc script.Scene, index int, line script.DialogueLine, cast roster.Roster) *queue.Asset {
	a := &queue.Asset{
		Kind:             queue.KindAudio,
		Category:         queue.CategoryCharacter,
		OwnerSceneNumber: intPtr(sc.Number),
		SceneID:          sc.Key(),
		Character:        line.Character,
		Description:      line.Text,
		Prompt:           line.Text,
		Required:         true,
		Metadata:         map[string]any{"line": index + 1},
	}
	if line.Character == script.Narrator {
		a.Category = queue.CategoryNarrator
	}
	if c, ok := cast.Resolve(line.Character); ok {
		if c.VoiceID != "" {
			a.Metadata[MetaVoiceID] = c.VoiceID
		}
		if c.Emotion != "" {
			a.Metadata[MetaEmotion] = c.Emotion
		}
	}
	if line.Parenthetical != "" {
		a.Metadata[MetaEmotion] = line.Parenthetical
	}
	return a
}

func portraitAsset(name string, cast roster.Roster) *queue.Asset {
	a := &queue.Asset{
		Kind:        queue.KindImage,
		Category:    queue.CategoryCharacter,
		Character:   name,
		Description: "portrait of " + name,
		Prompt:      "Character portrait of " + name,
		Metadata:    map[string]any{},
	}
	if c, ok := cast.Resolve(name); ok {
		if c.Description != "" {
			a.Prompt = fmt.Sprintf("Character portrait of %s, %s", name, c.Description)
		}
		if c.ImageStyle != "" {
			a.Metadata[MetaImageStyle] = c.ImageStyle
		}
	}
	return a
}

// sceneDescription is the reuse key of a scene's visuals. It stays empty
// when the script gives the scene neither action text nor a heading beyond
// a bare "SCENE n" marker, which keeps the scene out of the cross-generation
// lookup.
func sceneDescription(sc script.Scene) string {
	if d := strings.TrimSpace(sc.Description); d != "" {
		return d
	}
	h := strings.TrimSpace(sc.Heading)
	if _, marker := script.ParseSceneID(h); marker {
		return ""
	}
	return h
}

func scenePrompt(sc script.Scene, cast roster.Roster) string {
	parts := []string{}
	if h := strings.TrimSpace(sc.Heading); h != "" {
		parts = append(parts, h)
	}
	if d := strings.TrimSpace(sc.Description); d != "" {
		parts = append(parts, d)
	}
	if chars := castDescriptions(sc, cast); chars != "" {
		parts = append(parts, "Featuring "+chars)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Scene %d", sc.Number)
	}
	return strings.Join(parts, ". ")
}

func videoPrompt(sc script.Scene, cast roster.Roster) string {
	prompt := scenePrompt(sc, cast)
	if len(sc.CameraMovements) > 0 {
		prompt += ". Camera: " + strings.Join(sc.CameraMovements, ", ")
	}
	if len(sc.CharacterActions) > 0 {
		actions := make([]string, 0, len(sc.CharacterActions))
		for _, a := range sc.CharacterActions {
			actions = append(actions, a.Character+" "+a.Action)
		}
		prompt += ". Action: " + strings.Join(actions, "; ")
	}
	return prompt
}

func castDescriptions(sc script.Scene, cast roster.Roster) string {
	var out []string
	for _, name := range sc.Speakers() {
		if name == script.Narrator {
			continue
		}
		if c, ok := cast.Resolve(name); ok && c.Description != "" {
			out = append(out, name+" ("+c.Description+")")
			continue
		}
		out = append(out, name)
	}
	return strings.Join(out, ", ")
}

func intPtr(n int) *int {
	return &n
}
