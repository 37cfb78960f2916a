package script

import "scriptreel/internal/services"

// ElementKind tags the variant carried by an Element.
type ElementKind string

const (
	ElementSceneHeading    ElementKind = "scene_heading"
	ElementSceneMarker     ElementKind = "scene_marker"
	ElementCameraDirection ElementKind = "camera_direction"
	ElementCharacterCue    ElementKind = "character_cue"
	ElementDialogue        ElementKind = "dialogue"
	ElementAction          ElementKind = "action"
	ElementTransition      ElementKind = "transition"
	ElementSoundCue        ElementKind = "sound_cue"
)

// Narrator is the speaker assigned to dialogue whose name is not a known character.
const Narrator = "narrator"

// SoundKind distinguishes sound effect cues from music cues.
type SoundKind string

const (
	SoundEffect SoundKind = "sfx"
	SoundMusic  SoundKind = "music"
)

// Element is one classified unit of the script. Only the fields relevant to
// Kind are populated.
type Element struct {
	Kind          ElementKind `json:"kind"`
	Line          int         `json:"line"`
	Text          string      `json:"text"`
	Character     string      `json:"character,omitempty"`
	Parenthetical string      `json:"parenthetical,omitempty"`
	Extension     string      `json:"extension,omitempty"`
	Movements     []string    `json:"movements,omitempty"`
	SceneNumber   int         `json:"scene_number,omitempty"`
	Location      string      `json:"location,omitempty"`
	TimeOfDay     string      `json:"time_of_day,omitempty"`
	Cue           SoundKind   `json:"cue,omitempty"`
}

// Warning records a line the parser handled by fallback.
type Warning struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Err returns the warning tagged with the ParseAmbiguity marker.
func (w Warning) Err() error {
	return services.Wrap(services.ErrParseAmbiguity, "script", "parse", w.Reason, nil)
}

// ParsedScript is the ordered element stream produced by Parse.
type ParsedScript struct {
	Elements   []Element `json:"elements"`
	Characters []string  `json:"characters"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

// DialogueLine is a single attributed line of speech.
type DialogueLine struct {
	Character     string `json:"character"`
	Text          string `json:"text"`
	SceneNumber   int    `json:"scene_number"`
	Parenthetical string `json:"parenthetical,omitempty"`
	Line          int    `json:"line"`
}

// CharacterAction is a parenthetical or prose action attached to a character.
type CharacterAction struct {
	Character string `json:"character"`
	Action    string `json:"action"`
}

// SoundCue is an SFX or MUSIC direction inside a scene.
type SoundCue struct {
	Kind        SoundKind `json:"kind"`
	Description string    `json:"description"`
}

// Scene is a contiguous run of elements sharing one setting.
type Scene struct {
	Number           int               `json:"scene_number"`
	Heading          string            `json:"heading,omitempty"`
	Description      string            `json:"description"`
	CameraMovements  []string          `json:"camera_movements"`
	CharacterActions []CharacterAction `json:"character_actions"`
	Dialogues        []DialogueLine    `json:"dialogues"`
	TransitionsIn    []string          `json:"transitions_in,omitempty"`
	TransitionsOut   []string          `json:"transitions_out"`
	SoundCues        []SoundCue        `json:"sound_cues,omitempty"`
	StartLine        int               `json:"start_line"`
	EndLine          int               `json:"end_line"`
	Elements         []Element         `json:"elements"`
}

// Speakers returns the distinct speaking characters in order of first line.
func (s Scene) Speakers() []string {
	seen := make(map[string]struct{}, len(s.Dialogues))
	out := make([]string, 0, len(s.Dialogues))
	for _, d := range s.Dialogues {
		if _, ok := seen[d.Character]; ok {
			continue
		}
		seen[d.Character] = struct{}{}
		out = append(out, d.Character)
	}
	return out
}

// PrimaryCharacter returns the first speaking character that is not the narrator.
func (s Scene) PrimaryCharacter() string {
	for _, name := range s.Speakers() {
		if name != Narrator {
			return name
		}
	}
	return ""
}

// Key returns the canonical textual scene identifier, e.g. "scene_3".
func (s Scene) Key() string {
	return SceneKey(s.Number)
}
