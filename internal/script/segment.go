package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Segmenter groups parsed elements into scenes.
type Segmenter struct {
	// FallbackThreshold caps the dialogue count per scene when the script
	// has no headings, markers or transitions. Zero disables the cap.
	FallbackThreshold int
}

// Segment splits parsed with the default Segmenter.
func Segment(parsed ParsedScript) []Scene {
	return Segmenter{}.Segment(parsed)
}

// Segment returns the ordered scenes of parsed. Input with at least one
// element always yields at least one scene.
func (s Segmenter) Segment(parsed ParsedScript) []Scene {
	if len(parsed.Elements) == 0 {
		return nil
	}
	b := &sceneBuilder{}
	if hasBoundaries(parsed.Elements) {
		b.byBoundaries(parsed.Elements)
	} else {
		b.bySpeaker(parsed.Elements, s.FallbackThreshold)
	}
	return b.finish()
}

func hasBoundaries(elements []Element) bool {
	for _, el := range elements {
		switch el.Kind {
		case ElementSceneHeading, ElementSceneMarker, ElementTransition:
			return true
		}
	}
	return false
}

type sceneBuilder struct {
	scenes  []Scene
	current *Scene
	desc    []string
}

func (b *sceneBuilder) lastNumber() int {
	if b.current != nil {
		return b.current.Number
	}
	return b.closedNumber()
}

// open starts a new scene. A declared number is honoured only when it keeps
// the sequence strictly increasing.
func (b *sceneBuilder) open(declared int) *Scene {
	number := b.lastNumber() + 1
	if declared > b.lastNumber() {
		number = declared
	}
	b.close()
	b.current = &Scene{
		Number:           number,
		CameraMovements:  []string{},
		CharacterActions: []CharacterAction{},
		Dialogues:        []DialogueLine{},
		TransitionsOut:   []string{},
	}
	return b.current
}

func (b *sceneBuilder) close() {
	if b.current == nil {
		return
	}
	b.current.Description = strings.Join(b.desc, " ")
	b.scenes = append(b.scenes, *b.current)
	b.current = nil
	b.desc = nil
}

func (b *sceneBuilder) finish() []Scene {
	b.close()
	return b.scenes
}

// hasContent reports whether the current scene holds anything beyond its
// heading and incoming transitions.
func (b *sceneBuilder) hasContent() bool {
	if b.current == nil {
		return false
	}
	for _, el := range b.current.Elements {
		switch el.Kind {
		case ElementSceneHeading, ElementSceneMarker, ElementTransition:
		default:
			return true
		}
	}
	return false
}

func (b *sceneBuilder) add(el Element) {
	sc := b.current
	if sc == nil {
		sc = b.open(0)
	}
	if len(sc.Elements) == 0 {
		sc.StartLine = el.Line
	}
	if el.Line > sc.EndLine {
		sc.EndLine = el.Line
	}
	sc.Elements = append(sc.Elements, el)

	switch el.Kind {
	case ElementDialogue:
		sc.Dialogues = append(sc.Dialogues, DialogueLine{
			Character:     el.Character,
			Text:          el.Text,
			SceneNumber:   sc.Number,
			Parenthetical: el.Parenthetical,
			Line:          el.Line,
		})
	case ElementAction:
		if el.Character != "" {
			sc.CharacterActions = append(sc.CharacterActions, CharacterAction{Character: el.Character, Action: el.Text})
		} else {
			b.desc = append(b.desc, el.Text)
		}
	case ElementCameraDirection:
		sc.CameraMovements = append(sc.CameraMovements, el.Movements...)
	case ElementSoundCue:
		sc.SoundCues = append(sc.SoundCues, SoundCue{Kind: el.Cue, Description: el.Text})
	}
}

func (b *sceneBuilder) byBoundaries(elements []Element) {
	for _, el := range elements {
		switch el.Kind {
		case ElementSceneHeading, ElementSceneMarker:
			// A scene holding only incoming transitions adopts the heading.
			if b.current != nil && !b.hasContent() && b.current.Heading == "" {
				if el.SceneNumber > b.closedNumber() {
					b.renumber(el.SceneNumber)
				}
			} else {
				b.open(el.SceneNumber)
			}
			b.current.Heading = el.Text
			b.add(el)
		case ElementTransition:
			if !b.hasContent() {
				b.add(el)
				b.current.TransitionsIn = append(b.current.TransitionsIn, el.Text)
				continue
			}
			b.add(el)
			b.current.TransitionsOut = append(b.current.TransitionsOut, el.Text)
			b.close()
		default:
			b.add(el)
		}
	}
}

func (b *sceneBuilder) closedNumber() int {
	if len(b.scenes) == 0 {
		return 0
	}
	return b.scenes[len(b.scenes)-1].Number
}

func (b *sceneBuilder) renumber(number int) {
	b.current.Number = number
	for i := range b.current.Dialogues {
		b.current.Dialogues[i].SceneNumber = number
	}
}

// bySpeaker is used when the script carries no structural boundaries. Each
// speaker run forms a scene, and threshold additionally caps the number of
// dialogue lines per scene.
func (b *sceneBuilder) bySpeaker(elements []Element, threshold int) {
	speaker := ""
	count := 0
	for _, el := range elements {
		if el.Kind == ElementDialogue || el.Kind == ElementCharacterCue {
			changed := speaker != "" && !strings.EqualFold(speaker, el.Character)
			full := threshold > 0 && count >= threshold
			if changed || full {
				b.open(0)
				count = 0
			}
			speaker = el.Character
			if el.Kind == ElementDialogue {
				count++
			}
		}
		b.add(el)
	}
}

var sceneIDPattern = regexp.MustCompile(`(?i)^\s*(?:scene[\s_\-#]*)?(\d+)\s*$`)

// SceneKey returns the canonical identifier for a scene number.
func SceneKey(number int) string {
	return fmt.Sprintf("scene_%d", number)
}

// ParseSceneID accepts "scene_2", "scene-2", "Scene 2" and "2".
func ParseSceneID(id string) (int, bool) {
	m := sceneIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
