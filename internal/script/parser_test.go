package script_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"scriptreel/internal/script"
	"scriptreel/internal/services"
)

var cast = []string{"Alice", "Bob"}

func kinds(elements []script.Element) []script.ElementKind {
	out := make([]script.ElementKind, 0, len(elements))
	for _, el := range elements {
		out = append(out, el.Kind)
	}
	return out
}

func TestParseScreenplayBlocks(t *testing.T) {
	raw := strings.Join([]string{
		"FADE IN:",
		"",
		"INT. KITCHEN - NIGHT",
		"",
		"Rain hammers the window.",
		"",
		"ALICE (V.O.)",
		"(quietly)",
		"I knew you'd come back.",
		"",
		"BOB",
		"Of course.",
		"",
		"CLOSE-UP on Bob.",
		"",
		"CUT TO:",
	}, "\n")

	parsed := script.Parse(raw, cast)
	want := []script.ElementKind{
		script.ElementTransition,
		script.ElementSceneHeading,
		script.ElementAction,
		script.ElementCharacterCue,
		script.ElementDialogue,
		script.ElementCharacterCue,
		script.ElementDialogue,
		script.ElementCameraDirection,
		script.ElementTransition,
	}
	if got := kinds(parsed.Elements); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected element kinds:\n got %v\nwant %v", got, want)
	}
	if len(parsed.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %#v", parsed.Warnings)
	}

	heading := parsed.Elements[1]
	if heading.Location != "KITCHEN" || heading.TimeOfDay != "NIGHT" || heading.Line != 3 {
		t.Fatalf("unexpected heading: %#v", heading)
	}
	cue := parsed.Elements[3]
	if cue.Character != "Alice" || cue.Extension != "V.O." {
		t.Fatalf("unexpected cue: %#v", cue)
	}
	line := parsed.Elements[4]
	if line.Character != "Alice" || line.Text != "I knew you'd come back." || line.Parenthetical != "quietly" {
		t.Fatalf("unexpected dialogue: %#v", line)
	}
	camera := parsed.Elements[7]
	if !reflect.DeepEqual(camera.Movements, []string{"close-up"}) {
		t.Fatalf("unexpected movements: %v", camera.Movements)
	}
}

func TestParseInlineDialogueKeepsProseOrder(t *testing.T) {
	raw := `Alice walks in. Alice says: "Hello." Then the stranger says: "Who are you?"`
	parsed := script.Parse(raw, cast)

	want := []script.ElementKind{
		script.ElementAction,
		script.ElementDialogue,
		script.ElementAction,
		script.ElementDialogue,
	}
	if got := kinds(parsed.Elements); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected element kinds: %v", got)
	}
	if parsed.Elements[0].Text != "Alice walks in." {
		t.Fatalf("unexpected prose: %q", parsed.Elements[0].Text)
	}
	if d := parsed.Elements[1]; d.Character != "Alice" || d.Text != "Hello." {
		t.Fatalf("unexpected first dialogue: %#v", d)
	}
	if d := parsed.Elements[3]; d.Character != script.Narrator || d.Text != "Who are you?" {
		t.Fatalf("unexpected second dialogue: %#v", d)
	}
	if len(parsed.Warnings) != 1 {
		t.Fatalf("expected one warning for the unknown speaker, got %#v", parsed.Warnings)
	}
}

func TestParseInlineDialogueParenthetical(t *testing.T) {
	parsed := script.Parse(`bob (grinning) says: "Told you."`, cast)
	if len(parsed.Elements) != 1 {
		t.Fatalf("expected a single element, got %#v", parsed.Elements)
	}
	d := parsed.Elements[0]
	if d.Kind != script.ElementDialogue || d.Character != "Bob" || d.Parenthetical != "grinning" {
		t.Fatalf("unexpected dialogue: %#v", d)
	}
}

func TestParseSpeakerPrefixUsesRosterCasing(t *testing.T) {
	parsed := script.Parse("ALICE: hi there\nbob (angrily): Not now.", []string{"alice", "Bob"})
	if len(parsed.Elements) != 2 {
		t.Fatalf("expected two dialogues, got %#v", parsed.Elements)
	}
	if parsed.Elements[0].Character != "alice" {
		t.Fatalf("expected roster casing, got %q", parsed.Elements[0].Character)
	}
	if parsed.Elements[1].Character != "Bob" || parsed.Elements[1].Parenthetical != "angrily" {
		t.Fatalf("unexpected second dialogue: %#v", parsed.Elements[1])
	}
	if !reflect.DeepEqual(parsed.Characters, []string{"alice", "Bob"}) {
		t.Fatalf("unexpected characters: %v", parsed.Characters)
	}
}

func TestParseUnknownSpeakerPolicy(t *testing.T) {
	raw := "STRANGER: Hello there."

	narrated := script.Parse(raw, cast)
	if len(narrated.Elements) != 1 || narrated.Elements[0].Character != script.Narrator {
		t.Fatalf("expected narrator attribution, got %#v", narrated.Elements)
	}

	dropped := script.ParseWithOptions(raw, cast, script.Options{UnknownSpeaker: script.SpeakerDrop})
	if len(dropped.Elements) != 1 {
		t.Fatalf("expected a single element, got %#v", dropped.Elements)
	}
	el := dropped.Elements[0]
	if el.Kind != script.ElementAction || el.Text != raw {
		t.Fatalf("expected line kept as action, got %#v", el)
	}
	if len(dropped.Warnings) != 1 {
		t.Fatalf("expected warning, got %#v", dropped.Warnings)
	}
}

func TestParseCueParentheticalBecomesAction(t *testing.T) {
	parsed := script.Parse("ALICE (whispering)\nStay down.", cast)
	want := []script.ElementKind{script.ElementCharacterCue, script.ElementAction, script.ElementDialogue}
	if got := kinds(parsed.Elements); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected element kinds: %v", got)
	}
	action := parsed.Elements[1]
	if action.Character != "Alice" || action.Text != "whispering" {
		t.Fatalf("unexpected action: %#v", action)
	}
	if parsed.Elements[2].Parenthetical != "" {
		t.Fatalf("cue action must not become delivery direction: %#v", parsed.Elements[2])
	}
}

func TestParseDanglingParentheticalInCueBlock(t *testing.T) {
	parsed := script.Parse("BOB\nWait.\n(turns away)\n\nThe door slams.", cast)
	want := []script.ElementKind{
		script.ElementCharacterCue,
		script.ElementDialogue,
		script.ElementAction,
		script.ElementAction,
	}
	if got := kinds(parsed.Elements); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected element kinds: %v", got)
	}
	if a := parsed.Elements[2]; a.Character != "Bob" || a.Text != "turns away" {
		t.Fatalf("expected Bob action, got %#v", a)
	}
	if a := parsed.Elements[3]; a.Character != "" || a.Text != "The door slams." {
		t.Fatalf("expected plain action, got %#v", a)
	}
}

func TestParseCameraMovements(t *testing.T) {
	parsed := script.Parse("The camera pans left, then zooms in as it follows Alice.", cast)
	if len(parsed.Elements) != 1 {
		t.Fatalf("expected bare camera direction, got %#v", parsed.Elements)
	}
	want := []string{"pan", "zoom", "follows"}
	if got := parsed.Elements[0].Movements; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected movements: %v", got)
	}

	parsed = script.Parse("Alice walks to the window as a tracking shot finds her.", cast)
	if got := kinds(parsed.Elements); !reflect.DeepEqual(got, []script.ElementKind{script.ElementCameraDirection, script.ElementAction}) {
		t.Fatalf("expected camera plus action, got %v", got)
	}
	if got := parsed.Elements[0].Movements; !reflect.DeepEqual(got, []string{"tracking shot"}) {
		t.Fatalf("unexpected movements: %v", got)
	}

	shots := map[string]string{
		"CLOSE-UP: Bob's trembling hands.":    "close-up",
		"WIDE SHOT: The harbour at dawn.":     "wide shot",
		"TRACKING SHOT: Alice runs the hall.": "tracking shot",
	}
	for line, movement := range shots {
		parsed := script.Parse(line, cast)
		if len(parsed.Elements) != 1 {
			t.Fatalf("%q: expected one camera direction, got %#v", line, parsed.Elements)
		}
		el := parsed.Elements[0]
		if el.Kind != script.ElementCameraDirection || !reflect.DeepEqual(el.Movements, []string{movement}) {
			t.Fatalf("%q: unexpected element %#v", line, el)
		}
		scenes := script.Segment(parsed)
		if len(scenes) != 1 || len(scenes[0].Dialogues) != 0 || len(scenes[0].CameraMovements) != 1 {
			t.Fatalf("%q: shot line must not become narration, got %#v", line, scenes)
		}
	}

	if parsed := script.Parse("HARBOUR MASTER: Ships ahoy.", cast); parsed.Elements[0].Kind != script.ElementDialogue {
		t.Fatalf("upper-case speaker should still be dialogue, got %#v", parsed.Elements)
	}
}

func TestParseProseAttachedAction(t *testing.T) {
	parsed := script.Parse("Bob (laughing) drops the tray.", cast)
	if len(parsed.Elements) != 2 {
		t.Fatalf("expected action and character action, got %#v", parsed.Elements)
	}
	if a := parsed.Elements[1]; a.Character != "Bob" || a.Text != "laughing" {
		t.Fatalf("unexpected character action: %#v", a)
	}
}

func TestParseSoundCues(t *testing.T) {
	parsed := script.Parse("SFX: thunder rolls\nMUSIC: soft piano", cast)
	if len(parsed.Elements) != 2 {
		t.Fatalf("expected two sound cues, got %#v", parsed.Elements)
	}
	if parsed.Elements[0].Cue != script.SoundEffect || parsed.Elements[0].Text != "thunder rolls" {
		t.Fatalf("unexpected sfx cue: %#v", parsed.Elements[0])
	}
	if parsed.Elements[1].Cue != script.SoundMusic {
		t.Fatalf("unexpected music cue: %#v", parsed.Elements[1])
	}
}

func TestParseUnrecognizedHeadingWarns(t *testing.T) {
	parsed := script.Parse("INTERIOR KITCHEN", cast)
	if len(parsed.Elements) != 1 || parsed.Elements[0].Kind != script.ElementAction {
		t.Fatalf("expected action fallback, got %#v", parsed.Elements)
	}
	if len(parsed.Warnings) != 1 {
		t.Fatalf("expected one warning, got %#v", parsed.Warnings)
	}
	if err := parsed.Warnings[0].Err(); !errors.Is(err, services.ErrParseAmbiguity) {
		t.Fatalf("expected parse ambiguity marker, got %v", err)
	}
}

func TestParseHeadingVariants(t *testing.T) {
	cases := []struct {
		line     string
		location string
		time     string
	}{
		{"INT. KITCHEN - NIGHT", "KITCHEN", "NIGHT"},
		{"ext. harbor – dawn", "harbor", "dawn"},
		{"INT./EXT. MOVING CAR - DAY.", "MOVING CAR", "DAY"},
		{"I/E BARN", "BARN", ""},
		{"EXT.ROOFTOP - LATER", "ROOFTOP", "LATER"},
		{"**INT. LAB - DAY**", "LAB", "DAY"},
	}
	for _, tc := range cases {
		parsed := script.Parse(tc.line, nil)
		if len(parsed.Elements) != 1 || parsed.Elements[0].Kind != script.ElementSceneHeading {
			t.Fatalf("%q: expected heading, got %#v", tc.line, parsed.Elements)
		}
		el := parsed.Elements[0]
		if el.Location != tc.location || el.TimeOfDay != tc.time {
			t.Fatalf("%q: got location %q time %q", tc.line, el.Location, el.TimeOfDay)
		}
	}
}

func TestParseTransitionsToleratePunctuation(t *testing.T) {
	for _, line := range []string{"CUT TO:", "fade out.", "FADE IN", "Dissolve to:", "SMASH CUT TO:", "FADE TO BLACK."} {
		parsed := script.Parse(line, nil)
		if len(parsed.Elements) != 1 || parsed.Elements[0].Kind != script.ElementTransition {
			t.Fatalf("%q: expected transition, got %#v", line, parsed.Elements)
		}
		if parsed.Elements[0].Text != line {
			t.Fatalf("%q: original casing lost: %q", line, parsed.Elements[0].Text)
		}
	}
}

func TestParseNeverPanicsOnOddInput(t *testing.T) {
	inputs := []string{
		"",
		"\r\n\r\n",
		"((((",
		"says: \"orphan\"",
		"SCENE 99999999999999999999",
		"ALICE\n\n\nBOB\n",
		strings.Repeat("x", 200000),
	}
	for _, raw := range inputs {
		parsed := script.Parse(raw, cast)
		for _, el := range parsed.Elements {
			if el.Kind == script.ElementDialogue && el.Character == "" {
				t.Fatalf("dialogue without speaker for input %q", raw)
			}
		}
	}
}
