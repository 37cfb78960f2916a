package storyboard

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"scriptreel/internal/script"
)

// 1x1 transparent PNG.
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func sampleScenes() []script.Scene {
	return []script.Scene{
		{
			Number:          1,
			Heading:         "INT. CAFÉ - NIGHT",
			Description:     "Rain streaks the window.",
			CameraMovements: []string{"PAN LEFT"},
			Dialogues: []script.DialogueLine{
				{Character: "Zoë", Text: "You came back.", Parenthetical: "quietly"},
			},
			SoundCues:      []script.SoundCue{{Kind: script.SoundEffect, Description: "thunder"}},
			TransitionsOut: []string{"CUT TO:"},
		},
		{Number: 2, Heading: "EXT. STREET - NIGHT"},
	}
}

func TestRenderProducesPDF(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleScenes(), Options{Title: "Night Shift"}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("output is not a PDF: %q", buf.Bytes()[:min(16, buf.Len())])
	}
}

func TestWriteFileEmbedsLocalImage(t *testing.T) {
	dir := t.TempDir()
	data, err := base64.StdEncoding.DecodeString(tinyPNG)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	img := filepath.Join(dir, "scene1.png")
	if err := os.WriteFile(img, data, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	out := filepath.Join(dir, "boards", "story.pdf")
	opts := Options{Images: map[int]string{1: "file://" + filepath.ToSlash(img), 2: "https://cdn.example.com/2.png"}}
	if err := WriteFile(out, sampleScenes(), opts); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected storyboard file, got %v (%v)", info, err)
	}
}

func TestEmbedImageSkipsUnusableSources(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(bogus, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var buf bytes.Buffer
	opts := Options{Images: map[int]string{1: bogus, 2: filepath.Join(dir, "missing.png")}}
	if err := Render(&buf, sampleScenes(), opts); err != nil {
		t.Fatalf("Render should fall back to placeholders: %v", err)
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"Zoë", "Zo\xeb"},
		{"ąę", "ae"},
		{"a→b", "a?b"},
	}
	for _, tc := range tests {
		if got := fold(tc.in); got != tc.want {
			t.Fatalf("fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"kitchen":             "kitchen.pdf",
		"Act 1: The  Return?": "Act 1- The Return.pdf",
		"a/b\\c":              "a-b-c.pdf",
		"  ..  ":              "storyboard.pdf",
		"":                    "storyboard.pdf",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Fatalf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}
