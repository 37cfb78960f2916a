package stage_test

import (
	"testing"
	"time"

	"scriptreel/internal/queue"
	"scriptreel/internal/roster"
	"scriptreel/internal/script"
	"scriptreel/internal/stage"
	"scriptreel/internal/testsupport"
)

func TestBackoffDoublesUpToMax(t *testing.T) {
	b := stage.Backoff{Initial: 100 * time.Millisecond, Max: time.Second}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := (stage.Backoff{}).Delay(3); got != 0 {
		t.Fatalf("zero backoff should not wait, got %v", got)
	}
	if got := b.Delay(0); got != 100*time.Millisecond {
		t.Fatalf("Delay(0) = %v", got)
	}
}

func completedImage(id, category, character string, scene int) *queue.Asset {
	a := &queue.Asset{ID: id, Kind: queue.KindImage, Category: category, Character: character, Status: queue.AssetCompleted, URL: "file:///" + id + ".png"}
	if scene > 0 {
		a.OwnerSceneNumber = testsupport.SceneNumber(scene)
	}
	return a
}

func TestChooseReferencePrefersSceneImage(t *testing.T) {
	images := []*queue.Asset{
		completedImage("portrait", queue.CategoryCharacter, "Alice", 0),
		completedImage("scene2", queue.CategoryScene, "", 2),
		completedImage("scene1", queue.CategoryScene, "", 1),
	}
	ref := stage.ChooseReference(images, 1, "Alice")
	if ref.AssetID != "scene1" || ref.CharacterFallback {
		t.Fatalf("expected scene image, got %#v", ref)
	}
}

func TestChooseReferenceFallsBackToCharacter(t *testing.T) {
	pendingScene := completedImage("scene1", queue.CategoryScene, "", 1)
	pendingScene.Status = queue.AssetFailed
	images := []*queue.Asset{pendingScene, completedImage("portrait", queue.CategoryCharacter, "Alice", 0)}

	ref := stage.ChooseReference(images, 1, "alice")
	if ref.AssetID != "portrait" || !ref.CharacterFallback || ref.URL == "" {
		t.Fatalf("expected character fallback, got %#v", ref)
	}
	if ref := stage.ChooseReference(images, 1, "Bob"); ref.URL != "" {
		t.Fatalf("expected no reference for Bob, got %#v", ref)
	}
	if ref := stage.ChooseReference(images, 1, ""); ref.URL != "" {
		t.Fatalf("expected no reference without a character, got %#v", ref)
	}
}

func TestPlanAssets(t *testing.T) {
	cast := roster.Roster{Characters: []roster.Character{
		{Name: "Alice", VoiceID: "v-alice", Emotion: "calm", ImageStyle: "watercolor", Description: "a tired detective"},
		{Name: "Bob"},
	}}
	raw := "SCENE 1\nALICE: Where were you?\nBOB (nervous): Out.\nSFX: door slams\nSCENE 2\nNARRATOR: Later.\nALICE: Again."
	scenes := script.Segment(script.Parse(raw, cast.Names()))

	assets := stage.PlanAssets(scenes, cast, stage.PlanOptions{Sound: true})

	var audio, images, videos []*queue.Asset
	for _, a := range assets {
		switch a.Kind {
		case queue.KindAudio:
			audio = append(audio, a)
		case queue.KindImage:
			images = append(images, a)
		case queue.KindVideo:
			videos = append(videos, a)
		}
	}
	if len(audio) != 5 || len(images) != 4 || len(videos) != 2 {
		t.Fatalf("unexpected plan: %d audio, %d images, %d videos", len(audio), len(images), len(videos))
	}
	if assets[0].Kind != queue.KindAudio || assets[len(assets)-1].Kind != queue.KindVideo {
		t.Fatalf("plan should order audio first and video last")
	}

	first := audio[0]
	if first.Category != queue.CategoryCharacter || first.Character != "Alice" || !first.Required || first.SceneID != "scene_1" {
		t.Fatalf("unexpected first line: %#v", first)
	}
	if first.Metadata[stage.MetaVoiceID] != "v-alice" || first.Metadata[stage.MetaEmotion] != "calm" {
		t.Fatalf("expected roster voice settings, got %v", first.Metadata)
	}
	if bob := audio[1]; bob.Metadata[stage.MetaEmotion] != "nervous" {
		t.Fatalf("parenthetical should override emotion, got %v", bob.Metadata)
	}
	if sfx := audio[2]; sfx.Category != queue.CategorySoundEffect || sfx.Required || sfx.Description != "door slams" {
		t.Fatalf("unexpected sound cue asset: %#v", sfx)
	}
	if narr := audio[3]; narr.Category != queue.CategoryNarrator || *narr.OwnerSceneNumber != 2 {
		t.Fatalf("unexpected narrator line: %#v", narr)
	}

	portraits := 0
	for _, img := range images {
		if img.Required {
			t.Fatalf("images are optional: %#v", img)
		}
		if img.Category == queue.CategoryCharacter {
			portraits++
			if img.Character == "Alice" && img.Metadata[stage.MetaImageStyle] != "watercolor" {
				t.Fatalf("portrait should carry the image style: %#v", img)
			}
		}
	}
	if portraits != 2 {
		t.Fatalf("expected one portrait per speaking character, got %d", portraits)
	}
	for _, v := range videos {
		if !v.Required || v.Character != "Alice" {
			t.Fatalf("unexpected video asset: %#v", v)
		}
	}
}

func TestPlanAssetsWithoutSound(t *testing.T) {
	scenes := script.Segment(script.Parse("SCENE 1\nSFX: thunder\nNARRATOR: Storm.", nil))
	for _, a := range stage.PlanAssets(scenes, roster.Roster{}, stage.PlanOptions{}) {
		if a.Category == queue.CategorySoundEffect || a.Category == queue.CategoryBackgroundMusic {
			t.Fatalf("sound cues planned while disabled: %#v", a)
		}
	}
}

func TestPlanAssetsLeavesUndescribedScenesUnkeyed(t *testing.T) {
	scenes := script.Segment(script.Parse("ALICE: Where were you?", []string{"Alice"}))
	marked := script.Segment(script.Parse("SCENE 1\nALICE: Where were you?", []string{"Alice"}))
	for _, plan := range [][]*queue.Asset{
		stage.PlanAssets(scenes, roster.Roster{}, stage.PlanOptions{}),
		stage.PlanAssets(marked, roster.Roster{}, stage.PlanOptions{}),
	} {
		for _, a := range plan {
			if a.Category != queue.CategoryScene {
				continue
			}
			if a.Description != "" {
				t.Fatalf("scene without a description got reuse key %q", a.Description)
			}
			if a.Prompt == "" {
				t.Fatalf("scene asset still needs a prompt: %#v", a)
			}
		}
	}

	described := script.Segment(script.Parse("INT. KITCHEN - DAY\nALICE: Where were you?", []string{"Alice"}))
	for _, a := range stage.PlanAssets(described, roster.Roster{}, stage.PlanOptions{}) {
		if a.Category == queue.CategoryScene && a.Description != "INT. KITCHEN - DAY" {
			t.Fatalf("expected the heading as description, got %q", a.Description)
		}
	}
}
