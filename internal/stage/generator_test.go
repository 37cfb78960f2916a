package stage_test

import (
	"context"
	"errors"
	"testing"

	"scriptreel/internal/capability"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
	"scriptreel/internal/stage"
	"scriptreel/internal/testsupport"
)

type fakeVendor struct {
	speech []capability.SpeechRequest
	sounds []capability.SoundRequest
	images []capability.ImageRequest
	videos []capability.VideoRequest
	ping   error
}

func (f *fakeVendor) Synthesize(_ context.Context, req capability.SpeechRequest) (string, error) {
	f.speech = append(f.speech, req)
	return "file:///speech.mp3", nil
}

func (f *fakeVendor) GenerateSound(_ context.Context, req capability.SoundRequest) (string, error) {
	f.sounds = append(f.sounds, req)
	return "file:///sound.mp3", nil
}

func (f *fakeVendor) GenerateImage(_ context.Context, req capability.ImageRequest) (string, error) {
	f.images = append(f.images, req)
	return "file:///image.png", nil
}

func (f *fakeVendor) GenerateVideo(_ context.Context, req capability.VideoRequest) (string, error) {
	f.videos = append(f.videos, req)
	return "file:///clip.mp4", nil
}

func (f *fakeVendor) Ping(context.Context) error { return f.ping }

type staticImages []*queue.Asset

func (s staticImages) ListAssets(context.Context, string, queue.AssetKind) ([]*queue.Asset, error) {
	return s, nil
}

func TestAudioGeneratorRoutesByCategory(t *testing.T) {
	vendor := &fakeVendor{}
	g := &stage.AudioGenerator{Speech: vendor, Sound: vendor}
	ctx := context.Background()

	line := &queue.Asset{Category: queue.CategoryCharacter, Prompt: "Hello", Metadata: map[string]any{stage.MetaVoiceID: "v1", stage.MetaEmotion: "warm"}}
	if res, err := g.Generate(ctx, line); err != nil || res.URL != "file:///speech.mp3" {
		t.Fatalf("speech: %#v %v", res, err)
	}
	if vendor.speech[0].VoiceID != "v1" || vendor.speech[0].Emotion != "warm" || vendor.speech[0].Text != "Hello" {
		t.Fatalf("unexpected speech request: %#v", vendor.speech[0])
	}

	music := &queue.Asset{Category: queue.CategoryBackgroundMusic, Description: "low drone", Metadata: map[string]any{stage.MetaDuration: 12.5}}
	if _, err := g.Generate(ctx, music); err != nil {
		t.Fatalf("music: %v", err)
	}
	if vendor.sounds[0].Kind != capability.SoundMusic || vendor.sounds[0].Duration != 12.5 || vendor.sounds[0].Prompt != "low drone" {
		t.Fatalf("unexpected sound request: %#v", vendor.sounds[0])
	}

	_, err := (&stage.AudioGenerator{Speech: vendor}).Generate(ctx, &queue.Asset{Category: queue.CategorySoundEffect, Prompt: "boom"})
	if !errors.Is(err, services.ErrGenerationPermanent) {
		t.Fatalf("missing sound backend should fail permanently, got %v", err)
	}
}

func TestImageGeneratorUsesTierProfile(t *testing.T) {
	vendor := &fakeVendor{}
	g := &stage.ImageGenerator{Images: vendor}
	asset := &queue.Asset{Prompt: "A rainy street", Metadata: map[string]any{stage.MetaQualityTier: "premium", stage.MetaImageStyle: "noir"}}
	if _, err := g.Generate(context.Background(), asset); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	req := vendor.images[0]
	if req.Quality != "premium" || req.Style != "noir" || req.AspectRatio != "16:9" {
		t.Fatalf("unexpected image request: %#v", req)
	}
}

func TestVideoGeneratorAnchorsOnReference(t *testing.T) {
	vendor := &fakeVendor{}
	refs := staticImages{completedImage("portrait", queue.CategoryCharacter, "Alice", 0)}
	g := &stage.VideoGenerator{Videos: vendor, References: refs}
	asset := &queue.Asset{
		Kind:             queue.KindVideo,
		OwnerSceneNumber: testsupport.SceneNumber(1),
		Character:        "Alice",
		Prompt:           "Alice waits",
		Metadata:         map[string]any{stage.MetaQualityTier: "draft"},
	}
	res, err := g.Generate(context.Background(), asset)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	req := vendor.videos[0]
	if req.ReferenceImageURL != "file:///portrait.png" || req.Duration != 4 || req.Quality != "draft" {
		t.Fatalf("unexpected video request: %#v", req)
	}
	if len(res.Tags) != 1 || res.Tags[0] != queue.TagCharacterFallback || res.Metadata[stage.MetaReferenceAssetID] != "portrait" {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestGeneratorHealth(t *testing.T) {
	ctx := context.Background()
	if h := (&stage.ImageGenerator{}).HealthCheck(ctx); h.Ready {
		t.Fatalf("unconfigured generator reported ready")
	}
	vendor := &fakeVendor{}
	if h := (&stage.VideoGenerator{Videos: vendor}).HealthCheck(ctx); !h.Ready || h.Name != "video" {
		t.Fatalf("unexpected health: %#v", h)
	}
	vendor.ping = errors.New("gateway down")
	if h := (&stage.AudioGenerator{Speech: vendor}).HealthCheck(ctx); h.Ready || h.Detail != "gateway down" {
		t.Fatalf("unexpected health: %#v", h)
	}
}
