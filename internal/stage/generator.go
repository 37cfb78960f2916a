package stage

import (
	"context"
	"fmt"
	"strings"

	"scriptreel/internal/capability"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
)

// Metadata keys written by PlanAssets and read by the generators.
const (
	MetaVoiceID          = "voice_id"
	MetaEmotion          = "emotion"
	MetaImageStyle       = "image_style"
	MetaQualityTier      = "quality_tier"
	MetaReferenceImage   = "reference_image_url"
	MetaReferenceAssetID = "reference_asset_id"
	MetaDuration         = "duration"
)

// Result is the outcome of a successful generation.
type Result struct {
	URL      string
	Tags     []string
	Metadata map[string]any
}

// Generator produces the content of one asset kind.
type Generator interface {
	Kind() queue.AssetKind
	Generate(ctx context.Context, asset *queue.Asset) (Result, error)
	HealthCheck(ctx context.Context) Health
}

// AudioGenerator voices dialogue and, when a sound backend is configured,
// renders sound effects and music beds.
type AudioGenerator struct {
	Speech capability.TextToSpeech
	Sound  capability.TextToSound
}

// Kind implements Generator.
func (g *AudioGenerator) Kind() queue.AssetKind { return queue.KindAudio }

// Generate implements Generator.
func (g *AudioGenerator) Generate(ctx context.Context, asset *queue.Asset) (Result, error) {
	switch asset.Category {
	case queue.CategoryNarrator, queue.CategoryCharacter:
		if g.Speech == nil {
			return Result{}, services.Wrap(services.ErrGenerationPermanent, "audio", "synthesize", "speech capability not configured", nil)
		}
		url, err := g.Speech.Synthesize(ctx, capability.SpeechRequest{
			Text:    promptOf(asset),
			VoiceID: metaString(asset, MetaVoiceID),
			Emotion: metaString(asset, MetaEmotion),
		})
		return Result{URL: url}, err
	case queue.CategorySoundEffect, queue.CategoryBackgroundMusic:
		if g.Sound == nil {
			return Result{}, services.Wrap(services.ErrGenerationPermanent, "audio", "sound", "sound capability not configured", nil)
		}
		kind := capability.SoundEffect
		if asset.Category == queue.CategoryBackgroundMusic {
			kind = capability.SoundMusic
		}
		url, err := g.Sound.GenerateSound(ctx, capability.SoundRequest{
			Prompt:   promptOf(asset),
			Kind:     kind,
			Duration: metaFloat(asset, MetaDuration),
		})
		return Result{URL: url}, err
	default:
		return Result{}, services.Wrap(services.ErrGenerationPermanent, "audio", "generate", "unsupported audio category "+asset.Category, nil)
	}
}

// HealthCheck implements Generator.
func (g *AudioGenerator) HealthCheck(ctx context.Context) Health {
	if g.Speech == nil {
		return Unhealthy("audio", "speech capability not configured")
	}
	return probe(ctx, "audio", g.Speech)
}

// ImageGenerator renders scene stills and character portraits.
type ImageGenerator struct {
	Images capability.TextToImage
}

// Kind implements Generator.
func (g *ImageGenerator) Kind() queue.AssetKind { return queue.KindImage }

// Generate implements Generator.
func (g *ImageGenerator) Generate(ctx context.Context, asset *queue.Asset) (Result, error) {
	if g.Images == nil {
		return Result{}, services.Wrap(services.ErrGenerationPermanent, "image", "generate", "image capability not configured", nil)
	}
	tier := tierOf(asset)
	url, err := g.Images.GenerateImage(ctx, capability.ImageRequest{
		Prompt:      promptOf(asset),
		Style:       metaString(asset, MetaImageStyle),
		AspectRatio: tier.Profile().AspectRatio,
		Quality:     string(tier),
	})
	return Result{URL: url}, err
}

// HealthCheck implements Generator.
func (g *ImageGenerator) HealthCheck(ctx context.Context) Health {
	if g.Images == nil {
		return Unhealthy("image", "image capability not configured")
	}
	return probe(ctx, "image", g.Images)
}

// VideoGenerator renders scene clips anchored on the best available
// reference image.
type VideoGenerator struct {
	Videos     capability.TextToVideo
	References ReferenceSource
}

// Kind implements Generator.
func (g *VideoGenerator) Kind() queue.AssetKind { return queue.KindVideo }

// Generate implements Generator.
func (g *VideoGenerator) Generate(ctx context.Context, asset *queue.Asset) (Result, error) {
	if g.Videos == nil {
		return Result{}, services.Wrap(services.ErrGenerationPermanent, "video", "generate", "video capability not configured", nil)
	}
	var ref Reference
	if g.References != nil && asset.OwnerSceneNumber != nil {
		var err error
		ref, err = SelectReference(ctx, g.References, asset.GenerationID, *asset.OwnerSceneNumber, asset.Character)
		if err != nil {
			return Result{}, services.Wrap(services.ErrGenerationTransient, "video", "select reference", "load reference images", err)
		}
	}
	tier := tierOf(asset)
	duration := metaFloat(asset, MetaDuration)
	if duration <= 0 {
		duration = tier.Profile().ClipSeconds
	}
	url, err := g.Videos.GenerateVideo(ctx, capability.VideoRequest{
		Prompt:            promptOf(asset),
		ReferenceImageURL: ref.URL,
		Duration:          duration,
		Quality:           string(tier),
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{URL: url, Metadata: map[string]any{}}
	if ref.URL != "" {
		res.Metadata[MetaReferenceImage] = ref.URL
		res.Metadata[MetaReferenceAssetID] = ref.AssetID
	}
	if ref.CharacterFallback {
		res.Tags = []string{queue.TagCharacterFallback}
	}
	return res, nil
}

// HealthCheck implements Generator.
func (g *VideoGenerator) HealthCheck(ctx context.Context) Health {
	if g.Videos == nil {
		return Unhealthy("video", "video capability not configured")
	}
	return probe(ctx, "video", g.Videos)
}

func promptOf(asset *queue.Asset) string {
	if p := strings.TrimSpace(asset.Prompt); p != "" {
		return p
	}
	return strings.TrimSpace(asset.Description)
}

func tierOf(asset *queue.Asset) queue.QualityTier {
	tier, _ := queue.ParseQualityTier(metaString(asset, MetaQualityTier))
	if tier == "" {
		return queue.TierStandard
	}
	return tier
}

func metaString(asset *queue.Asset, key string) string {
	if asset.Metadata == nil {
		return ""
	}
	switch v := asset.Metadata[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func metaFloat(asset *queue.Asset, key string) float64 {
	if asset.Metadata == nil {
		return 0
	}
	switch v := asset.Metadata[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
