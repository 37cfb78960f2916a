package stage

import (
	"context"
	"strings"

	"scriptreel/internal/queue"
)

// ReferenceSource lists a generation's assets of one kind.
type ReferenceSource interface {
	ListAssets(ctx context.Context, generationID string, kind queue.AssetKind) ([]*queue.Asset, error)
}

// Reference is the image a scene's video is anchored on.
type Reference struct {
	URL     string
	AssetID string
	// CharacterFallback is set when no scene image was available and the
	// character portrait was used instead.
	CharacterFallback bool
}

// SelectReference picks the reference image for a scene: the completed scene
// image for that scene, else the completed portrait of character, else none.
func SelectReference(ctx context.Context, src ReferenceSource, generationID string, sceneNumber int, character string) (Reference, error) {
	images, err := src.ListAssets(ctx, generationID, queue.KindImage)
	if err != nil {
		return Reference{}, err
	}
	return ChooseReference(images, sceneNumber, character), nil
}

// ChooseReference applies the reference fallback chain to images.
func ChooseReference(images []*queue.Asset, sceneNumber int, character string) Reference {
	for _, img := range images {
		if !usable(img) || img.Category != queue.CategoryScene {
			continue
		}
		if img.OwnerSceneNumber != nil && *img.OwnerSceneNumber == sceneNumber {
			return Reference{URL: img.URL, AssetID: img.ID}
		}
	}
	character = strings.TrimSpace(character)
	if character == "" {
		return Reference{}
	}
	for _, img := range images {
		if !usable(img) || img.Category != queue.CategoryCharacter {
			continue
		}
		if strings.EqualFold(img.Character, character) {
			return Reference{URL: img.URL, AssetID: img.ID, CharacterFallback: true}
		}
	}
	return Reference{}
}

func usable(a *queue.Asset) bool {
	return a != nil && a.Status == queue.AssetCompleted && strings.TrimSpace(a.URL) != ""
}
