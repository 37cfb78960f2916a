package capability

import "context"

// SpeechRequest asks for a voiced line.
type SpeechRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
	Emotion string `json:"emotion,omitempty"`
}

// ImageRequest asks for a still image.
type ImageRequest struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Quality     string `json:"quality_tier,omitempty"`
}

// VideoRequest asks for a clip, optionally anchored to a reference image.
type VideoRequest struct {
	Prompt            string  `json:"prompt"`
	ReferenceImageURL string  `json:"reference_image_url,omitempty"`
	Duration          float64 `json:"duration"`
	Quality           string  `json:"quality_tier,omitempty"`
}

// SoundKind distinguishes effects from music beds.
type SoundKind string

const (
	SoundEffect SoundKind = "sound_effect"
	SoundMusic  SoundKind = "background_music"
)

// SoundRequest asks for a sound effect or a music bed.
type SoundRequest struct {
	Prompt   string    `json:"prompt"`
	Kind     SoundKind `json:"kind"`
	Duration float64   `json:"duration,omitempty"`
}

// LipSyncRequest asks for a clip re-timed to a dialogue track.
type LipSyncRequest struct {
	VideoURL string `json:"video_url"`
	AudioURL string `json:"audio_url"`
}

// TextToSpeech synthesizes speech and returns the audio URL.
type TextToSpeech interface {
	Synthesize(ctx context.Context, req SpeechRequest) (string, error)
}

// TextToImage generates an image and returns its URL.
type TextToImage interface {
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
}

// TextToVideo generates a clip and returns its URL.
type TextToVideo interface {
	GenerateVideo(ctx context.Context, req VideoRequest) (string, error)
}

// TextToSound generates a sound effect or music bed and returns its URL.
type TextToSound interface {
	GenerateSound(ctx context.Context, req SoundRequest) (string, error)
}

// LipSync aligns a clip to an audio track and returns the new clip URL.
type LipSync interface {
	Sync(ctx context.Context, req LipSyncRequest) (string, error)
}

// Storage persists rendered media.
type Storage interface {
	// Put stores data at path and returns a retrievable URL.
	Put(ctx context.Context, data []byte, path string) (string, error)
	// Delete removes path and reports whether it existed.
	Delete(ctx context.Context, path string) (bool, error)
	// Exists reports whether path is retrievable.
	Exists(ctx context.Context, path string) (bool, error)
}
