package queue

import (
	"encoding/json"
	"time"

	"scriptreel/internal/roster"
)

// Status represents the lifecycle of a generation.
type Status string

const (
	StatusPending          Status = "pending"
	StatusGeneratingAudio  Status = "generating_audio"
	StatusAudioCompleted   Status = "audio_completed"
	StatusGeneratingImages Status = "generating_images"
	StatusImagesCompleted  Status = "images_completed"
	StatusGeneratingVideo  Status = "generating_video"
	StatusVideoCompleted   Status = "video_completed"
	StatusMergingAudio     Status = "merging_audio"
	StatusApplyingLipSync  Status = "applying_lipsync"
	StatusCombining        Status = "combining"
	StatusCompleted        Status = "completed"
	StatusRetrying         Status = "retrying"
	StatusFailed           Status = "failed"
	StatusRetrievalFailed  Status = "retrieval_failed"
	StatusCancelled        Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusGeneratingAudio,
	StatusAudioCompleted,
	StatusGeneratingImages,
	StatusImagesCompleted,
	StatusGeneratingVideo,
	StatusVideoCompleted,
	StatusMergingAudio,
	StatusApplyingLipSync,
	StatusCombining,
	StatusCompleted,
	StatusRetrying,
	StatusFailed,
	StatusRetrievalFailed,
	StatusCancelled,
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted:       {},
	StatusFailed:          {},
	StatusRetrievalFailed: {},
	StatusCancelled:       {},
}

// mergeStatuses are the generation-level stages run under a lease. A stale
// lease returns the generation to StatusVideoCompleted.
var mergeStatuses = []Status{StatusMergingAudio, StatusApplyingLipSync, StatusCombining}

// AllStatuses returns every known status in pipeline order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus resolves a status string.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// GeneratingKind returns the asset kind produced while in s.
func (s Status) GeneratingKind() (AssetKind, bool) {
	switch s {
	case StatusGeneratingAudio:
		return KindAudio, true
	case StatusGeneratingImages:
		return KindImage, true
	case StatusGeneratingVideo:
		return KindVideo, true
	}
	return "", false
}

// GeneratingStatus returns the status in which assets of kind are produced.
func GeneratingStatus(kind AssetKind) Status {
	switch kind {
	case KindAudio:
		return StatusGeneratingAudio
	case KindImage:
		return StatusGeneratingImages
	case KindVideo:
		return StatusGeneratingVideo
	}
	return ""
}

// QualityTier selects render profiles.
type QualityTier string

const (
	TierDraft    QualityTier = "draft"
	TierStandard QualityTier = "standard"
	TierPremium  QualityTier = "premium"
)

// ParseQualityTier resolves a tier, defaulting blank input to standard.
func ParseQualityTier(value string) (QualityTier, bool) {
	switch QualityTier(value) {
	case "":
		return TierStandard, true
	case TierDraft, TierStandard, TierPremium:
		return QualityTier(value), true
	}
	return "", false
}

// TierProfile holds the render settings of a quality tier.
type TierProfile struct {
	Width        int
	Height       int
	ClipSeconds  float64
	VideoBitrate string
	AudioBitrate string
	AspectRatio  string
	CRF          int
}

var tierProfiles = map[QualityTier]TierProfile{
	TierDraft:    {Width: 854, Height: 480, ClipSeconds: 4, VideoBitrate: "1M", AudioBitrate: "96k", AspectRatio: "16:9", CRF: 30},
	TierStandard: {Width: 1280, Height: 720, ClipSeconds: 6, VideoBitrate: "3M", AudioBitrate: "160k", AspectRatio: "16:9", CRF: 23},
	TierPremium:  {Width: 1920, Height: 1080, ClipSeconds: 8, VideoBitrate: "8M", AudioBitrate: "256k", AspectRatio: "16:9", CRF: 18},
}

// Profile returns the render settings for t. Unknown tiers use standard.
func (t QualityTier) Profile() TierProfile {
	if p, ok := tierProfiles[t]; ok {
		return p
	}
	return tierProfiles[TierStandard]
}

// AssetKind classifies a media asset.
type AssetKind string

const (
	KindAudio AssetKind = "audio"
	KindImage AssetKind = "image"
	KindVideo AssetKind = "video"
)

// Asset categories.
const (
	CategoryNarrator        = "narrator"
	CategoryCharacter       = "character"
	CategorySoundEffect     = "sound_effect"
	CategoryBackgroundMusic = "background_music"
	CategoryScene           = "scene"
)

// AudioCategories lists audio categories in mix order, lowest layer first.
var AudioCategories = []string{CategoryBackgroundMusic, CategorySoundEffect, CategoryCharacter, CategoryNarrator}

// AssetStatus is the lifecycle of one asset.
type AssetStatus string

const (
	AssetPending    AssetStatus = "pending"
	AssetProcessing AssetStatus = "processing"
	AssetCompleted  AssetStatus = "completed"
	AssetFailed     AssetStatus = "failed"
)

// IsTerminal reports whether the asset reached completed or failed.
func (s AssetStatus) IsTerminal() bool {
	return s == AssetCompleted || s == AssetFailed
}

// AssetSource records where an asset's content came from.
type AssetSource string

const (
	SourceGenerated AssetSource = "generated"
	SourceImported  AssetSource = "imported"
	SourceReused    AssetSource = "reused"
)

// TagCharacterFallback marks a video whose reference came from a character image.
const TagCharacterFallback = "character_fallback"

// StaleAssetError is recorded on assets failed by the stale sweep.
const StaleAssetError = "stale: no active owner"

// CancelledAssetError is recorded on assets failed by cancellation.
const CancelledAssetError = "cancelled with generation"

// Generation is a persisted script-to-video request.
type Generation struct {
	ID              string
	ScriptRef       string
	ScriptText      string
	Characters      []roster.Character
	QualityTier     QualityTier
	Status          Status
	ResumeStatus    Status
	PipelineRetries int
	StageData       map[string]json.RawMessage
	ErrorMessage    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	StageStartedAt  *time.Time
	Owner           string
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Asset is one generated or imported media artifact.
type Asset struct {
	ID               string
	GenerationID     string
	Kind             AssetKind
	Category         string
	OwnerSceneNumber *int
	SceneID          string
	Character        string
	Description      string
	Prompt           string
	Metadata         map[string]any
	Status           AssetStatus
	URL              string
	RetryCount       int
	Error            string
	Source           AssetSource
	ReusedFrom       string
	Required         bool
	Tags             []string
	Owner            string
	LeaseExpiresAt   *time.Time
	NextAttemptAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasTag reports whether tag is set on the asset.
func (a *Asset) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SceneRecord is a segmented scene persisted with its generation.
type SceneRecord struct {
	GenerationID string
	Number       int
	Heading      string
	Description  string
	Data         json.RawMessage
}

// MergeStatus is the lifecycle of a merge operation.
type MergeStatus string

const (
	MergePending    MergeStatus = "PENDING"
	MergeProcessing MergeStatus = "PROCESSING"
	MergeCompleted  MergeStatus = "COMPLETED"
	MergeFailed     MergeStatus = "FAILED"
	MergeCancelled  MergeStatus = "CANCELLED"
)

// IsTerminal reports whether the merge operation finished.
func (s MergeStatus) IsTerminal() bool {
	return s == MergeCompleted || s == MergeFailed || s == MergeCancelled
}

// MergeOperation tracks the final render of a generation.
type MergeOperation struct {
	ID           string
	GenerationID string
	Status       MergeStatus
	Progress     float64
	OutputURL    string
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BarrierSummary aggregates a generation's assets of one kind.
type BarrierSummary struct {
	RequiredTotal     int
	RequiredCompleted int
	RequiredFailed    int
	OptionalTotal     int
	OptionalTerminal  int
}

// Met reports whether every required asset completed and every optional one
// reached a terminal state.
func (b BarrierSummary) Met() bool {
	return b.RequiredCompleted == b.RequiredTotal && b.OptionalTerminal == b.OptionalTotal
}

// Broken reports whether a required asset failed.
func (b BarrierSummary) Broken() bool {
	return b.RequiredFailed > 0
}

// HealthSummary describes aggregated generation counts.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
	Cancelled  int
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	Driver           string
	DBPath           string
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalGenerations int
	Error            string
}
