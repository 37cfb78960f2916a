package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StartRequest is the body of a start call.
type StartRequest struct {
	Script      string          `json:"script"`
	ScriptRef   string          `json:"scriptRef,omitempty"`
	Characters  []Character     `json:"characters,omitempty"`
	QualityTier string          `json:"qualityTier,omitempty"`
	Assets      []ImportedAsset `json:"assets,omitempty"`
}

// Character is a cast member supplied with a start request.
type Character struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	VoiceID     string   `json:"voiceId,omitempty"`
	Emotion     string   `json:"emotion,omitempty"`
	ImageStyle  string   `json:"imageStyle,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ImportedAsset is existing media supplied with a start request. Imported
// assets are stored completed and act as reuse candidates.
type ImportedAsset struct {
	Kind        string         `json:"kind"`
	Category    string         `json:"category"`
	URL         string         `json:"url"`
	SceneID     string         `json:"sceneId,omitempty"`
	SceneNumber int            `json:"sceneNumber,omitempty"`
	Character   string         `json:"character,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StartResponse acknowledges a started generation.
type StartResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TierRequest is the body of a quality tier change.
type TierRequest struct {
	QualityTier string `json:"qualityTier"`
}

// Generation describes a generation in a transport-friendly format.
type Generation struct {
	ID              string                     `json:"id"`
	ScriptRef       string                     `json:"scriptRef,omitempty"`
	Status          string                     `json:"status"`
	QualityTier     string                     `json:"qualityTier"`
	Progress        GenerationProgress         `json:"progress"`
	PipelineRetries int                        `json:"pipelineRetries"`
	ResumeStatus    string                     `json:"resumeStatus,omitempty"`
	ErrorMessage    string                     `json:"errorMessage,omitempty"`
	OutputURL       string                     `json:"outputUrl,omitempty"`
	CreatedAt       string                     `json:"createdAt,omitempty"`
	UpdatedAt       string                     `json:"updatedAt,omitempty"`
	StageData       map[string]json.RawMessage `json:"stageData,omitempty"`
}

// GenerationProgress captures stage progress for a generation.
type GenerationProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Asset describes a media asset.
type Asset struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Category    string         `json:"category"`
	SceneNumber *int           `json:"sceneNumber,omitempty"`
	SceneID     string         `json:"sceneId,omitempty"`
	Character   string         `json:"character,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Source      string         `json:"source"`
	Required    bool           `json:"required"`
	URL         string         `json:"url,omitempty"`
	ReusedFrom  string         `json:"reusedFrom,omitempty"`
	RetryCount  int            `json:"retryCount"`
	Error       string         `json:"error,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running        bool           `json:"running"`
	Workers        int            `json:"workers"`
	MergeLane      bool           `json:"mergeLane"`
	QueueStats     map[string]int `json:"queueStats"`
	LastError      string         `json:"lastError,omitempty"`
	LastGeneration *Generation    `json:"lastGeneration,omitempty"`
	StageHealth    []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for generators.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DatabaseStatus reports the persistence backend.
type DatabaseStatus struct {
	Driver  string `json:"driver"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockFilePath string             `json:"lockFilePath"`
	Database     DatabaseStatus     `json:"database"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// GenerationListResponse wraps a collection of generations.
type GenerationListResponse struct {
	Generations []Generation `json:"generations"`
}

// AssetListResponse wraps the assets of one generation.
type AssetListResponse struct {
	GenerationID string  `json:"generationId"`
	Assets       []Asset `json:"assets"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// LogEvent is one streamed daemon log line.
type LogEvent struct {
	Sequence     uint64            `json:"seq"`
	Timestamp    string            `json:"ts"`
	Level        string            `json:"level"`
	Message      string            `json:"msg"`
	Component    string            `json:"component,omitempty"`
	GenerationID string            `json:"generationId,omitempty"`
	AssetID      string            `json:"assetId,omitempty"`
	Stage        string            `json:"stage,omitempty"`
	Worker       string            `json:"worker,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events and the cursor to resume from.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
