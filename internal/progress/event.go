package progress

import (
	"context"
	"time"
)

// Event is one progress update for a generation.
type Event struct {
	GenerationID string    `json:"generation_id"`
	Status       string    `json:"status,omitempty"`
	Stage        string    `json:"stage"`
	Percent      float64   `json:"percent"`
	Message      string    `json:"message,omitempty"`
	Final        bool      `json:"final,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Sink forwards events to an external transport.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Recorder persists the progress columns of a generation.
type Recorder interface {
	UpdateProgress(ctx context.Context, id, stage string, percent float64, message string) error
}
