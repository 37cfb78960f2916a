package progress

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scriptreel/internal/logging"
	"scriptreel/internal/services"
)

const subscriberBuffer = 32

// Hub routes progress events by generation.
type Hub struct {
	logger   *slog.Logger
	recorder Recorder
	sinks    []Sink
	now      func() time.Time

	mu     sync.Mutex
	subs   map[string]map[int]chan Event
	nextID int
	jobs   map[string]*Job
}

// Option customizes a Hub.
type Option func(*Hub)

// WithRecorder persists every update through r.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) { h.recorder = r }
}

// WithSinks adds external sinks.
func WithSinks(sinks ...Sink) Option {
	return func(h *Hub) {
		for _, s := range sinks {
			if s != nil {
				h.sinks = append(h.sinks, s)
			}
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub builds a hub that logs through logger.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Hub{
		logger: logger.With(logging.String(logging.FieldComponent, "progress")),
		now:    time.Now,
		subs:   make(map[string]map[int]chan Event),
		jobs:   make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Job returns the progress tracker for a generation, creating it on first use.
func (h *Hub) Job(generationID string) *Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	if job, ok := h.jobs[generationID]; ok {
		return job
	}
	job := &Job{hub: h, id: generationID, sampler: logging.NewProgressSampler(25)}
	h.jobs[generationID] = job
	return job
}

// Subscribe returns a channel of events for generationID and a function that
// ends the subscription. Slow subscribers lose their oldest events.
func (h *Hub) Subscribe(generationID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[generationID] == nil {
		h.subs[generationID] = make(map[int]chan Event)
	}
	h.subs[generationID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[generationID]; ok {
				if _, live := set[id]; live {
					delete(set, id)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, generationID)
				}
			}
		})
	}
}

// Publish delivers event to local subscribers and every sink. A final event
// closes the generation's subscriptions and forgets its job.
func (h *Hub) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now().UTC()
	}
	h.mu.Lock()
	for _, ch := range h.subs[event.GenerationID] {
		deliver(ch, event)
	}
	if event.Final {
		for id, ch := range h.subs[event.GenerationID] {
			close(ch)
			delete(h.subs[event.GenerationID], id)
		}
		delete(h.subs, event.GenerationID)
		delete(h.jobs, event.GenerationID)
	}
	h.mu.Unlock()

	for _, sink := range h.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			h.logger.Warn("progress sink publish failed",
				logging.String("sink", sink.Name()),
				logging.String(logging.FieldGenerationID, event.GenerationID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "progress_sink_failed"),
				logging.String(logging.FieldErrorHint, "check the sink connection settings"),
				logging.String(logging.FieldImpact, "external progress consumers miss this update"),
			)
		}
	}
}

// Finish publishes a final event carrying the terminal status.
func (h *Hub) Finish(ctx context.Context, generationID, status, message string) {
	percent := 0.0
	if status == "completed" {
		percent = 100
	}
	h.Publish(ctx, Event{GenerationID: generationID, Status: status, Stage: status, Percent: percent, Message: message, Final: true})
}

// Close closes every sink.
func (h *Hub) Close() error {
	var errs []error
	for _, sink := range h.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ch chan Event, event Event) {
	for {
		select {
		case ch <- event:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Job tracks the progress of one generation.
type Job struct {
	hub     *Hub
	id      string
	mu      sync.Mutex
	sampler *logging.ProgressSampler
	last    float64
	stage   string
}

// Update records stage, percent and message. Percent is clamped to [0,100]
// and never decreases within a stage. Updates to terminal generations are
// dropped.
func (j *Job) Update(ctx context.Context, stage string, percent float64, message string) error {
	stage = strings.TrimSpace(stage)
	j.mu.Lock()
	if stage != j.stage {
		j.stage = stage
		j.last = 0
	}
	if percent < j.last {
		percent = j.last
	}
	if percent > 100 {
		percent = 100
	}
	j.last = percent
	shouldLog := j.sampler.ShouldLog(percent, stage)
	j.mu.Unlock()

	if j.hub.recorder != nil {
		if err := j.hub.recorder.UpdateProgress(ctx, j.id, stage, percent, message); err != nil {
			if errors.Is(err, services.ErrTerminal) {
				return err
			}
			j.hub.logger.Warn("persist progress failed",
				logging.String(logging.FieldGenerationID, j.id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "progress_persist_failed"),
			)
		}
	}
	if shouldLog {
		j.hub.logger.Info("generation progress",
			logging.String(logging.FieldGenerationID, j.id),
			logging.String(logging.FieldStage, stage),
			logging.Float64(logging.FieldProgressPercent, percent),
			logging.String(logging.FieldProgressMessage, message),
		)
	}
	j.hub.Publish(ctx, Event{GenerationID: j.id, Stage: stage, Percent: percent, Message: message})
	return nil
}
