package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	GenerationID  string            `json:"generation_id,omitempty"`
	AssetID       string            `json:"asset_id,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	Worker        string            `json:"worker,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events in memory for the log API and
// wakes followers when new ones arrive.
type StreamHub struct {
	mu       sync.Mutex
	capacity int
	events   []LogEvent
	last     uint64
	notify   chan struct{}
	sinks    []LogEventSink
}

// NewStreamHub builds a hub holding at most capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{
		capacity: capacity,
		events:   make([]LogEvent, 0, capacity),
		notify:   make(chan struct{}),
	}
}

// LogEventSink receives every published log event.
type LogEventSink interface {
	Append(LogEvent)
}

// AddSink registers a sink that receives every event published afterwards.
func (h *StreamHub) AddSink(sink LogEventSink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Publish assigns the next sequence number to evt and buffers it.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.last++
	evt.Sequence = h.last
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.events) == h.capacity {
		n := copy(h.events, h.events[1:])
		h.events = h.events[:n]
	}
	h.events = append(h.events, evt)
	close(h.notify)
	h.notify = make(chan struct{})
	sinks := slices.Clone(h.sinks)
	h.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
}

// Fetch returns up to limit events newer than since along with the latest
// sequence. With wait set it blocks until an event arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		h.mu.Lock()
		events := h.after(since, h.clampLimit(limit))
		last, changed := h.last, h.notify
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, last, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, last, ctx.Err()
		case <-changed:
		}
	}
}

// Tail returns the newest limit events without blocking.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	limit = h.clampLimit(limit)
	start := max(len(h.events)-limit, 0)
	if start == len(h.events) {
		return nil, h.last
	}
	return slices.Clone(h.events[start:]), h.last
}

// FirstSequence reports the oldest sequence still buffered, or the latest
// sequence when the buffer is empty.
func (h *StreamHub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return h.last
	}
	return h.events[0].Sequence
}

func (h *StreamHub) clampLimit(limit int) int {
	if limit <= 0 || limit > h.capacity {
		return h.capacity
	}
	return limit
}

// after relies on buffered sequences being contiguous.
func (h *StreamHub) after(since uint64, limit int) []LogEvent {
	if len(h.events) == 0 || since >= h.last {
		return nil
	}
	start := 0
	if first := h.events[0].Sequence; since >= first {
		start = int(since - first + 1)
	}
	end := min(start+limit, len(h.events))
	return slices.Clone(h.events[start:end])
}

type streamHandler struct {
	next   slog.Handler
	hub    *StreamHub
	attrs  []slog.Attr
	groups []string
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(h.event(record))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var kvs []kv
	flattenAttrs(&kvs, h.groups, attrs)
	next := make([]slog.Attr, 0, len(h.attrs)+len(kvs))
	next = append(next, h.attrs...)
	for _, item := range kvs {
		next = append(next, slog.Attr{Key: item.key, Value: item.value})
	}
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, attrs: next, groups: h.groups}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &streamHandler{
		next:   h.next.WithGroup(name),
		hub:    h.hub,
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
	}
}

// event converts record into a LogEvent. Record attrs override attrs bound
// with WithAttrs.
func (h *streamHandler) event(record slog.Record) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	for _, attr := range h.attrs {
		event.set(attr.Key, attr.Value)
	}
	var kvs []kv
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})
	for _, item := range kvs {
		event.set(item.key, item.value)
	}
	return event
}

func (e *LogEvent) set(key string, value slog.Value) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	text := attrString(value)
	switch key {
	case FieldComponent:
		e.Component = text
	case FieldGenerationID:
		e.GenerationID = text
	case FieldAssetID:
		e.AssetID = text
	case FieldStage:
		e.Stage = text
	case FieldWorker:
		e.Worker = text
	case FieldCorrelationID:
		e.CorrelationID = text
	default:
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		e.Fields[key] = text
	}
}
