package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scriptreel/internal/config"
)

const userAgent = "scriptreel/0.1.0"

// Event names a pipeline milestone.
type Event string

const (
	EventGenerationStarted   Event = "generation_started"
	EventStageCompleted      Event = "stage_completed"
	EventGenerationCompleted Event = "generation_completed"
	EventGenerationFailed    Event = "generation_failed"
	EventRetrievalFailed     Event = "retrieval_failed"
	EventQueueStarted        Event = "queue_started"
	EventQueueCompleted      Event = "queue_completed"
	EventError               Event = "error"
	EventTest                Event = "test"
)

// Payload carries event fields. Recognised keys are generationID, scriptRef,
// stage, url, error, context, count, processed, failed and duration.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Progress.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Progress.NtfyRequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format renders event as an ntfy message. Stage-level chatter is suppressed.
func format(event Event, payload Payload) (message, bool) {
	label := generationLabel(payload)
	switch event {
	case EventGenerationStarted:
		return message{
			title: "scriptreel - Generation Started",
			body:  fmt.Sprintf("🎬 Rendering started: %s", label),
			tags:  []string{"scriptreel", "generation", "started"},
		}, true
	case EventGenerationCompleted:
		body := fmt.Sprintf("✅ Video ready: %s", label)
		if url := payload.text("url"); url != "" {
			body = fmt.Sprintf("%s\n%s", body, url)
		}
		return message{
			title:    "scriptreel - Complete",
			body:     body,
			tags:     []string{"scriptreel", "generation", "completed"},
			priority: "high",
		}, true
	case EventGenerationFailed:
		return message{
			title:    "scriptreel - Generation Failed",
			body:     fmt.Sprintf("❌ %s failed: %s", label, orUnknown(payload.text("error"))),
			tags:     []string{"scriptreel", "generation", "failed"},
			priority: "high",
		}, true
	case EventRetrievalFailed:
		return message{
			title:    "scriptreel - Output Unavailable",
			body:     fmt.Sprintf("⚠️ %s rendered but the output could not be retrieved", label),
			tags:     []string{"scriptreel", "storage", "alert"},
			priority: "high",
		}, true
	case EventQueueCompleted:
		return queueCompleted(payload), true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if ctxLabel := payload.text("context"); ctxLabel != "" {
			b.WriteString(" with ")
			b.WriteString(ctxLabel)
		}
		b.WriteString(": ")
		b.WriteString(orUnknown(payload.text("error")))
		return message{
			title:    "scriptreel - Error",
			body:     b.String(),
			tags:     []string{"scriptreel", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "scriptreel - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"scriptreel", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func queueCompleted(payload Payload) message {
	processed, _ := payload["processed"].(int)
	failed, _ := payload["failed"].(int)
	duration, _ := payload["duration"].(time.Duration)
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	if failed == 0 {
		return message{
			title: "scriptreel - Queue Complete",
			body:  fmt.Sprintf("Queue processing complete: %d generations in %s", processed, duration),
			tags:  []string{"scriptreel", "queue", "completed"},
		}
	}
	return message{
		title: "scriptreel - Queue Complete (with errors)",
		body:  fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, duration),
		tags:  []string{"scriptreel", "queue", "completed"},
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	}
	return ""
}

func generationLabel(p Payload) string {
	if ref := p.text("scriptRef"); ref != "" {
		return ref
	}
	if id := p.text("generationID"); id != "" {
		return "generation " + id
	}
	return "generation"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
