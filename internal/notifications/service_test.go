package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scriptreel/internal/config"
	"scriptreel/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Progress.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventGenerationCompleted, notifications.Payload{"generationID": "g1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("nil config should yield noop notifier, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "started",
			event:         notifications.EventGenerationStarted,
			payload:       notifications.Payload{"generationID": "g1", "scriptRef": "pilot.txt"},
			expectTitle:   "scriptreel - Generation Started",
			expectMessage: "🎬 Rendering started: pilot.txt",
			expectTags:    "scriptreel,generation,started",
		},
		{
			name:           "completed",
			event:          notifications.EventGenerationCompleted,
			payload:        notifications.Payload{"generationID": "g1", "url": "file:///out/final.mp4"},
			expectTitle:    "scriptreel - Complete",
			expectMessage:  "✅ Video ready: generation g1\nfile:///out/final.mp4",
			expectTags:     "scriptreel,generation,completed",
			expectPriority: "high",
		},
		{
			name:           "failed",
			event:          notifications.EventGenerationFailed,
			payload:        notifications.Payload{"generationID": "g2", "error": errors.New("vendor rejected prompt")},
			expectTitle:    "scriptreel - Generation Failed",
			expectMessage:  "❌ generation g2 failed: vendor rejected prompt",
			expectTags:     "scriptreel,generation,failed",
			expectPriority: "high",
		},
		{
			name:           "error",
			event:          notifications.EventError,
			payload:        notifications.Payload{"context": "merge", "error": "ffmpeg exited 1"},
			expectTitle:    "scriptreel - Error",
			expectMessage:  "❌ Error with merge: ffmpeg exited 1",
			expectTags:     "scriptreel,error,alert",
			expectPriority: "high",
		},
		{
			name:          "queue completed with failures",
			event:         notifications.EventQueueCompleted,
			payload:       notifications.Payload{"processed": 3, "failed": 1, "duration": 90 * time.Second},
			expectTitle:   "scriptreel - Queue Complete (with errors)",
			expectMessage: "Queue processing complete: 3 succeeded, 1 failed in 1m30s",
			expectTags:    "scriptreel,queue,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, _ := io.ReadAll(r.Body)
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Progress.NtfyTopic = server.URL
			cfg.Progress.NtfyRequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Progress.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventStageCompleted, notifications.EventQueueStarted} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"stage": "audio"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
	if calls != 0 {
		t.Fatalf("suppressed events reached ntfy %d times", calls)
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Progress.NtfyTopic = server.URL
	if err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
