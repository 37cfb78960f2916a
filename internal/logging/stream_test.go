package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scriptreel/internal/logging"
)

func TestStreamHubCapturesBoundAttrs(t *testing.T) {
	hub := logging.NewStreamHub(10)
	logger, err := logging.New(logging.Options{OutputPaths: []string{t.TempDir() + "/s.log"}, Stream: hub})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.With(logging.String(logging.FieldGenerationID, "gen-7")).
		With(logging.String(logging.FieldStage, "generating_audio")).
		Info("asset ready", logging.String(logging.FieldAssetID, "a-1"), logging.Int("attempt", 2))

	events, next := hub.Tail(10)
	if len(events) != 1 || next != 1 {
		t.Fatalf("expected one event, got %d (next %d)", len(events), next)
	}
	evt := events[0]
	if evt.GenerationID != "gen-7" || evt.Stage != "generating_audio" || evt.AssetID != "a-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Fields["attempt"] != "2" {
		t.Fatalf("unexpected fields: %v", evt.Fields)
	}
}

func TestStreamHubBoundedBuffer(t *testing.T) {
	hub := logging.NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(logging.LogEvent{Message: "m"})
	}
	events, next := hub.Tail(0)
	if len(events) != 3 || next != 5 {
		t.Fatalf("expected three buffered events, got %d (next %d)", len(events), next)
	}
	if first := hub.FirstSequence(); first != 3 {
		t.Fatalf("expected first sequence 3, got %d", first)
	}

	fetched, _, err := hub.Fetch(context.Background(), 4, 10, false)
	if err != nil || len(fetched) != 1 || fetched[0].Sequence != 5 {
		t.Fatalf("unexpected fetch: %v %+v", err, fetched)
	}
}

func TestStreamHubFetchWaits(t *testing.T) {
	hub := logging.NewStreamHub(4)
	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(logging.LogEvent{Message: "late"})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, _, err := hub.Fetch(ctx, 0, 1, true)
	if err != nil || len(events) != 1 || events[0].Message != "late" {
		t.Fatalf("unexpected wait result: %v %+v", err, events)
	}

	short, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	if _, _, err := hub.Fetch(short, 1, 1, true); err == nil {
		t.Fatal("expected context error when no events arrive")
	}
}

type captureSink struct{ events []logging.LogEvent }

func (c *captureSink) Append(evt logging.LogEvent) { c.events = append(c.events, evt) }

func TestFileFormatSplitsOutputs(t *testing.T) {
	hub := logging.NewStreamHub(4)
	sink := &captureSink{}
	hub.AddSink(sink)

	path := filepath.Join(t.TempDir(), "daemon.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		FileFormat:  "json",
		OutputPaths: []string{"stderr", path},
		Stream:      hub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("split", logging.String("scene", "scene_1"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("file output should be json: %q (%v)", data, err)
	}
	if line["msg"] != "split" || line["scene"] != "scene_1" {
		t.Fatalf("unexpected json line %v", line)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected one streamed copy, got %d", len(sink.events))
	}
	if logging.NewNop().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should be disabled")
	}
}
