package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scriptreel/internal/config"
	"scriptreel/internal/logging"
	"scriptreel/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestConsoleFormatLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := services.WithStage(services.WithGenerationID(context.Background(), "gen-1"), "merge")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "merge")).Info("scene merged", logging.String("scene", "scene_2"))
	logger.Debug("hidden")

	out := readLog(t, path)
	if !strings.Contains(out, "INFO merge [gen-1/merge]: scene merged scene=scene_2") {
		t.Fatalf("unexpected console line: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
}

func TestConsoleFormatIncludesAsset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Warn("vendor slow", logging.String(logging.FieldAssetID, "a-3"), logging.String("detail", "two words"))

	out := readLog(t, path)
	if !strings.Contains(out, `WARN [a-3]: vendor slow detail="two words"`) {
		t.Fatalf("unexpected console line: %q", out)
	}
}

func TestJSONFormatKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Warn("slow vendor", logging.String(logging.FieldAssetID, "asset-9"))

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, path))), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["level"] != "warn" || line["msg"] != "slow vendor" || line["asset_id"] != "asset-9" {
		t.Fatalf("unexpected json line: %v", line)
	}
	if _, ok := line["ts"]; !ok {
		t.Fatalf("missing ts: %v", line)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFromConfigWritesRotatingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Format = "json"

	hub := logging.NewStreamHub(8)
	logger, err := logging.NewFromConfig(&cfg, hub, "", false)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("daemon started")

	if out := readLog(t, cfg.LogFilePath()); !strings.Contains(out, "daemon started") {
		t.Fatalf("log file missing line: %q", out)
	}
	if events, _ := hub.Tail(10); len(events) != 1 {
		t.Fatalf("expected one streamed event, got %d", len(events))
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{OutputPaths: []string{filepath.Join(t.TempDir(), "w.log")}, Stream: hub})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.WarnWithContext(logger, "fallback image used", "merge_fallback", logging.String(logging.FieldImpact, "scene uses character art"))

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	fields := events[0].Fields
	if fields[logging.FieldEventType] != "merge_fallback" || fields[logging.FieldErrorHint] == "" {
		t.Fatalf("expected injected fields, got %v", fields)
	}
	if fields[logging.FieldImpact] != "scene uses character art" {
		t.Fatalf("caller impact overwritten: %v", fields)
	}
}
