package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinariesKeepsOrder(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := CheckBinaries([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "  clearly-not-present-binary "},
		{Name: "Unset", Optional: true},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected present binary to resolve, got %#v", results[0])
	}
	if results[1].Available || results[1].Command != "clearly-not-present-binary" || results[1].Detail == "" {
		t.Fatalf("unexpected missing status %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected unset status %#v", results[2])
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

func TestCheckFFmpegPrefersSiblingProbe(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	ffprobePath := filepath.Join(tmp, executableName("ffprobe"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(ffmpegPath, script, 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	if err := os.WriteFile(ffprobePath, script, 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}

	results := CheckFFmpeg(ffmpegPath)
	if len(results) != 2 {
		t.Fatalf("expected ffmpeg and ffprobe statuses, got %d", len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected ffmpeg to be available, got %#v", results[0])
	}
	if !results[1].Available || results[1].Command != ffprobePath {
		t.Fatalf("expected sibling ffprobe %q, got %#v", ffprobePath, results[1])
	}
}

func TestCheckFFmpegProbePathFallback(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(ffmpegPath, script, 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}

	binDir := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	ffprobePath := filepath.Join(binDir, executableName("ffprobe"))
	if err := os.WriteFile(ffprobePath, script, 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckFFmpeg(ffmpegPath)
	if !results[1].Available || results[1].Command != ffprobePath {
		t.Fatalf("expected PATH ffprobe %q, got %#v", ffprobePath, results[1])
	}
}

func TestCheckFFmpegNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	results := CheckFFmpeg("")
	for _, status := range results {
		if status.Available {
			t.Fatalf("expected %s to be unavailable", status.Name)
		}
		if status.Detail == "" {
			t.Fatalf("expected detail message for %s", status.Name)
		}
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
