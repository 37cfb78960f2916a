package main

import (
	"encoding/json"
	"testing"

	"scriptreel/internal/daemonctl"
)

func TestStatusOnline(t *testing.T) {
	env := setupCLITestEnv(t)
	submitSample(t, env)

	out, _, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "== Dependencies ==")
	requireContains(t, out, "Pending")
}

func TestStatusOfflineReadsQueueDatabase(t *testing.T) {
	env := setupCLITestEnv(t)
	submitSample(t, env)
	url := env.server.URL
	env.server.Close()

	out, _, err := runCLIWithAPI(t, env, url, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Pending")

	out, _, err = runCLIWithAPI(t, env, url, "--json", "status")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var snap daemonctl.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Status != nil || snap.Offline == "" {
		t.Fatalf("expected an offline snapshot, got %+v", snap)
	}
	if snap.QueueStats["pending"] != 1 {
		t.Fatalf("expected one pending generation, got %v", snap.QueueStats)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	url := env.server.URL
	env.server.Close()

	out, _, err := runCLIWithAPI(t, env, url, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
