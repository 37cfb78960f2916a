package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"scriptreel/internal/api"
	"scriptreel/internal/queue"
)

func submitSample(t *testing.T, env *cliTestEnv, extra ...string) string {
	t.Helper()
	args := append([]string{"--json", "submit", env.scriptPath, "--roster", env.rosterPath}, extra...)
	out, _, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var resp api.StartResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode submit output %q: %v", out, err)
	}
	if resp.ID == "" || resp.Status != string(queue.StatusPending) {
		t.Fatalf("unexpected submit response %+v", resp)
	}
	return resp.ID
}

func TestSubmitCreatesPendingGeneration(t *testing.T) {
	env := setupCLITestEnv(t)
	id := submitSample(t, env, "--tier", "standard")

	g, err := env.store.GetGeneration(context.Background(), id)
	if err != nil || g == nil {
		t.Fatalf("GetGeneration: %v %v", g, err)
	}
	if g.ScriptRef != "kitchen.txt" {
		t.Fatalf("expected the file name as script ref, got %q", g.ScriptRef)
	}
	if g.QualityTier != queue.TierStandard {
		t.Fatalf("expected standard tier, got %s", g.QualityTier)
	}
	assets, err := env.store.ListAssets(context.Background(), id, "")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) == 0 {
		t.Fatal("expected planned assets for the submitted script")
	}
}

func TestSubmitHumanOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "submit", env.scriptPath, "--ref", "pilot")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Submitted generation")
	requireContains(t, out, "(pending)")
}

func TestSubmitRejectsEmptyScript(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "submit", "-"); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty script error, got %v", err)
	}
}

func TestSubmitRejectsUnknownTier(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, env, "submit", env.scriptPath, "--tier", "cinematic")
	if err == nil {
		t.Fatal("expected an error for an unknown tier")
	}
	requireContains(t, err.Error(), "qualityTier")
}

func TestStatusListAndAssets(t *testing.T) {
	env := setupCLITestEnv(t)
	id := submitSample(t, env)

	out, _, err := runCLI(t, env, "status", id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "Pending")
	requireContains(t, out, "kitchen.txt")

	out, _, err = runCLI(t, env, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, id)

	out, _, err = runCLI(t, env, "list", "--status", "completed")
	if err != nil {
		t.Fatalf("list --status: %v", err)
	}
	requireContains(t, out, "No generations")

	out, _, err = runCLI(t, env, "--json", "assets", id, "--kind", "audio")
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	var resp api.AssetListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode assets: %v", err)
	}
	if resp.GenerationID != id || len(resp.Assets) == 0 {
		t.Fatalf("unexpected assets response %+v", resp)
	}
	for _, a := range resp.Assets {
		if a.Kind != "audio" {
			t.Fatalf("kind filter leaked a %s asset", a.Kind)
		}
	}
}

func TestStatusUnknownGenerationReportsNotFound(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, env, "status", "does-not-exist")
	if err == nil {
		t.Fatal("expected an error for a missing generation")
	}
	requireContains(t, err.Error(), "not found")
}

func TestTierUpdatesPendingGeneration(t *testing.T) {
	env := setupCLITestEnv(t)
	id := submitSample(t, env)

	out, _, err := runCLI(t, env, "tier", id, "premium")
	if err != nil {
		t.Fatalf("tier: %v", err)
	}
	requireContains(t, out, "quality tier set to premium")

	g, err := env.store.GetGeneration(context.Background(), id)
	if err != nil || g.QualityTier != queue.TierPremium {
		t.Fatalf("expected premium tier, got %+v (%v)", g, err)
	}
}

func TestCancelThenWatchReportsCancelled(t *testing.T) {
	env := setupCLITestEnv(t)
	id := submitSample(t, env)

	out, _, err := runCLI(t, env, "cancel", id)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "cancelled")

	if _, _, err := runCLI(t, env, "cancel", id); err == nil {
		t.Fatal("cancelling twice should fail")
	}
	if _, _, err := runCLI(t, env, "tier", id, "draft"); err == nil {
		t.Fatal("changing the tier of a cancelled generation should fail")
	}

	out, _, err = runCLI(t, env, "watch", id)
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("expected watch to report the cancellation, got %v", err)
	}
	requireContains(t, out, "[WARN]")
}

func TestCommandsReportUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	url := env.server.URL
	env.server.Close()

	_, _, err := runCLIWithAPI(t, env, url, "list")
	if err == nil {
		t.Fatal("expected an error with the daemon down")
	}
	requireContains(t, err.Error(), "scriptreel start")
}
