package testsupport

import (
	"context"
	"testing"

	"scriptreel/internal/config"
	"scriptreel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewGeneration persists a pending generation with the given assets.
func NewGeneration(t testing.TB, store *queue.Store, script string, assets ...*queue.Asset) *queue.Generation {
	t.Helper()

	g := &queue.Generation{ScriptText: script, QualityTier: queue.TierDraft}
	if err := store.CreateGeneration(context.Background(), g, nil, assets); err != nil {
		t.Fatalf("store.CreateGeneration: %v", err)
	}
	return g
}

// MoveTo forces a generation into status through a sequence of guarded
// updates starting from its current status.
func MoveTo(t testing.TB, store *queue.Store, g *queue.Generation, status queue.Status) {
	t.Helper()

	current, err := store.GetGeneration(context.Background(), g.ID)
	if err != nil || current == nil {
		t.Fatalf("load generation %s: %v", g.ID, err)
	}
	ok, err := store.UpdateGenerationIfStatus(context.Background(), g.ID, queue.Transition{From: current.Status, To: status})
	if err != nil || !ok {
		t.Fatalf("move %s to %s: ok=%v err=%v", g.ID, status, ok, err)
	}
	g.Status = status
}

// SceneNumber returns a pointer to n for asset literals.
func SceneNumber(n int) *int {
	return &n
}
