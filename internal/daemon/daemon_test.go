package daemon_test

import (
	"context"
	"testing"
	"time"

	"scriptreel/internal/config"
	"scriptreel/internal/daemon"
	"scriptreel/internal/queue"
	"scriptreel/internal/stage"
	"scriptreel/internal/testsupport"
	"scriptreel/internal/workflow"
)

type noopGenerator struct{ kind queue.AssetKind }

func (g noopGenerator) Kind() queue.AssetKind { return g.kind }
func (g noopGenerator) Generate(context.Context, *queue.Asset) (stage.Result, error) {
	return stage.Result{URL: "file:///noop"}, nil
}
func (g noopGenerator) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(g.kind))
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	mgr, err := workflow.NewManager(workflow.Options{
		Config:     cfg,
		Store:      store,
		Generators: []stage.Generator{noopGenerator{queue.KindAudio}, noopGenerator{queue.KindImage}, noopGenerator{queue.KindVideo}},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	d, err := daemon.New(cfg, store, nil, mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if d.Addr() == "" {
		t.Fatal("expected the API server to be listening")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected the lock to reject a second daemon")
	}
}

func TestDaemonStartResetsInterruptedMerges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	d := newDaemon(t, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	g := testsupport.NewGeneration(t, store, "ALICE: hi")
	testsupport.MoveTo(t, store, g, queue.StatusMergingAudio)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	current, err := store.GetGeneration(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if current.Status == queue.StatusMergingAudio {
		t.Fatal("expected the interrupted merge to leave merging_audio")
	}
}
