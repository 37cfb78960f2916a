package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scriptreel/internal/api"
	"scriptreel/internal/config"
	"scriptreel/internal/deps"
	"scriptreel/internal/logging"
	"scriptreel/internal/preflight"
	"scriptreel/internal/queue"
	"scriptreel/internal/workflow"
)

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	service  *api.PipelineService
	logHub   *logging.StreamHub
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Database     queue.DatabaseHealth
	LockFilePath string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies. logHub may be nil.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, logHub *logging.StreamHub) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		service:  api.NewPipelineService(cfg, store, wf, logger),
		logHub:   logHub,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted work, and launches the
// workflow manager and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scriptreel daemon instance is already running")
	}

	if err := d.preflight(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	if reset, err := d.store.ResetStuckProcessing(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset interrupted work: %w", err)
	} else if reset > 0 {
		d.logger.Info("interrupted work returned to the queue",
			logging.Int64("rows", reset),
			logging.String(logging.FieldEventType, "daemon_recovered_work"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("scriptreel daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// preflight fails the start when a working directory is unusable. An
// unreachable media gateway only warns: generation stays queued until it is.
func (d *Daemon) preflight(ctx context.Context) error {
	var fatal []string
	for _, r := range preflight.RunAll(ctx, d.cfg) {
		if r.Passed {
			continue
		}
		if strings.HasSuffix(r.Name, "directory") || r.Name == "Media storage" {
			fatal = append(fatal, r.Name+": "+r.Detail)
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "check vendor.base_url and vendor.api_key"),
			logging.String(logging.FieldImpact, "asset generation will retry until the gateway answers"),
		)
	}
	for _, dep := range preflight.CheckSystemDeps(d.cfg) {
		if !dep.Available {
			logging.WarnWithContext(d.logger, "dependency unavailable", "dependency_missing",
				logging.String("dependency", dep.Name),
				logging.String("detail", dep.Detail),
				logging.String(logging.FieldErrorHint, "install ffmpeg or set merge.ffmpeg_binary"),
				logging.String(logging.FieldImpact, "merges will fail until the binary is found"),
			)
		}
	}
	if len(fatal) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(fatal, "; "))
	}
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("scriptreel daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Service returns the pipeline entry points the API serves.
func (d *Daemon) Service() *api.PipelineService {
	return d.service
}

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// Addr returns the address the API server listens on, or "" when disabled.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler returns the API router, or nil when the API is disabled. It lets
// callers serve the API without starting the workflow.
func (d *Daemon) Handler() http.Handler {
	if d.api == nil {
		return nil
	}
	return d.api.server.Handler
}

// ResetStuck returns in-flight work to its resting state.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.CheckHealth(ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		Database:     health,
		LockFilePath: d.lockPath,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
}
