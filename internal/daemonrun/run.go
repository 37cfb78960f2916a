// Package daemonrun assembles the daemon process: logging, telemetry, the
// store, vendor capabilities, the workflow manager and the HTTP API.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"scriptreel/internal/capability"
	"scriptreel/internal/config"
	"scriptreel/internal/daemon"
	"scriptreel/internal/deps"
	"scriptreel/internal/logging"
	"scriptreel/internal/merge"
	"scriptreel/internal/notifications"
	"scriptreel/internal/preflight"
	"scriptreel/internal/progress"
	"scriptreel/internal/queue"
	"scriptreel/internal/stage"
	"scriptreel/internal/telemetry"
	"scriptreel/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the daemon and blocks until SIGINT, SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logHub := logging.NewStreamHub(4096)
	logger, err := logging.NewFromConfig(cfg, logHub, opts.LogLevel, opts.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	shutdownTelemetry, err := telemetry.Setup(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", logging.Error(err))
		}
	}()

	logDependencySnapshot(logger, cfg)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open generation store", logging.Error(err))
		return err
	}

	storage, err := capability.NewStorage(signalCtx, cfg)
	if err != nil {
		store.Close()
		return fmt.Errorf("open media storage: %w", err)
	}
	if closer, ok := storage.(io.Closer); ok {
		defer closer.Close()
	}

	metrics := telemetry.New()
	hub := progress.NewHub(logger,
		progress.WithRecorder(store),
		progress.WithSinks(progress.SinksFromConfig(signalCtx, cfg, logger)...),
	)
	defer hub.Close()

	vendor := capability.NewHTTPVendorFromConfig(cfg)
	orchestrator, err := newOrchestrator(cfg, store, vendor, storage, logger, metrics)
	if err != nil {
		store.Close()
		return err
	}

	manager, err := workflow.NewManager(workflow.Options{
		Config:     cfg,
		Store:      store,
		Generators: generators(cfg, store, vendor),
		Merger:     orchestrator,
		Hub:        hub,
		Notifier:   notifications.NewService(cfg),
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("create workflow: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, manager, logHub)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, directory permissions and the lock file"),
			logging.String(logging.FieldImpact, "no generations will be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("scriptreel daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// generators binds the three asset kinds to the vendor gateway. Sound cues
// are voiced only when sound generation is enabled.
func generators(cfg *config.Config, store *queue.Store, vendor *capability.HTTPVendor) []stage.Generator {
	audio := &stage.AudioGenerator{Speech: vendor}
	if cfg.Vendor.SoundEnabled {
		audio.Sound = vendor
	}
	return []stage.Generator{
		audio,
		&stage.ImageGenerator{Images: vendor},
		&stage.VideoGenerator{Videos: vendor, References: store},
	}
}

func newOrchestrator(cfg *config.Config, store *queue.Store, vendor *capability.HTTPVendor, storage capability.Storage, logger *slog.Logger, metrics *telemetry.Instruments) (*merge.Orchestrator, error) {
	opts := merge.OrchestratorOptions{
		Recorder: store,
		Renderer: merge.NewFFmpegRenderer(cfg.Merge.FFmpegBinary),
		Storage:  storage,
		WorkDir:  cfg.WorkDir(),
		Logger:   logger,
		Metrics:  metrics,
	}
	if cfg.Vendor.LipSyncEnabled {
		opts.LipSync = vendor
	}
	o, err := merge.NewOrchestrator(opts)
	if err != nil {
		return nil, fmt.Errorf("create merge orchestrator: %w", err)
	}
	return o, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("vendor_configured", cfg.Vendor.BaseURL != ""),
		logging.Bool("vendor_key_present", cfg.Vendor.APIKey != ""),
		logging.Bool("lipsync_enabled", cfg.Vendor.LipSyncEnabled),
		logging.Bool("sound_enabled", cfg.Vendor.SoundEnabled),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.String("database_driver", cfg.Database.Driver),
	}
	statuses := preflight.CheckSystemDeps(cfg)
	for _, dep := range statuses {
		attrs = append(attrs,
			logging.Bool(strings.ToLower(dep.Name)+"_available", dep.Available),
			logging.String(strings.ToLower(dep.Name)+"_binary", dep.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, dep := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required binary missing", "dependency_missing",
			logging.String("dependency", dep.Name),
			logging.String("detail", dep.Detail),
			logging.String(logging.FieldErrorHint, "install it or set merge.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "merges fail until it is available"),
		)
	}
}
