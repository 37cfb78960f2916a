package workflow

import (
	"context"
	"fmt"
	"time"

	"scriptreel/internal/logging"
	"scriptreel/internal/services"
	"scriptreel/internal/stage"
)

func workerName(instance string, index int) string {
	return fmt.Sprintf("%s-w%d", instance, index+1)
}

// runWorker claims due assets of every kind the runner serves until ctx
// ends. An idle pass waits one poll interval.
func (m *Manager) runWorker(ctx context.Context, name string) error {
	ctx = services.WithWorker(ctx, name)
	logger := logging.WithContext(ctx, m.logger.With(logging.String(logging.FieldComponent, "workflow-worker")))
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	kinds := m.runner.Kinds()
	for {
		if ctx.Err() != nil {
			return nil
		}
		busy := false
		for _, kind := range kinds {
			outcome, err := m.runner.RunNext(ctx, kind, name)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.setLastError(err)
				logging.WarnWithContext(logger, "asset processing failed", "worker_run_failed",
					logging.String("kind", string(kind)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue database access"),
					logging.String(logging.FieldImpact, "asset stays leased until its lease expires"),
				)
				continue
			}
			if outcome != stage.OutcomeIdle {
				busy = true
			}
		}
		if busy {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.pollInterval):
		}
	}
}

// runSweeper periodically takes over abandoned assets and generation leases.
func (m *Manager) runSweeper(ctx context.Context) error {
	interval := m.cfg.SweepInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	if _, err := m.heartbeat.SweepStaleAssets(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(m.logger, "stale asset sweep failed", "asset_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "abandoned assets stay processing until the next sweep"),
		)
	}
	if err := m.heartbeat.ReclaimStaleGenerations(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(m.logger, "reclaim stale generations failed", "heartbeat_reclaim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "stuck merges remain until the next sweep"),
		)
	}
}
