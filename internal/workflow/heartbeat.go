package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scriptreel/internal/logging"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
)

// HeartbeatMonitor renews generation leases and reclaims abandoned work.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	leaseTimeout      time.Duration
	staleAfter        time.Duration
	now               func() time.Time
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, leaseTimeout, staleAfter time.Duration, now func() time.Time) *HeartbeatMonitor {
	if now == nil {
		now = time.Now
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logging.NewComponentLogger(logger, "workflow-heartbeat"),
		heartbeatInterval: interval,
		leaseTimeout:      leaseTimeout,
		staleAfter:        staleAfter,
		now:               now,
	}
}

// ReclaimStaleGenerations returns merge-stage generations whose lease holder
// stopped sending heartbeats to video_completed.
func (h *HeartbeatMonitor) ReclaimStaleGenerations(ctx context.Context) error {
	if h.leaseTimeout <= 0 {
		return nil
	}
	reclaimed, err := h.store.ReclaimStaleGenerations(ctx, h.now().Add(-h.leaseTimeout))
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale generations",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "generation_reclaimed"),
		)
	}
	return nil
}

// SweepStaleAssets fails assets whose worker disappeared. It is
// idempotent; a second run over the same rows changes nothing.
func (h *HeartbeatMonitor) SweepStaleAssets(ctx context.Context) (int64, error) {
	if h.staleAfter <= 0 {
		return 0, nil
	}
	swept, err := h.store.SweepStaleAssets(ctx, h.now().UTC(), h.staleAfter)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		h.logger.Info("swept stale assets",
			logging.Int64("count", swept),
			logging.String(logging.FieldEventType, "asset_sweep"),
		)
	}
	return swept, nil
}

// StartLoop renews the lease owner holds on a generation until ctx ends.
// onLost runs once when the lease can no longer be renewed.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, generationID, owner string, onLost func()) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.UpdateGenerationHeartbeat(ctx, generationID, owner)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				logger.Debug("daemon shutting down, heartbeat update cancelled")
				return
			case errors.Is(err, services.ErrStatusConflict):
				logging.WarnWithContext(logger, "generation lease lost", "heartbeat_lease_lost",
					logging.String("owner", owner),
					logging.String(logging.FieldErrorHint, "the generation was cancelled or reclaimed by another worker"),
					logging.String(logging.FieldImpact, "in-flight merge is abandoned"),
				)
				if onLost != nil {
					onLost()
				}
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
