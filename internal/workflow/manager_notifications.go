package workflow

import (
	"context"
	"errors"
	"time"

	"scriptreel/internal/logging"
	"scriptreel/internal/notifications"
	"scriptreel/internal/queue"
)

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
		} else {
			m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}

// onStarted announces a generation leaving pending and opens a queue run
// when none is active.
func (m *Manager) onStarted(ctx context.Context, g *queue.Generation) {
	m.publish(ctx, notifications.EventGenerationStarted, notifications.Payload{
		"generationID": g.ID,
		"scriptRef":    g.ScriptRef,
	})

	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not get queue stats for start notification")
		} else {
			m.logger.Warn("queue stats unavailable for start notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "queue start notification will not be sent"),
			)
		}
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = m.now()
	m.mu.Unlock()

	m.publish(ctx, notifications.EventQueueStarted, notifications.Payload{"count": countWorkItems(stats)})
}

// onFinished closes a generation's progress stream, sends its terminal
// notification and checks whether the queue drained. detail is the output
// URL for completed generations and the error message otherwise.
func (m *Manager) onFinished(ctx context.Context, g *queue.Generation, status, detail string) {
	m.hub.Finish(ctx, g.ID, status, detail)

	payload := notifications.Payload{"generationID": g.ID, "scriptRef": g.ScriptRef}
	switch queue.Status(status) {
	case queue.StatusCompleted:
		payload["url"] = detail
		m.publish(ctx, notifications.EventGenerationCompleted, payload)
	case queue.StatusFailed:
		payload["error"] = detail
		m.publish(ctx, notifications.EventGenerationFailed, payload)
	}

	if latest, err := m.store.GetGeneration(ctx, g.ID); err == nil && latest != nil {
		m.setLastGeneration(latest)
	} else {
		m.setLastGeneration(g)
	}
	m.checkQueueCompletion(ctx)
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not check queue completion")
		} else {
			m.logger.Warn("queue stats unavailable for completion notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "completion notification will not be sent"),
			)
		}
		return
	}
	if countActive(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	var duration time.Duration
	if !start.IsZero() {
		duration = m.now().Sub(start)
	}
	m.publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats[queue.StatusCompleted],
		"failed":    stats[queue.StatusFailed] + stats[queue.StatusRetrievalFailed],
		"duration":  duration,
	})
}

func countWorkItems(stats map[queue.Status]int) int {
	total := 0
	for status, count := range stats {
		if status.IsTerminal() {
			continue
		}
		total += count
	}
	return total
}

// countActive counts generations that still have work ahead of them.
func countActive(stats map[queue.Status]int) int {
	total := 0
	for _, status := range workingStatuses {
		total += stats[status]
	}
	for _, status := range []queue.Status{
		queue.StatusPending,
		queue.StatusAudioCompleted,
		queue.StatusImagesCompleted,
		queue.StatusVideoCompleted,
		queue.StatusRetrying,
	} {
		total += stats[status]
	}
	return total
}
