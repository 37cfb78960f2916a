package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scriptreel/internal/logging"
	"scriptreel/internal/notifications"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
)

// failStage records a failed stage. The generation retries the stage while
// pipeline retries remain and fails with reason once they are exhausted.
func (m *Manager) failStage(ctx context.Context, g *queue.Generation, from queue.Status, kind queue.AssetKind, reason string, cause error) (queue.Status, bool, error) {
	logger := logging.WithContext(ctx, m.logger)
	message := classifyStageFailure(from, reason, cause)

	to, moved, err := m.machine.FailStage(ctx, g.ID, from, kind, message)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not record stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
		return from, false, err
	}
	if !moved {
		return from, false, nil
	}
	m.setLastError(cause)

	details := services.Details(cause)
	attrs := []logging.Attr{
		logging.String("from", string(from)),
		logging.String("resolved_status", string(to)),
		logging.String("error_message", message),
		logging.String("error_kind", string(details.Kind)),
		logging.String("error_operation", details.Operation),
		logging.String(logging.FieldErrorHint, details.Hint),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else if cause != nil {
		attrs = append(attrs, logging.Error(cause))
	}

	if to != queue.StatusFailed {
		logger.Info("pipeline stage scheduled for retry", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "stage_retry"))...)...)
		return to, true, nil
	}

	attrs = append(attrs,
		logging.Alert("stage_failure"),
		logging.String(logging.FieldEventType, "stage_failure"),
	)
	logger.Error("generation failed", logging.Args(attrs...)...)

	m.notifyStageError(ctx, g, from, cause)
	m.onFinished(ctx, g, string(queue.StatusFailed), message)
	return to, true, nil
}

func classifyStageFailure(from queue.Status, reason string, cause error) string {
	if message := strings.TrimSpace(reason); message != "" {
		return message
	}
	if cause != nil {
		if message := strings.TrimSpace(services.Details(cause).Message); message != "" {
			return message
		}
	}
	return fmt.Sprintf("%s failed", deriveStageLabel(from))
}

func (m *Manager) notifyStageError(ctx context.Context, g *queue.Generation, from queue.Status, cause error) {
	if cause == nil {
		return
	}
	m.publish(ctx, notifications.EventError, notifications.Payload{
		"error":   cause,
		"context": fmt.Sprintf("%s (generation %s)", deriveStageLabel(from), g.ID),
	})
}
