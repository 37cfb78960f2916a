package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scriptreel/internal/logging"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
)

// schedulable are the statuses the scheduler moves forward. Merge stages
// belong to the merge lane.
var schedulable = []queue.Status{
	queue.StatusPending,
	queue.StatusGeneratingAudio,
	queue.StatusAudioCompleted,
	queue.StatusGeneratingImages,
	queue.StatusImagesCompleted,
	queue.StatusGeneratingVideo,
	queue.StatusRetrying,
}

// maxSteps bounds how far one evaluation walks a generation. A script with
// no assets of some kind can cross several statuses at once.
const maxSteps = 16

func (m *Manager) runScheduler(ctx context.Context) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.scheduleAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-m.events:
			if _, err := m.Evaluate(ctx, id); err != nil {
				m.noteEvaluateError(ctx, id, err)
			}
		case <-ticker.C:
			m.scheduleAll(ctx)
		}
	}
}

func (m *Manager) scheduleAll(ctx context.Context) {
	generations, err := m.store.ListGenerations(ctx, schedulable...)
	if err != nil {
		if ctx.Err() == nil {
			m.setLastError(err)
			logging.ErrorWithContext(m.logger, "failed to list schedulable generations", "scheduler_list_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	for _, g := range generations {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.Evaluate(ctx, g.ID); err != nil {
			m.noteEvaluateError(ctx, g.ID, err)
		}
	}
	if video, err := m.store.ListGenerations(ctx, queue.StatusVideoCompleted); err == nil && len(video) > 0 {
		m.wakeMerge()
	}
}

func (m *Manager) noteEvaluateError(ctx context.Context, id string, err error) {
	if ctx.Err() != nil || errors.Is(err, services.ErrTerminal) || errors.Is(err, services.ErrNotFound) {
		return
	}
	m.setLastError(err)
	logging.WarnWithContext(logging.WithContext(services.WithGenerationID(ctx, id), m.logger),
		"generation evaluation failed", "scheduler_evaluate_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
		logging.String(logging.FieldImpact, "generation is re-evaluated on the next poll"),
	)
}

// Evaluate moves a generation forward as far as its assets allow and
// returns the status it ended in. Generations are evaluated independently;
// concurrent evaluations of the same id are settled by the store's guarded
// updates.
func (m *Manager) Evaluate(ctx context.Context, id string) (queue.Status, error) {
	ctx = services.WithGenerationID(ctx, id)
	var status queue.Status
	for range maxSteps {
		g, err := m.store.GetGeneration(ctx, id)
		if err != nil {
			return status, err
		}
		if g == nil {
			return status, services.Wrap(services.ErrNotFound, "workflow", "evaluate", "generation "+id+" not found", nil)
		}
		next, moved, err := m.step(ctx, g)
		if err != nil {
			return g.Status, err
		}
		status = next
		if !moved {
			return status, nil
		}
	}
	return status, nil
}

func (m *Manager) step(ctx context.Context, g *queue.Generation) (queue.Status, bool, error) {
	switch g.Status {
	case queue.StatusPending:
		to, moved, err := m.machine.Advance(ctx, g.ID, EventStart)
		if moved {
			m.onStarted(ctx, g)
		}
		return to, moved, err
	case queue.StatusAudioCompleted, queue.StatusImagesCompleted:
		return m.machine.Advance(ctx, g.ID, EventNextStage)
	case queue.StatusGeneratingAudio, queue.StatusGeneratingImages, queue.StatusGeneratingVideo:
		return m.checkBarrier(ctx, g)
	case queue.StatusRetrying:
		return m.machine.Resume(ctx, g.ID)
	case queue.StatusVideoCompleted:
		m.wakeMerge()
	}
	return g.Status, false, nil
}

// checkBarrier advances a generating stage once every asset of its kind is
// settled, or fails it when a required asset failed or the stage timed out.
func (m *Manager) checkBarrier(ctx context.Context, g *queue.Generation) (queue.Status, bool, error) {
	kind, _ := g.Status.GeneratingKind()
	b, err := m.store.KindBarrier(ctx, g.ID, kind)
	if err != nil {
		return g.Status, false, err
	}
	m.reportStage(ctx, g, kind, b)

	switch {
	case b.Broken():
		reason, err := m.store.FirstAssetError(ctx, g.ID, kind)
		if err != nil {
			return g.Status, false, err
		}
		if reason == "" {
			reason = fmt.Sprintf("required %s asset failed", kind)
		}
		cause := services.Wrap(services.ErrGenerationPermanent, string(kind), "barrier", reason, nil)
		return m.failStage(ctx, g, g.Status, kind, reason, cause)
	case b.Met():
		return m.machine.Advance(ctx, g.ID, EventBarrierMet)
	case m.timedOut(g):
		cause := services.Wrap(services.ErrBarrierTimeout, string(kind), "barrier",
			fmt.Sprintf("%s stage did not settle within %s", kind, m.stageTimeout), nil)
		return m.failStage(ctx, g, g.Status, kind, cause.Error(), cause)
	}
	return g.Status, false, nil
}

func (m *Manager) timedOut(g *queue.Generation) bool {
	if m.stageTimeout <= 0 || g.StageStartedAt == nil {
		return false
	}
	return m.now().Sub(*g.StageStartedAt) > m.stageTimeout
}

func (m *Manager) reportStage(ctx context.Context, g *queue.Generation, kind queue.AssetKind, b queue.BarrierSummary) {
	total := b.RequiredTotal + b.OptionalTotal
	done := b.RequiredCompleted + b.RequiredFailed + b.OptionalTerminal
	percent := 100.0
	if total > 0 {
		percent = 100 * float64(done) / float64(total)
	}
	message := fmt.Sprintf("%d/%d %s assets settled", done, total, kind)
	if err := m.hub.Job(g.ID).Update(ctx, deriveStageLabel(g.Status), percent, message); err != nil && !errors.Is(err, services.ErrTerminal) {
		m.logger.Debug("stage progress update failed", logging.Error(err))
	}
}
