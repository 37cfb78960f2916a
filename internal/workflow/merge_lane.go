package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scriptreel/internal/logging"
	"scriptreel/internal/mapper"
	"scriptreel/internal/merge"
	"scriptreel/internal/notifications"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
)

// Stage data keys written by the merge lane.
const (
	StageDataAudioTracks = "audio_tracks"
	StageDataOutput      = "output"
)

// MergeResult is the stage data recorded for a completed merge.
type MergeResult struct {
	OperationID string  `json:"operation_id"`
	URL         string  `json:"url"`
	Key         string  `json:"key"`
	Segments    int     `json:"segments"`
	Duration    float64 `json:"duration_seconds"`
}

func (m *Manager) runMergeLane(ctx context.Context) error {
	owner := m.instance + "-merge"
	ctx = services.WithWorker(ctx, owner)
	for {
		if ctx.Err() != nil {
			return nil
		}
		g, err := m.store.ClaimGeneration(ctx, queue.StatusVideoCompleted, queue.StatusMergingAudio, owner)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.setLastError(err)
			logging.ErrorWithContext(m.logger, "failed to claim generation for merge", "merge_claim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		if g == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-m.mergeWake:
			case <-time.After(m.pollInterval):
			}
			continue
		}
		m.metrics.Transition(ctx, string(queue.StatusVideoCompleted), string(queue.StatusMergingAudio))
		m.Merge(ctx, g, owner)
	}
}

// Merge renders a generation already claimed into merging_audio by owner.
func (m *Manager) Merge(ctx context.Context, g *queue.Generation, owner string) {
	ctx = services.WithGenerationID(ctx, g.ID)
	ctx = services.WithStage(ctx, "merge")
	logger := logging.WithContext(ctx, m.logger)

	mctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go m.heartbeat.StartLoop(mctx, &wg, g.ID, owner, cancel)
	defer func() {
		cancel()
		wg.Wait()
	}()

	status := queue.StatusMergingAudio
	plan, err := m.buildMergePlan(mctx, g)
	if err != nil {
		m.mergeFailed(ctx, g, status, err)
		return
	}

	job := m.hub.Job(g.ID)
	hooks := merge.Hooks{
		Phase: func(hctx context.Context, phase merge.Phase) error {
			var (
				event Event
				to    queue.Status
			)
			switch phase {
			case merge.PhaseLipSync:
				event, to = EventMerged, queue.StatusApplyingLipSync
			case merge.PhaseCombine:
				event, to = EventLipSynced, queue.StatusCombining
			default:
				return nil
			}
			ok, err := m.machine.Transition(hctx, g.ID, status, event, to, "")
			if err != nil {
				return err
			}
			if !ok {
				return services.Wrap(services.ErrCancelled, "workflow", "merge", "generation left "+string(status), nil)
			}
			status = to
			return nil
		},
		Progress: func(hctx context.Context, fraction float64, message string) {
			if err := job.Update(hctx, deriveStageLabel(status), 100*fraction, message); err != nil && !errors.Is(err, services.ErrTerminal) {
				logger.Debug("merge progress update failed", logging.Error(err))
			}
		},
	}

	out, err := m.merger.Run(mctx, g.ID, plan, hooks)
	switch {
	case err == nil:
		m.mergeCompleted(ctx, g, status, out)
	case errors.Is(err, merge.ErrRetrievalFailed):
		m.retrievalFailed(ctx, g, status, err)
	case errors.Is(err, services.ErrCancelled), errors.Is(err, services.ErrTerminal):
		logger.Info("merge abandoned; generation is no longer active",
			logging.String(logging.FieldEventType, "merge_abandoned"),
		)
	case ctx.Err() != nil:
		logger.Info("merge interrupted by shutdown; lease will be reclaimed",
			logging.String(logging.FieldEventType, "merge_interrupted"),
		)
	case mctx.Err() != nil:
		logger.Info("merge abandoned after lease loss",
			logging.String(logging.FieldEventType, "merge_abandoned"),
		)
	default:
		m.mergeFailed(ctx, g, status, err)
	}
}

func (m *Manager) buildMergePlan(ctx context.Context, g *queue.Generation) (merge.Plan, error) {
	scenes, err := m.store.ListScenes(ctx, g.ID)
	if err != nil {
		return merge.Plan{}, err
	}
	audio, err := m.store.ListAssets(ctx, g.ID, queue.KindAudio)
	if err != nil {
		return merge.Plan{}, err
	}
	videos, err := m.store.ListAssets(ctx, g.ID, queue.KindVideo)
	if err != nil {
		return merge.Plan{}, err
	}
	images, err := m.store.ListAssets(ctx, g.ID, queue.KindImage)
	if err != nil {
		return merge.Plan{}, err
	}

	tracks := mapper.Map(mapper.GroupByCategory(audio), videos)
	logger := logging.WithContext(ctx, m.logger)
	for _, gap := range tracks.Gaps {
		logging.WarnWithContext(logger, "audio asset not placed in a scene", "mapping_gap",
			logging.String(logging.FieldAssetID, gap.AssetID),
			logging.String("category", gap.Category),
			logging.String("reason", gap.Reason),
			logging.String(logging.FieldErrorHint, "set scene_id or scene metadata on the asset"),
			logging.String(logging.FieldImpact, "asset is kept under unmapped and left out of the mix"),
		)
	}
	if err := m.store.SetStageData(ctx, g.ID, StageDataAudioTracks, tracks); err != nil {
		return merge.Plan{}, err
	}
	return merge.BuildPlan(scenes, videos, images, tracks, g.QualityTier, m.mergeOpts), nil
}

func (m *Manager) mergeCompleted(ctx context.Context, g *queue.Generation, status queue.Status, out merge.Output) {
	result := MergeResult{OperationID: out.OperationID, URL: out.URL, Key: out.Key, Segments: out.Segments, Duration: out.Duration}
	if err := m.store.SetStageData(ctx, g.ID, StageDataOutput, result); err != nil {
		m.logger.Warn("record merge output failed", logging.String(logging.FieldGenerationID, g.ID), logging.Error(err))
	}
	ok, err := m.machine.Transition(ctx, g.ID, status, EventCombined, queue.StatusCompleted, "")
	if err != nil || !ok {
		m.noteEvaluateError(ctx, g.ID, errOrConflict(err, g.ID))
		return
	}
	m.onFinished(ctx, g, string(queue.StatusCompleted), out.URL)
}

func (m *Manager) retrievalFailed(ctx context.Context, g *queue.Generation, status queue.Status, cause error) {
	ok, err := m.machine.Transition(ctx, g.ID, status, EventRetrievalFailed, queue.StatusRetrievalFailed, cause.Error())
	if err != nil || !ok {
		m.noteEvaluateError(ctx, g.ID, errOrConflict(err, g.ID))
		return
	}
	logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "merged output not retrievable", "merge_retrieval_failed",
		logging.Error(cause),
		logging.Alert("retrieval_failed"),
		logging.String(logging.FieldErrorHint, "check the storage backend; the render can be restarted with a new generation"),
	)
	m.publish(ctx, notifications.EventRetrievalFailed, notifications.Payload{"generationID": g.ID, "scriptRef": g.ScriptRef})
	m.onFinished(ctx, g, string(queue.StatusRetrievalFailed), "")
}

func (m *Manager) mergeFailed(ctx context.Context, g *queue.Generation, status queue.Status, cause error) {
	if _, _, err := m.failStage(ctx, g, status, "", cause.Error(), cause); err != nil {
		m.noteEvaluateError(ctx, g.ID, err)
	}
	m.Signal(g.ID)
}

func errOrConflict(err error, id string) error {
	if err != nil {
		return err
	}
	return services.Wrap(services.ErrStatusConflict, "workflow", "merge", fmt.Sprintf("generation %s moved during merge", id), nil)
}
