package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"scriptreel/internal/logging"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
	"scriptreel/internal/telemetry"
)

// Event drives a generation from one status to the next.
type Event string

const (
	EventStart           Event = "start"
	EventBarrierMet      Event = "barrier_met"
	EventNextStage       Event = "next_stage"
	EventMerged          Event = "merged"
	EventLipSynced       Event = "lipsynced"
	EventCombined        Event = "combined"
	EventRetrievalFailed Event = "retrieval_failed"
	EventStageFailed     Event = "stage_failed"
	EventResume          Event = "resume"
	EventCancel          Event = "cancel"
	EventFail            Event = "fail"
)

var workingStatuses = []queue.Status{
	queue.StatusGeneratingAudio,
	queue.StatusGeneratingImages,
	queue.StatusGeneratingVideo,
	queue.StatusMergingAudio,
	queue.StatusApplyingLipSync,
	queue.StatusCombining,
}

var resumeTargets = []queue.Status{
	queue.StatusGeneratingAudio,
	queue.StatusGeneratingImages,
	queue.StatusGeneratingVideo,
	queue.StatusVideoCompleted,
}

// transitions lists the statuses each (from, event) pair may reach. Cancel
// and fail apply to every non-terminal status and are not listed.
var transitions = map[queue.Status]map[Event][]queue.Status{
	queue.StatusPending: {
		EventStart: {queue.StatusGeneratingAudio},
	},
	queue.StatusGeneratingAudio: {
		EventBarrierMet:  {queue.StatusAudioCompleted},
		EventStageFailed: {queue.StatusRetrying, queue.StatusFailed},
	},
	queue.StatusAudioCompleted: {
		EventNextStage: {queue.StatusGeneratingImages},
	},
	queue.StatusGeneratingImages: {
		EventBarrierMet:  {queue.StatusImagesCompleted},
		EventStageFailed: {queue.StatusRetrying, queue.StatusFailed},
	},
	queue.StatusImagesCompleted: {
		EventNextStage: {queue.StatusGeneratingVideo},
	},
	queue.StatusGeneratingVideo: {
		EventBarrierMet:  {queue.StatusVideoCompleted},
		EventStageFailed: {queue.StatusRetrying, queue.StatusFailed},
	},
	queue.StatusVideoCompleted: {
		EventNextStage: {queue.StatusMergingAudio},
	},
	queue.StatusMergingAudio: {
		EventMerged:      {queue.StatusApplyingLipSync},
		EventStageFailed: {queue.StatusRetrying, queue.StatusFailed},
	},
	queue.StatusApplyingLipSync: {
		EventLipSynced:   {queue.StatusCombining},
		EventStageFailed: {queue.StatusRetrying, queue.StatusFailed},
	},
	queue.StatusCombining: {
		EventCombined:        {queue.StatusCompleted},
		EventRetrievalFailed: {queue.StatusRetrievalFailed},
		EventStageFailed:     {queue.StatusRetrying, queue.StatusFailed},
	},
	queue.StatusRetrying: {
		EventResume: resumeTargets,
	},
}

// Targets returns the statuses event may move a generation in from to.
func Targets(from queue.Status, event Event) []queue.Status {
	if from.IsTerminal() {
		return nil
	}
	switch event {
	case EventCancel:
		return []queue.Status{queue.StatusCancelled}
	case EventFail:
		return []queue.Status{queue.StatusFailed}
	}
	return slices.Clone(transitions[from][event])
}

// Allowed reports whether event may move a generation from from to to.
func Allowed(from queue.Status, event Event, to queue.Status) bool {
	return slices.Contains(Targets(from, event), to)
}

// Next returns the single status event leads to from from.
func Next(from queue.Status, event Event) (queue.Status, error) {
	if from.IsTerminal() {
		return "", services.Wrap(services.ErrTerminal, "workflow", "advance", "generation is "+string(from), nil)
	}
	targets := Targets(from, event)
	switch len(targets) {
	case 0:
		return "", services.Wrap(services.ErrValidation, "workflow", "advance",
			fmt.Sprintf("event %s is not valid in status %s", event, from), nil)
	case 1:
		return targets[0], nil
	}
	return "", services.Wrap(services.ErrValidation, "workflow", "advance",
		fmt.Sprintf("event %s from %s has several outcomes", event, from), nil)
}

// Machine applies table-checked transitions to persisted generations.
type Machine struct {
	store      *queue.Store
	logger     *slog.Logger
	metrics    *telemetry.Instruments
	retryLimit int
}

// NewMachine builds a Machine. retryLimit is the number of pipeline retries
// a generation gets before it fails.
func NewMachine(store *queue.Store, logger *slog.Logger, metrics *telemetry.Instruments, retryLimit int) *Machine {
	if retryLimit < 0 {
		retryLimit = 0
	}
	return &Machine{
		store:      store,
		logger:     logging.NewComponentLogger(logger, "workflow-machine"),
		metrics:    metrics,
		retryLimit: retryLimit,
	}
}

// Advance applies event to the generation's current status. barrier_met is
// applied only when the stage's barrier actually holds. It returns the new
// status and whether this call moved the generation; a lost race returns
// false with a nil error. Terminal generations return services.ErrTerminal.
func (m *Machine) Advance(ctx context.Context, id string, event Event) (queue.Status, bool, error) {
	g, err := m.store.GetGeneration(ctx, id)
	if err != nil {
		return "", false, err
	}
	if g == nil {
		return "", false, services.Wrap(services.ErrNotFound, "workflow", "advance", "generation "+id+" not found", nil)
	}
	to, err := Next(g.Status, event)
	if err != nil {
		return g.Status, false, err
	}
	if event == EventBarrierMet {
		kind, _ := g.Status.GeneratingKind()
		b, err := m.store.KindBarrier(ctx, id, kind)
		if err != nil {
			return g.Status, false, err
		}
		if !b.Met() {
			return g.Status, false, nil
		}
	}
	ok, err := m.Transition(ctx, id, g.Status, event, to, "")
	if err != nil || !ok {
		return g.Status, false, err
	}
	return to, true, nil
}

// Transition moves id from from to to if the table allows it and the
// generation is still in from.
func (m *Machine) Transition(ctx context.Context, id string, from queue.Status, event Event, to queue.Status, errMsg string) (bool, error) {
	if from.IsTerminal() {
		return false, services.Wrap(services.ErrTerminal, "workflow", string(event), "generation "+id+" is "+string(from), nil)
	}
	if !Allowed(from, event, to) {
		return false, services.Wrap(services.ErrValidation, "workflow", string(event),
			fmt.Sprintf("%s -> %s is not a valid transition", from, to), nil)
	}
	ok, err := m.store.UpdateGenerationIfStatus(ctx, id, queue.Transition{
		From:         from,
		To:           to,
		ErrorMessage: errMsg,
		ReleaseLease: event != EventMerged && event != EventLipSynced,
	})
	if err != nil || !ok {
		return ok, err
	}
	m.metrics.Transition(ctx, string(from), string(to))
	logging.WithContext(services.WithGenerationID(ctx, id), m.logger).Info("generation transitioned",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String("event", string(event)),
		logging.String(logging.FieldEventType, "generation_transition"),
	)
	return true, nil
}

// Cancel moves a non-terminal generation to cancelled.
func (m *Machine) Cancel(ctx context.Context, id string) error {
	g, err := m.store.GetGeneration(ctx, id)
	if err != nil {
		return err
	}
	if g == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "cancel", "generation "+id+" not found", nil)
	}
	if g.Status.IsTerminal() {
		return services.Wrap(services.ErrTerminal, "workflow", "cancel", "generation "+id+" is "+string(g.Status), nil)
	}
	if err := m.store.CancelGeneration(ctx, id); err != nil {
		return err
	}
	m.metrics.Transition(ctx, string(g.Status), string(queue.StatusCancelled))
	logging.WithContext(services.WithGenerationID(ctx, id), m.logger).Info("generation cancelled",
		logging.String("from", string(g.Status)),
		logging.String(logging.FieldEventType, "generation_cancelled"),
	)
	return nil
}

// FailStage handles a failed stage of a generation in from. While pipeline
// retries remain it enters retrying and resets the stage's unfinished assets
// of kind; otherwise the generation fails with reason. It returns the status
// the generation ended in and false when another worker moved it first.
func (m *Machine) FailStage(ctx context.Context, id string, from queue.Status, kind queue.AssetKind, reason string) (queue.Status, bool, error) {
	if !Allowed(from, EventStageFailed, queue.StatusRetrying) {
		return from, false, services.Wrap(services.ErrValidation, "workflow", "stage failed", "status "+string(from)+" has no stage to fail", nil)
	}
	retried, err := m.store.RetryStage(ctx, id, from, kind, m.retryLimit)
	if err != nil {
		return from, false, err
	}
	if retried {
		m.metrics.Transition(ctx, string(from), string(queue.StatusRetrying))
		logging.WarnWithContext(logging.WithContext(services.WithGenerationID(ctx, id), m.logger),
			"stage failed; retrying pipeline stage", "pipeline_retry",
			logging.String("from", string(from)),
			logging.String("reason", reason),
			logging.String(logging.FieldErrorHint, "the stage's unfinished assets were reset to pending"),
			logging.String(logging.FieldImpact, "generation re-enters "+string(from)),
		)
		return queue.StatusRetrying, true, nil
	}
	current, err := m.store.GetGeneration(ctx, id)
	if err != nil {
		return from, false, err
	}
	if current == nil || current.Status != from {
		return from, false, nil
	}
	ok, err := m.Transition(ctx, id, from, EventStageFailed, queue.StatusFailed, reason)
	if err != nil || !ok {
		return from, false, err
	}
	return queue.StatusFailed, true, nil
}

// Resume moves a retrying generation back to the stage it failed in and
// returns the status it resumed at.
func (m *Machine) Resume(ctx context.Context, id string) (queue.Status, bool, error) {
	ok, err := m.store.ResumeGeneration(ctx, id)
	if err != nil || !ok {
		return queue.StatusRetrying, ok, err
	}
	g, err := m.store.GetGeneration(ctx, id)
	if err != nil || g == nil {
		return queue.StatusRetrying, true, err
	}
	m.metrics.Transition(ctx, string(queue.StatusRetrying), string(g.Status))
	logging.WithContext(services.WithGenerationID(ctx, id), m.logger).Info("generation resumed",
		logging.String("to", string(g.Status)),
		logging.Int("pipeline_retries", g.PipelineRetries),
		logging.String(logging.FieldEventType, "generation_resumed"),
	)
	return g.Status, true, nil
}
