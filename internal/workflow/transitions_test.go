package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scriptreel/internal/queue"
	"scriptreel/internal/services"
	"scriptreel/internal/testsupport"
	"scriptreel/internal/workflow"
)

func TestNextFollowsTable(t *testing.T) {
	tests := []struct {
		from  queue.Status
		event workflow.Event
		want  queue.Status
	}{
		{queue.StatusPending, workflow.EventStart, queue.StatusGeneratingAudio},
		{queue.StatusGeneratingAudio, workflow.EventBarrierMet, queue.StatusAudioCompleted},
		{queue.StatusAudioCompleted, workflow.EventNextStage, queue.StatusGeneratingImages},
		{queue.StatusGeneratingImages, workflow.EventBarrierMet, queue.StatusImagesCompleted},
		{queue.StatusImagesCompleted, workflow.EventNextStage, queue.StatusGeneratingVideo},
		{queue.StatusGeneratingVideo, workflow.EventBarrierMet, queue.StatusVideoCompleted},
		{queue.StatusVideoCompleted, workflow.EventNextStage, queue.StatusMergingAudio},
		{queue.StatusMergingAudio, workflow.EventMerged, queue.StatusApplyingLipSync},
		{queue.StatusApplyingLipSync, workflow.EventLipSynced, queue.StatusCombining},
		{queue.StatusCombining, workflow.EventCombined, queue.StatusCompleted},
		{queue.StatusCombining, workflow.EventRetrievalFailed, queue.StatusRetrievalFailed},
		{queue.StatusGeneratingImages, workflow.EventCancel, queue.StatusCancelled},
		{queue.StatusRetrying, workflow.EventFail, queue.StatusFailed},
	}
	for _, tc := range tests {
		got, err := workflow.Next(tc.from, tc.event)
		if err != nil {
			t.Fatalf("Next(%s, %s): %v", tc.from, tc.event, err)
		}
		if got != tc.want {
			t.Fatalf("Next(%s, %s) = %s, want %s", tc.from, tc.event, got, tc.want)
		}
	}
}

func TestNextRejectsInvalidEvents(t *testing.T) {
	if _, err := workflow.Next(queue.StatusAudioCompleted, workflow.EventBarrierMet); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := workflow.Next(queue.StatusPending, workflow.EventCombined); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, terminal := range []queue.Status{queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled, queue.StatusRetrievalFailed} {
		if _, err := workflow.Next(terminal, workflow.EventCancel); !errors.Is(err, services.ErrTerminal) {
			t.Fatalf("Next(%s, cancel): expected terminal error, got %v", terminal, err)
		}
		if targets := workflow.Targets(terminal, workflow.EventFail); len(targets) != 0 {
			t.Fatalf("terminal %s has targets %v", terminal, targets)
		}
	}
}

func TestStageFailureHasTwoOutcomes(t *testing.T) {
	for _, from := range []queue.Status{queue.StatusGeneratingAudio, queue.StatusMergingAudio, queue.StatusCombining} {
		if !workflow.Allowed(from, workflow.EventStageFailed, queue.StatusRetrying) {
			t.Fatalf("%s should allow retrying", from)
		}
		if !workflow.Allowed(from, workflow.EventStageFailed, queue.StatusFailed) {
			t.Fatalf("%s should allow failed", from)
		}
	}
	if workflow.Allowed(queue.StatusAudioCompleted, workflow.EventStageFailed, queue.StatusRetrying) {
		t.Fatal("completed stages have nothing to retry")
	}
	if !workflow.Allowed(queue.StatusRetrying, workflow.EventResume, queue.StatusVideoCompleted) {
		t.Fatal("retrying should resume at video_completed for merge stages")
	}
}

func newMachine(t *testing.T, retryLimit int) (*workflow.Machine, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return workflow.NewMachine(store, nil, nil, retryLimit), store
}

func TestAdvanceOnTerminalGenerationLeavesRowUntouched(t *testing.T) {
	m, store := newMachine(t, 1)
	ctx := context.Background()
	g := testsupport.NewGeneration(t, store, "ALICE: hi")
	testsupport.MoveTo(t, store, g, queue.StatusCompleted)

	before, err := store.GetGeneration(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	status, moved, err := m.Advance(ctx, g.ID, workflow.EventStart)
	if !errors.Is(err, services.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if moved || status != queue.StatusCompleted {
		t.Fatalf("terminal generation moved: %s %v", status, moved)
	}
	after, err := store.GetGeneration(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGeneration: %v", err)
	}
	if after.Status != queue.StatusCompleted || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("terminal row changed: %s %s -> %s", after.Status, before.UpdatedAt, after.UpdatedAt)
	}
}

func TestConcurrentAdvanceMovesOnce(t *testing.T) {
	m, store := newMachine(t, 1)
	ctx := context.Background()
	g := testsupport.NewGeneration(t, store, "ALICE: hi")

	var moved atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.Advance(ctx, g.ID, workflow.EventStart)
			if err != nil && !errors.Is(err, services.ErrValidation) {
				t.Errorf("Advance: %v", err)
			}
			if ok {
				moved.Add(1)
			}
		}()
	}
	wg.Wait()

	if moved.Load() != 1 {
		t.Fatalf("expected exactly one transition, got %d", moved.Load())
	}
	current, err := store.GetGeneration(ctx, g.ID)
	if err != nil || current.Status != queue.StatusGeneratingAudio {
		t.Fatalf("expected generating_audio, got %+v (%v)", current, err)
	}
}

func TestBarrierMetWaitsForRequiredAssets(t *testing.T) {
	m, store := newMachine(t, 1)
	ctx := context.Background()
	g := testsupport.NewGeneration(t, store, "ALICE: hi", &queue.Asset{
		Kind:             queue.KindAudio,
		Category:         queue.CategoryCharacter,
		Character:        "Alice",
		Prompt:           "hi",
		Required:         true,
		OwnerSceneNumber: testsupport.SceneNumber(1),
	})
	testsupport.MoveTo(t, store, g, queue.StatusGeneratingAudio)

	if _, moved, err := m.Advance(ctx, g.ID, workflow.EventBarrierMet); err != nil || moved {
		t.Fatalf("barrier advanced early: moved=%v err=%v", moved, err)
	}

	claimed, err := store.ClaimNextAsset(ctx, queue.KindAudio, "w1", time.Now(), time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextAsset: %v %v", claimed, err)
	}
	if ok, err := store.CompleteAsset(ctx, claimed.ID, "w1", queue.Completion{URL: "file:///a.mp3"}); err != nil || !ok {
		t.Fatalf("CompleteAsset: %v %v", ok, err)
	}

	status, moved, err := m.Advance(ctx, g.ID, workflow.EventBarrierMet)
	if err != nil || !moved || status != queue.StatusAudioCompleted {
		t.Fatalf("Advance = %s %v %v", status, moved, err)
	}
}

func TestFailStageRetriesThenFails(t *testing.T) {
	m, store := newMachine(t, 1)
	ctx := context.Background()
	g := testsupport.NewGeneration(t, store, "ALICE: hi")
	testsupport.MoveTo(t, store, g, queue.StatusGeneratingImages)

	status, moved, err := m.FailStage(ctx, g.ID, queue.StatusGeneratingImages, queue.KindImage, "vendor down")
	if err != nil || !moved || status != queue.StatusRetrying {
		t.Fatalf("first failure = %s %v %v", status, moved, err)
	}
	status, moved, err = m.Resume(ctx, g.ID)
	if err != nil || !moved || status != queue.StatusGeneratingImages {
		t.Fatalf("Resume = %s %v %v", status, moved, err)
	}
	status, moved, err = m.FailStage(ctx, g.ID, queue.StatusGeneratingImages, queue.KindImage, "vendor down")
	if err != nil || !moved || status != queue.StatusFailed {
		t.Fatalf("second failure = %s %v %v", status, moved, err)
	}
	current, err := store.GetGeneration(ctx, g.ID)
	if err != nil || current.ErrorMessage != "vendor down" || current.PipelineRetries != 1 {
		t.Fatalf("unexpected generation %+v (%v)", current, err)
	}
}

func TestMergeStageFailureResumesAtVideoCompleted(t *testing.T) {
	m, store := newMachine(t, 2)
	ctx := context.Background()
	g := testsupport.NewGeneration(t, store, "ALICE: hi")
	testsupport.MoveTo(t, store, g, queue.StatusCombining)

	if status, _, err := m.FailStage(ctx, g.ID, queue.StatusCombining, "", "ffmpeg crashed"); err != nil || status != queue.StatusRetrying {
		t.Fatalf("FailStage = %s %v", status, err)
	}
	status, moved, err := m.Resume(ctx, g.ID)
	if err != nil || !moved || status != queue.StatusVideoCompleted {
		t.Fatalf("Resume = %s %v %v", status, moved, err)
	}
}

func TestCancelRejectsTerminal(t *testing.T) {
	m, store := newMachine(t, 1)
	ctx := context.Background()
	g := testsupport.NewGeneration(t, store, "ALICE: hi")

	if err := m.Cancel(ctx, g.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := m.Cancel(ctx, g.ID); !errors.Is(err, services.ErrTerminal) {
		t.Fatalf("second cancel: expected ErrTerminal, got %v", err)
	}
	if err := m.Cancel(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
