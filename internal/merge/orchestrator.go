package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"scriptreel/internal/capability"
	"scriptreel/internal/logging"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
	"scriptreel/internal/telemetry"
)

// ErrRetrievalFailed marks a merged output that was uploaded but could not
// be confirmed retrievable.
var ErrRetrievalFailed = errors.New("merged output not retrievable")

// Phase is one step of a merge.
type Phase string

const (
	PhaseMix     Phase = "mix"
	PhaseLipSync Phase = "lipsync"
	PhaseCombine Phase = "combine"
)

// phaseSpan is the slice of overall progress a phase covers.
var phaseSpan = map[Phase][2]float64{
	PhaseMix:     {0, 0.4},
	PhaseLipSync: {0.4, 0.7},
	PhaseCombine: {0.7, 1},
}

// Recorder persists merge operation state.
type Recorder interface {
	CreateMergeOperation(ctx context.Context, generationID string) (*queue.MergeOperation, error)
	UpdateMergeProgress(ctx context.Context, id string, progress float64) error
	FinishMergeOperation(ctx context.Context, id string, status queue.MergeStatus, outputURL, errMsg string) (bool, error)
}

// Hooks let the caller follow a merge.
type Hooks struct {
	// Phase runs before each phase starts. An error aborts the merge.
	Phase func(ctx context.Context, phase Phase) error
	// Progress receives overall progress in [0,1].
	Progress func(ctx context.Context, fraction float64, message string)
}

// Output describes a finished merge.
type Output struct {
	OperationID string
	URL         string
	Key         string
	Segments    int
	Duration    float64
}

// OrchestratorOptions configure an Orchestrator.
type OrchestratorOptions struct {
	Recorder Recorder
	Renderer Renderer
	// LipSync is optional; without it the lipsync phase passes through.
	LipSync capability.LipSync
	Storage capability.Storage
	WorkDir string
	Logger  *slog.Logger
	Metrics *telemetry.Instruments
}

// Orchestrator runs merge plans.
type Orchestrator struct {
	recorder Recorder
	renderer Renderer
	lipSync  capability.LipSync
	storage  capability.Storage
	workDir  string
	logger   *slog.Logger
	metrics  *telemetry.Instruments
}

// NewOrchestrator validates opts.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	switch {
	case opts.Recorder == nil:
		return nil, errors.New("merge orchestrator: recorder is required")
	case opts.Renderer == nil:
		return nil, errors.New("merge orchestrator: renderer is required")
	case opts.Storage == nil:
		return nil, errors.New("merge orchestrator: storage is required")
	}
	return &Orchestrator{
		recorder: opts.Recorder,
		renderer: opts.Renderer,
		lipSync:  opts.LipSync,
		storage:  opts.Storage,
		workDir:  opts.WorkDir,
		logger:   logging.NewComponentLogger(opts.Logger, "merge"),
		metrics:  opts.Metrics,
	}, nil
}

// OutputKey is the storage key of a generation's final video.
func OutputKey(generationID string) string {
	return "generations/" + generationID + "/final.mp4"
}

type run struct {
	o      *Orchestrator
	op     *queue.MergeOperation
	genID  string
	plan   Plan
	hooks  Hooks
	dir    string
	logger *slog.Logger

	phase   Phase
	started time.Time
}

// Run executes plan for generationID and records it as a new merge
// operation. The operation ends COMPLETED, FAILED or CANCELLED.
func (o *Orchestrator) Run(ctx context.Context, generationID string, plan Plan, hooks Hooks) (out Output, err error) {
	if len(plan.Segments) == 0 {
		return Output{}, services.Wrap(services.ErrValidation, "merge", "plan", "generation has no scenes to merge", nil)
	}
	op, err := o.recorder.CreateMergeOperation(ctx, generationID)
	if err != nil {
		return Output{}, err
	}
	ctx = services.WithGenerationID(ctx, generationID)
	ctx = services.WithStage(ctx, "merge")
	ctx, span := o.metrics.StartSpan(ctx, "merge.run",
		attribute.String(logging.FieldGenerationID, generationID),
		attribute.Int("segments", len(plan.Segments)),
		attribute.String("tier", string(plan.Tier)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	dir, err := os.MkdirTemp(o.workDir, "merge-")
	if err != nil {
		o.finish(ctx, op, queue.MergeFailed, "", err)
		return Output{}, fmt.Errorf("merge work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	r := &run{o: o, op: op, genID: generationID, plan: plan, hooks: hooks, dir: dir, logger: logging.WithContext(ctx, o.logger)}
	out, err = r.execute(ctx)
	switch {
	case err == nil:
		o.finish(ctx, op, queue.MergeCompleted, out.URL, nil)
	case errors.Is(err, services.ErrCancelled) || errors.Is(err, services.ErrTerminal):
		o.finish(ctx, op, queue.MergeCancelled, "", err)
	default:
		o.finish(ctx, op, queue.MergeFailed, "", err)
	}
	return out, err
}

func (o *Orchestrator) finish(ctx context.Context, op *queue.MergeOperation, status queue.MergeStatus, url string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := o.recorder.FinishMergeOperation(context.WithoutCancel(ctx), op.ID, status, url, msg); err != nil {
		o.logger.Warn("finish merge operation failed", logging.String("merge_operation_id", op.ID), logging.Error(err))
	}
}

func (r *run) execute(ctx context.Context) (Output, error) {
	n := len(r.plan.Segments)
	audio := make([]SceneAudio, n)

	if err := r.enter(ctx, PhaseMix); err != nil {
		return Output{}, err
	}
	for i, seg := range r.plan.Segments {
		mixed, err := r.o.renderer.MixScene(ctx, seg, r.plan.Profile, r.dir)
		if err != nil {
			return Output{}, err
		}
		audio[i] = mixed
		if err := r.report(ctx, PhaseMix, i+1, n, "mixed "+seg.Key()); err != nil {
			return Output{}, err
		}
	}

	if err := r.enter(ctx, PhaseLipSync); err != nil {
		return Output{}, err
	}
	if err := r.lipSync(ctx, audio); err != nil {
		return Output{}, err
	}

	if err := r.enter(ctx, PhaseCombine); err != nil {
		return Output{}, err
	}
	clips := make([]string, n)
	total := 0.0
	for i, seg := range r.plan.Segments {
		clips[i] = filepath.Join(r.dir, fmt.Sprintf("%s.mp4", seg.Key()))
		if err := r.o.renderer.RenderScene(ctx, seg, audio[i], r.plan.Profile, clips[i]); err != nil {
			return Output{}, err
		}
		total += audio[i].Duration
		// Rendering takes the combine phase to 90%; concat and upload finish it.
		if err := r.progress(ctx, r.at(PhaseCombine, 0.9*float64(i+1)/float64(n)), "rendered "+seg.Key()); err != nil {
			return Output{}, err
		}
	}
	final := filepath.Join(r.dir, "final.mp4")
	if err := r.o.renderer.Concatenate(ctx, clips, final); err != nil {
		return Output{}, err
	}
	if err := r.progress(ctx, r.at(PhaseCombine, 0.95), "concatenated"); err != nil {
		return Output{}, err
	}

	url, key, err := r.upload(ctx, final)
	if err != nil {
		return Output{}, err
	}
	if err := r.progress(ctx, 1, "merge complete"); err != nil {
		return Output{}, err
	}
	r.endPhase(ctx)
	r.logger.Info("merge completed",
		logging.String("output_url", url),
		logging.Int("segments", n),
		logging.Float64("duration_seconds", total),
		logging.String(logging.FieldEventType, "merge_completed"),
	)
	return Output{OperationID: r.op.ID, URL: url, Key: key, Segments: n, Duration: total}, nil
}

// lipSync replaces the video of every segment with dialogue by a lip-synced
// render. Failures keep the original video.
func (r *run) lipSync(ctx context.Context, audio []SceneAudio) error {
	n := len(r.plan.Segments)
	if r.o.lipSync == nil {
		return r.progress(ctx, r.at(PhaseLipSync, 1), "lipsync skipped")
	}
	for i := range r.plan.Segments {
		seg := &r.plan.Segments[i]
		if seg.AudioOnly() || len(seg.Dialogue) == 0 {
			if err := r.report(ctx, PhaseLipSync, i+1, n, "no dialogue in "+seg.Key()); err != nil {
				return err
			}
			continue
		}
		synced, err := r.syncSegment(ctx, *seg, audio[i])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(r.logger, "lipsync failed; keeping original clip", "lipsync_failed",
				logging.String("scene", seg.Key()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "scene plays without lip alignment"),
			)
		} else {
			seg.VideoURL = synced
		}
		if err := r.report(ctx, PhaseLipSync, i+1, n, "lipsync "+seg.Key()); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) syncSegment(ctx context.Context, seg Segment, audio SceneAudio) (string, error) {
	data, err := os.ReadFile(audio.Path)
	if err != nil {
		return "", fmt.Errorf("read mixed audio: %w", err)
	}
	audioURL, err := r.o.storage.Put(ctx, data, fmt.Sprintf("generations/%s/lipsync/%s.m4a", r.genID, seg.Key()))
	if err != nil {
		return "", err
	}
	return r.o.lipSync.Sync(ctx, capability.LipSyncRequest{VideoURL: seg.VideoURL, AudioURL: audioURL})
}

func (r *run) upload(ctx context.Context, final string) (string, string, error) {
	data, err := os.ReadFile(final)
	if err != nil {
		return "", "", fmt.Errorf("read merged output: %w", err)
	}
	key := OutputKey(r.genID)
	url, err := r.o.storage.Put(ctx, data, key)
	if err != nil {
		return "", "", fmt.Errorf("upload merged output: %w", err)
	}
	ok, err := r.o.storage.Exists(ctx, key)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrRetrievalFailed, key)
	}
	return url, key, nil
}

func (r *run) enter(ctx context.Context, phase Phase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.endPhase(ctx)
	r.phase, r.started = phase, time.Now()
	if r.hooks.Phase == nil {
		return nil
	}
	return r.hooks.Phase(ctx, phase)
}

func (r *run) endPhase(ctx context.Context) {
	if r.phase == "" {
		return
	}
	r.o.metrics.StageDuration(ctx, "merge_"+string(r.phase), time.Since(r.started))
	r.phase = ""
}

func (r *run) at(phase Phase, fraction float64) float64 {
	span := phaseSpan[phase]
	return span[0] + (span[1]-span[0])*fraction
}

func (r *run) report(ctx context.Context, phase Phase, done, total int, message string) error {
	return r.progress(ctx, r.at(phase, float64(done)/float64(total)), message)
}

func (r *run) progress(ctx context.Context, fraction float64, message string) error {
	if err := r.o.recorder.UpdateMergeProgress(ctx, r.op.ID, fraction); err != nil {
		if errors.Is(err, services.ErrTerminal) {
			return services.Wrap(services.ErrCancelled, "merge", "progress", "merge operation is no longer active", err)
		}
		return err
	}
	if r.hooks.Progress != nil {
		r.hooks.Progress(ctx, fraction, message)
	}
	return nil
}
