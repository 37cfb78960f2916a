package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"scriptreel/internal/logging"
	"scriptreel/internal/queue"
	"scriptreel/internal/services"
	"scriptreel/internal/telemetry"
)

// Outcome describes what Process did with an asset.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"
	OutcomeReused    Outcome = "reused"
	OutcomeCompleted Outcome = "completed"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeReleased  Outcome = "released"
)

// Options configure a Runner.
type Options struct {
	Store      *queue.Store
	Generators []Generator
	Logger     *slog.Logger
	Metrics    *telemetry.Instruments
	Backoff    Backoff
	MaxRetries int
	Lease      time.Duration
	Clock      func() time.Time
	// Notify is called with the generation id whenever an asset of that
	// generation changes status.
	Notify func(generationID string)
}

// Runner claims and processes assets.
type Runner struct {
	store      *queue.Store
	generators map[queue.AssetKind]Generator
	logger     *slog.Logger
	metrics    *telemetry.Instruments
	backoff    Backoff
	maxRetries int
	lease      time.Duration
	now        func() time.Time
	notify     func(string)
}

// NewRunner validates opts and builds a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("stage runner: store is required")
	}
	r := &Runner{
		store:      opts.Store,
		generators: make(map[queue.AssetKind]Generator, len(opts.Generators)),
		logger:     logging.NewComponentLogger(opts.Logger, "stage"),
		metrics:    opts.Metrics,
		backoff:    opts.Backoff,
		maxRetries: opts.MaxRetries,
		lease:      opts.Lease,
		now:        opts.Clock,
		notify:     opts.Notify,
	}
	for _, g := range opts.Generators {
		if g == nil {
			continue
		}
		if _, dup := r.generators[g.Kind()]; dup {
			return nil, fmt.Errorf("stage runner: duplicate generator for %s", g.Kind())
		}
		r.generators[g.Kind()] = g
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	if r.lease <= 0 {
		r.lease = 2 * time.Minute
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.notify == nil {
		r.notify = func(string) {}
	}
	return r, nil
}

// Kinds returns the asset kinds the runner has generators for.
func (r *Runner) Kinds() []queue.AssetKind {
	out := make([]queue.AssetKind, 0, len(r.generators))
	for _, kind := range []queue.AssetKind{queue.KindAudio, queue.KindImage, queue.KindVideo} {
		if _, ok := r.generators[kind]; ok {
			out = append(out, kind)
		}
	}
	return out
}

// HealthCheck reports the health of every generator.
func (r *Runner) HealthCheck(ctx context.Context) []Health {
	out := make([]Health, 0, len(r.generators))
	for _, kind := range r.Kinds() {
		out = append(out, r.generators[kind].HealthCheck(ctx))
	}
	return out
}

// RunNext claims the next due asset of kind for owner and processes it.
// It returns OutcomeIdle when nothing is due.
func (r *Runner) RunNext(ctx context.Context, kind queue.AssetKind, owner string) (Outcome, error) {
	asset, err := r.store.ClaimNextAsset(ctx, kind, owner, r.now().UTC(), r.lease)
	if err != nil {
		return OutcomeIdle, err
	}
	if asset == nil {
		return OutcomeIdle, nil
	}
	return r.Process(ctx, asset, owner)
}

// Process runs the find-or-generate flow for an asset leased by owner.
func (r *Runner) Process(ctx context.Context, asset *queue.Asset, owner string) (Outcome, error) {
	ctx = services.WithGenerationID(ctx, asset.GenerationID)
	ctx = services.WithAssetID(ctx, asset.ID)
	ctx = services.WithStage(ctx, string(asset.Kind))
	ctx = services.WithWorker(ctx, owner)
	logger := logging.WithContext(ctx, r.logger)
	started := r.now()
	defer func() {
		r.metrics.StageDuration(ctx, string(asset.Kind), r.now().Sub(started))
	}()

	gen, err := r.store.GetGeneration(ctx, asset.GenerationID)
	if err != nil {
		r.release(ctx, asset, owner)
		return OutcomeReleased, err
	}
	if outcome, stop := r.checkParent(ctx, logger, gen, asset, owner); stop {
		return outcome, nil
	}

	hit, err := r.store.FindReusable(ctx, asset)
	if err != nil {
		logging.WarnWithContext(logger, "asset lookup failed", "asset_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "asset will be generated instead of reused"),
		)
	}
	if hit != nil {
		return r.complete(ctx, logger, asset, owner, queue.Completion{
			URL:        hit.URL,
			Source:     queue.SourceReused,
			ReusedFrom: hit.ID,
			Tags:       hit.Tags,
		}, OutcomeReused)
	}

	generator, ok := r.generators[asset.Kind]
	if !ok {
		return r.fail(ctx, logger, asset, owner, services.Wrap(services.ErrGenerationPermanent, "stage", "dispatch", "no generator for "+string(asset.Kind), nil))
	}

	request := *asset
	request.Metadata = maps.Clone(asset.Metadata)
	if request.Metadata == nil {
		request.Metadata = map[string]any{}
	}
	request.Metadata[MetaQualityTier] = string(gen.QualityTier)

	result, genErr, lostLease := r.generate(ctx, generator, &request, owner)
	if lostLease {
		logger.Info("asset lease lost during generation; result discarded",
			logging.String(logging.FieldEventType, "asset_discarded"))
		return OutcomeDiscarded, nil
	}
	if genErr != nil && ctx.Err() != nil {
		r.release(ctx, asset, owner)
		return OutcomeReleased, ctx.Err()
	}

	gen, err = r.store.GetGeneration(ctx, asset.GenerationID)
	if err != nil {
		r.release(ctx, asset, owner)
		return OutcomeReleased, err
	}
	if outcome, stop := r.checkParent(ctx, logger, gen, asset, owner); stop {
		return outcome, nil
	}

	switch {
	case genErr == nil:
		metadata := maps.Clone(asset.Metadata)
		if metadata == nil {
			metadata = map[string]any{}
		}
		maps.Copy(metadata, result.Metadata)
		return r.complete(ctx, logger, asset, owner, queue.Completion{
			URL:      result.URL,
			Source:   queue.SourceGenerated,
			Tags:     result.Tags,
			Metadata: metadata,
		}, OutcomeCompleted)
	case errors.Is(genErr, services.ErrGenerationPermanent):
		return r.fail(ctx, logger, asset, owner, genErr)
	default:
		return r.retry(ctx, logger, asset, owner, genErr)
	}
}

// checkParent stops processing when the generation vanished, finished, or
// left the stage that produces asset's kind.
func (r *Runner) checkParent(ctx context.Context, logger *slog.Logger, gen *queue.Generation, asset *queue.Asset, owner string) (Outcome, bool) {
	switch {
	case gen == nil || gen.Status.IsTerminal():
		status := "missing"
		if gen != nil {
			status = string(gen.Status)
		}
		if _, err := r.store.FailAsset(ctx, asset.ID, owner, "discarded: generation "+status); err != nil {
			logger.Warn("discard asset failed", logging.Error(err))
		}
		logger.Info("generation finished; asset discarded",
			logging.String("generation_status", status),
			logging.String(logging.FieldEventType, "asset_discarded"))
		r.notify(asset.GenerationID)
		return OutcomeDiscarded, true
	case gen.Status != queue.GeneratingStatus(asset.Kind):
		r.release(ctx, asset, owner)
		return OutcomeReleased, true
	}
	return "", false
}

// generate calls the generator while renewing the asset lease. A lease that
// can no longer be renewed cancels the call.
func (r *Runner) generate(ctx context.Context, g Generator, asset *queue.Asset, owner string) (Result, error, bool) {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	spanCtx, span := r.metrics.StartSpan(genCtx, "asset.generate",
		attribute.String("kind", string(asset.Kind)),
		attribute.String("category", asset.Category),
		attribute.String(logging.FieldGenerationID, asset.GenerationID),
	)

	var lost bool
	done := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		ticker := time.NewTicker(r.lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-genCtx.Done():
				return
			case <-ticker.C:
				err := r.store.RenewAssetLease(genCtx, asset.ID, owner, r.now().Add(r.lease))
				if errors.Is(err, services.ErrStatusConflict) {
					lost = true
					cancel()
					return
				}
			}
		}
	}()

	result, err := g.Generate(spanCtx, asset)
	close(done)
	<-renewed
	telemetry.EndSpan(span, err)
	return result, err, lost
}

func (r *Runner) complete(ctx context.Context, logger *slog.Logger, asset *queue.Asset, owner string, c queue.Completion, outcome Outcome) (Outcome, error) {
	ok, err := r.store.CompleteAsset(ctx, asset.ID, owner, c)
	if err != nil {
		return OutcomeReleased, err
	}
	if !ok {
		logger.Info("asset lease lost before completion; result discarded",
			logging.String(logging.FieldEventType, "asset_discarded"))
		return OutcomeDiscarded, nil
	}
	if outcome == OutcomeReused {
		r.metrics.AssetReused(ctx, string(asset.Kind))
	}
	r.metrics.AssetFinished(ctx, string(asset.Kind), string(outcome))
	logger.Info("asset completed",
		logging.String("category", asset.Category),
		logging.String("source", string(c.Source)),
		logging.String("reused_from", c.ReusedFrom),
		logging.String(logging.FieldEventType, "asset_completed"),
	)
	r.notify(asset.GenerationID)
	return outcome, nil
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, asset *queue.Asset, owner string, cause error) (Outcome, error) {
	ok, err := r.store.FailAsset(ctx, asset.ID, owner, cause.Error())
	if err != nil {
		return OutcomeReleased, err
	}
	if !ok {
		return OutcomeDiscarded, nil
	}
	r.metrics.AssetFinished(ctx, string(asset.Kind), string(OutcomeFailed))
	details := services.Details(cause)
	logging.WarnWithContext(logger, "asset failed", "asset_failed",
		logging.String("category", asset.Category),
		logging.Bool("required", asset.Required),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldImpact, impactOf(asset)),
	)
	r.notify(asset.GenerationID)
	return OutcomeFailed, nil
}

func (r *Runner) retry(ctx context.Context, logger *slog.Logger, asset *queue.Asset, owner string, cause error) (Outcome, error) {
	res, err := r.store.RecordTransientFailure(ctx, asset.ID, owner, cause.Error(), r.maxRetries, r.backoff.Delay)
	if err != nil {
		return OutcomeReleased, err
	}
	if !res.Applied {
		return OutcomeDiscarded, nil
	}
	if res.Status == queue.AssetFailed {
		r.metrics.AssetFinished(ctx, string(asset.Kind), string(OutcomeFailed))
		logging.WarnWithContext(logger, "asset retry budget exhausted", "asset_failed",
			logging.Int("retry_count", res.RetryCount),
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "check vendor availability"),
			logging.String(logging.FieldImpact, impactOf(asset)),
		)
		r.notify(asset.GenerationID)
		return OutcomeFailed, nil
	}
	r.metrics.AssetRetried(ctx, string(asset.Kind))
	attrs := []logging.Attr{
		logging.Int("retry_count", res.RetryCount),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "asset_retry_scheduled"),
	}
	if res.NextAt != nil {
		attrs = append(attrs, logging.String("next_attempt_at", res.NextAt.UTC().Format(time.RFC3339)))
	}
	logger.Info("asset retry scheduled", logging.Args(attrs...)...)
	return OutcomeRetry, nil
}

func (r *Runner) release(ctx context.Context, asset *queue.Asset, owner string) {
	if _, err := r.store.ReleaseAsset(context.WithoutCancel(ctx), asset.ID, owner); err != nil {
		r.logger.Warn("release asset failed", logging.String(logging.FieldAssetID, asset.ID), logging.Error(err))
	}
}

func impactOf(asset *queue.Asset) string {
	if asset.Required {
		return "generation cannot advance until the stage is retried"
	}
	return "optional asset skipped; fallbacks will be used"
}
