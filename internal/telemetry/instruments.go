package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName scopes the pipeline's tracer and meter.
const InstrumentationName = "scriptreel/pipeline"

// Instruments bundles the tracer and counters used by the stage runner, the
// merge orchestrator and the workflow manager.
type Instruments struct {
	tracer       trace.Tracer
	assets       metric.Int64Counter
	reused       metric.Int64Counter
	retries      metric.Int64Counter
	transitions  metric.Int64Counter
	stageSeconds metric.Float64Histogram
}

// New builds instruments from the global providers.
func New() *Instruments {
	return NewWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewWithProviders builds instruments from explicit providers. Instrument
// creation errors fall back to no-op instruments from the same meter.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) *Instruments {
	meter := mp.Meter(InstrumentationName)
	in := &Instruments{tracer: tp.Tracer(InstrumentationName)}
	in.assets, _ = meter.Int64Counter("scriptreel.assets",
		metric.WithDescription("Assets finished, by kind and outcome"))
	in.reused, _ = meter.Int64Counter("scriptreel.assets.reused",
		metric.WithDescription("Assets satisfied from the find-or-generate lookup"))
	in.retries, _ = meter.Int64Counter("scriptreel.assets.retries",
		metric.WithDescription("Transient generation failures scheduled for retry"))
	in.transitions, _ = meter.Int64Counter("scriptreel.generation.transitions",
		metric.WithDescription("Generation status transitions"))
	in.stageSeconds, _ = meter.Float64Histogram("scriptreel.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of stage work"))
	return in
}

// StartSpan opens a span named name.
func (in *Instruments) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if in == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return in.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AssetFinished counts one asset reaching outcome.
func (in *Instruments) AssetFinished(ctx context.Context, kind, outcome string) {
	if in == nil || in.assets == nil {
		return
	}
	in.assets.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind), attribute.String("outcome", outcome)))
}

// AssetReused counts a lookup hit.
func (in *Instruments) AssetReused(ctx context.Context, kind string) {
	if in == nil || in.reused == nil {
		return
	}
	in.reused.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// AssetRetried counts a scheduled retry.
func (in *Instruments) AssetRetried(ctx context.Context, kind string) {
	if in == nil || in.retries == nil {
		return
	}
	in.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Transition counts a generation moving between statuses.
func (in *Instruments) Transition(ctx context.Context, from, to string) {
	if in == nil || in.transitions == nil {
		return
	}
	in.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("from", from), attribute.String("to", to)))
}

// StageDuration records how long stage work took.
func (in *Instruments) StageDuration(ctx context.Context, stage string, d time.Duration) {
	if in == nil || in.stageSeconds == nil {
		return
	}
	in.stageSeconds.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}
