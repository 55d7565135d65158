// Package telemetry exports OTLP traces for a run: one span per run with a
// child span per loop iteration.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
)

const instrumentationName = "github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"

// Tracer turns loop hook calls into spans.
type Tracer struct {
	tracer   oteltrace.Tracer
	shutdown func(context.Context) error

	mu       sync.Mutex
	runCtx   context.Context
	runSpan  oteltrace.Span
	loopSpan oteltrace.Span
}

// New creates a Tracer exporting over OTLP/HTTP to endpoint, e.g.
// "http://localhost:4318".
func New(ctx context.Context, endpoint, serviceName string) (*Tracer, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	if serviceName == "" {
		serviceName = "codchestra"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	t := NewWithProvider(provider)
	t.shutdown = provider.Shutdown
	return t, nil
}

// NewWithProvider creates a Tracer on an existing provider. Shutdown is a
// no-op; the caller owns the provider.
func NewWithProvider(tp oteltrace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// Hook returns the loop hook that records spans.
func (t *Tracer) Hook() loop.Hook {
	return loop.Hook{
		Name:       "telemetry",
		BeforeRun:  t.beforeRun,
		AfterRun:   t.afterRun,
		BeforeLoop: t.beforeLoop,
		AfterLoop:  t.afterLoop,
	}
}

func (t *Tracer) beforeRun(ctx context.Context, run loop.RunInfo) error {
	ctx, span := t.tracer.Start(ctx, "codchestra.run",
		oteltrace.WithTimestamp(run.StartedAt),
		oteltrace.WithAttributes(
			attribute.String("codchestra.session_id", run.SessionID),
			attribute.String("codchestra.dir", run.Dir),
			attribute.Int("codchestra.max_loops", run.MaxLoops),
			attribute.Bool("codchestra.resumed", run.Resumed),
		),
	)
	t.mu.Lock()
	t.runCtx, t.runSpan = ctx, span
	t.mu.Unlock()
	return nil
}

func (t *Tracer) afterRun(_ context.Context, _ loop.RunInfo, res loop.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loopSpan != nil {
		t.loopSpan.SetStatus(codes.Error, "iteration interrupted")
		t.loopSpan.End()
		t.loopSpan = nil
	}
	if t.runSpan == nil {
		return nil
	}

	t.runSpan.SetAttributes(
		attribute.Bool("codchestra.ok", res.OK),
		attribute.String("codchestra.exit_reason", string(res.ExitReason)),
		attribute.Int("codchestra.loops", res.Loop),
	)
	if res.ExitReason == loop.ExitError {
		t.runSpan.SetStatus(codes.Error, res.ExitReason.Describe())
	} else {
		t.runSpan.SetStatus(codes.Ok, "")
	}
	t.runSpan.End()
	t.runSpan, t.runCtx = nil, nil
	return nil
}

func (t *Tracer) beforeLoop(ctx context.Context, it loop.IterationInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := ctx
	if t.runCtx != nil {
		parent = t.runCtx
	}
	if t.loopSpan != nil {
		t.loopSpan.End()
	}
	_, t.loopSpan = t.tracer.Start(parent, "codchestra.loop",
		oteltrace.WithAttributes(
			attribute.Int("codchestra.loop.number", it.Loop),
			attribute.Int("codchestra.max_loops", it.MaxLoops),
		),
	)
	return nil
}

func (t *Tracer) afterLoop(_ context.Context, it loop.IterationInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	span := t.loopSpan
	if span == nil {
		return nil
	}
	t.loopSpan = nil

	attrs := []attribute.KeyValue{
		attribute.Int("codchestra.agent.exit_code", it.ExitCode),
		attribute.Bool("codchestra.agent.timed_out", it.TimedOut),
		attribute.Float64("codchestra.agent.duration_seconds", it.Duration.Seconds()),
		attribute.Int("codchestra.change_score", it.Score),
		attribute.Int("codchestra.stagnation_count", it.StagnationCount),
		attribute.Bool("codchestra.status.present", it.Status != nil),
	}
	if it.Status != nil {
		attrs = append(attrs,
			attribute.Int("codchestra.status.progress", it.Status.Progress),
			attribute.Int("codchestra.status.tasks_completed", it.Status.TasksCompleted),
			attribute.Int("codchestra.status.tasks_total", it.Status.TasksTotal),
			attribute.Bool("codchestra.status.exit_signal", it.Status.ExitSignal),
		)
	}
	span.SetAttributes(attrs...)

	switch {
	case it.TimedOut:
		span.SetStatus(codes.Error, "agent call timed out")
	case it.ExitCode != 0:
		span.SetStatus(codes.Error, fmt.Sprintf("agent exited with code %d", it.ExitCode))
	}
	span.End()
	return nil
}
