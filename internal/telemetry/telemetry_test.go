package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
)

func newRecorder(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewWithProvider(tp), sr
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestTracer_RunWithIterations(t *testing.T) {
	tr, sr := newRecorder(t)
	h := tr.Hook()
	ctx := context.Background()

	run := loop.RunInfo{Dir: "/p", SessionID: "s-1", MaxLoops: 5, StartedAt: time.Now()}
	require.NoError(t, h.BeforeRun(ctx, run))

	for i := 1; i <= 2; i++ {
		require.NoError(t, h.BeforeLoop(ctx, loop.IterationInfo{Loop: i, MaxLoops: 5}))
		it := loop.IterationInfo{Loop: i, MaxLoops: 5, Score: i * 3, Duration: time.Second}
		if i == 2 {
			it.Status = &status.Parsed{Progress: 100, TasksCompleted: 2, TasksTotal: 2, ExitSignal: true}
		}
		require.NoError(t, h.AfterLoop(ctx, it))
	}
	require.NoError(t, h.AfterRun(ctx, run, loop.Result{OK: true, ExitReason: loop.ExitSignal, Loop: 2}))

	spans := sr.Ended()
	require.Len(t, spans, 3)

	runSpan := spans[2]
	assert.Equal(t, "codchestra.run", runSpan.Name())
	assert.Equal(t, codes.Ok, runSpan.Status().Code)
	attrs := attrMap(runSpan)
	assert.Equal(t, "s-1", attrs["codchestra.session_id"].AsString())
	assert.Equal(t, "exit_signal", attrs["codchestra.exit_reason"].AsString())
	assert.True(t, attrs["codchestra.ok"].AsBool())

	for i, span := range spans[:2] {
		assert.Equal(t, "codchestra.loop", span.Name())
		assert.Equal(t, runSpan.SpanContext().SpanID(), span.Parent().SpanID())
		assert.Equal(t, runSpan.SpanContext().TraceID(), span.SpanContext().TraceID())
		assert.EqualValues(t, i+1, attrMap(span)["codchestra.loop.number"].AsInt64())
	}
	last := attrMap(spans[1])
	assert.True(t, last["codchestra.status.exit_signal"].AsBool())
	assert.EqualValues(t, 100, last["codchestra.status.progress"].AsInt64())
	assert.False(t, attrMap(spans[0])["codchestra.status.present"].AsBool())
}

func TestTracer_FailedIteration(t *testing.T) {
	tr, sr := newRecorder(t)
	h := tr.Hook()
	ctx := context.Background()

	require.NoError(t, h.BeforeRun(ctx, loop.RunInfo{}))
	require.NoError(t, h.BeforeLoop(ctx, loop.IterationInfo{Loop: 1}))
	require.NoError(t, h.AfterLoop(ctx, loop.IterationInfo{Loop: 1, ExitCode: 2}))
	require.NoError(t, h.BeforeLoop(ctx, loop.IterationInfo{Loop: 2}))
	require.NoError(t, h.AfterLoop(ctx, loop.IterationInfo{Loop: 2, TimedOut: true, ExitCode: -1}))
	require.NoError(t, h.AfterRun(ctx, loop.RunInfo{}, loop.Result{ExitReason: loop.ExitMaxLoops, Loop: 2}))

	spans := sr.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, "code 2")
	assert.Equal(t, "agent call timed out", spans[1].Status().Description)
	assert.Equal(t, codes.Ok, spans[2].Status().Code)
}

func TestTracer_FatalErrorEndsOpenLoopSpan(t *testing.T) {
	tr, sr := newRecorder(t)
	h := tr.Hook()
	ctx := context.Background()

	require.NoError(t, h.BeforeRun(ctx, loop.RunInfo{}))
	require.NoError(t, h.BeforeLoop(ctx, loop.IterationInfo{Loop: 1}))
	require.NoError(t, h.AfterRun(ctx, loop.RunInfo{}, loop.Result{ExitReason: loop.ExitError, Loop: 1}))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "codchestra.loop", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "codchestra.run", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestTracer_WiredIntoLoopHooks(t *testing.T) {
	tr, _ := newRecorder(t)
	h := tr.Hook()
	assert.Equal(t, "telemetry", h.Name)
	assert.NotNil(t, h.BeforeRun)
	assert.NotNil(t, h.AfterRun)
	assert.NotNil(t, h.BeforeLoop)
	assert.NotNil(t, h.AfterLoop)
}

func TestTracer_Shutdown(t *testing.T) {
	tr, _ := newRecorder(t)
	assert.NoError(t, tr.Shutdown(context.Background()))

	var nilTracer *Tracer
	assert.NoError(t, nilTracer.Shutdown(context.Background()))
}

func TestNew_EndpointURL(t *testing.T) {
	tr, err := New(context.Background(), "http://127.0.0.1:4318", "")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Nothing was recorded, so shutdown does not need to reach the collector.
	assert.NoError(t, tr.Shutdown(ctx))
}
