package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
)

func TestNewDisabled(t *testing.T) {
	tel, err := New(context.Background(), nil)
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("agentflow.test"))
	assert.NotNil(t, tel.Meter("agentflow.test"))
	assert.Nil(t, tel.LoggerProvider())
	assert.False(t, tel.IsEnabled())

	h := tel.Health()
	assert.False(t, h.Enabled)
	assert.True(t, h.Healthy)
	assert.False(t, h.Degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewInvalid(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: true})
	assert.Nil(t, tel)
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestNewEnabledWithoutCollector(t *testing.T) {
	// OTLP exporters connect lazily, so setup succeeds with nothing listening.
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "127.0.0.1:1"
	cfg.ShutdownTimeout = 100 * time.Millisecond

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())
	assert.NotNil(t, tel.LoggerProvider())
	assert.False(t, tel.Health().Degraded)

	_ = tel.Shutdown(context.Background())
	assert.False(t, tel.IsEnabled())
	assert.False(t, tel.Health().Healthy)
	assert.NoError(t, tel.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotPanics(t, func() {
		_ = tel.Tracer("x")
		_ = tel.Meter("x")
		tel.SetLoggerProvider(noop.NewLoggerProvider())
		assert.Nil(t, tel.LoggerProvider())
		assert.False(t, tel.IsEnabled())
		assert.NoError(t, tel.ForceFlush(context.Background()))
		assert.NoError(t, tel.Shutdown(context.Background()))
	})
	h := tel.Health()
	assert.True(t, h.Degraded)
	assert.NotEmpty(t, h.Problems)
}

func TestDegradeRecordsProblems(t *testing.T) {
	tel := &Telemetry{cfg: NewDefaultConfig()}
	tel.degrade(assert.AnError)

	h := tel.Health()
	assert.True(t, h.Degraded)
	assert.Equal(t, []string{assert.AnError.Error()}, h.Problems)

	h.Problems[0] = "mutated"
	assert.Equal(t, assert.AnError.Error(), tel.Health().Problems[0])
}

func TestSetLoggerProvider(t *testing.T) {
	tel, err := New(context.Background(), nil)
	require.NoError(t, err)

	lp := noop.NewLoggerProvider()
	tel.SetLoggerProvider(lp)
	assert.Equal(t, lp, tel.LoggerProvider())
}

func TestTestTelemetrySpans(t *testing.T) {
	ctx := context.Background()
	tt := NewTestTelemetry()

	ctx, parent := tt.Tracer("agentflow.test").Start(ctx, "workflow.execute")
	_, child := tt.Tracer("agentflow.test").Start(ctx, "agent.invoke")
	child.SetAttributes(
		attribute.String("agent.role", "architect"),
		attribute.Int("attempt", 2),
		attribute.Bool("retried", true),
		attribute.Float64("score", 0.5),
	)
	child.End()
	parent.End()

	assert.Equal(t, []string{"agent.invoke", "workflow.execute"}, tt.SpanNames())
	tt.AssertSpanExists(t, "workflow.execute")
	tt.AssertSpanAttribute(t, "agent.invoke", "agent.role", "architect")
	tt.AssertSpanAttribute(t, "agent.invoke", "attempt", int64(2))
	tt.AssertSpanAttribute(t, "agent.invoke", "retried", true)
	tt.AssertSpanAttribute(t, "agent.invoke", "score", 0.5)
	assert.Nil(t, tt.SpanByName("phase.validate"))

	require.NotNil(t, tt.SpanByName("agent.invoke"))
	assert.Equal(t,
		tt.SpanByName("workflow.execute").SpanContext().SpanID(),
		tt.SpanByName("agent.invoke").Parent().SpanID())
}

func TestTestTelemetryMissingSpanFails(t *testing.T) {
	tt := NewTestTelemetry()
	probe := &failRecorder{}
	tt.AssertSpanExists(probe, "workflow.execute")
	assert.True(t, probe.failed)
}

// failRecorder captures assertion failures without failing the outer test.
type failRecorder struct {
	testing.TB
	failed bool
}

func (*failRecorder) Helper()                 {}
func (f *failRecorder) Errorf(string, ...any) { f.failed = true }
func (f *failRecorder) Fatalf(string, ...any) { f.failed = true }

func TestTestTelemetrySum(t *testing.T) {
	ctx := context.Background()
	tt := NewTestTelemetry()

	counter, err := tt.Meter("agentflow.test").Int64Counter("agentflow.workflow.total")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("status", "completed")))
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "failed")))

	total, ok := tt.Sum(ctx, "agentflow.workflow.total")
	require.True(t, ok)
	assert.Equal(t, int64(3), total)

	_, ok = tt.Sum(ctx, "agentflow.phase.duration")
	assert.False(t, ok)

	require.NoError(t, tt.ForceFlush(ctx))
	require.NoError(t, tt.Shutdown(ctx))
}
