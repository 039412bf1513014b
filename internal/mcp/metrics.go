package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

const instrumentationName = "github.com/fyrsmithlabs/agentflow/internal/mcp"

// toolMetrics counts tool calls by tool name.
type toolMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newToolMetrics(meter metric.Meter) (*toolMetrics, error) {
	m := &toolMetrics{}
	var errs [4]error
	m.calls, errs[0] = meter.Int64Counter("agentflow.mcp.tool.calls",
		metric.WithDescription("MCP tool calls"),
		metric.WithUnit("{call}"))
	m.failures, errs[1] = meter.Int64Counter("agentflow.mcp.tool.failures",
		metric.WithDescription("MCP tool calls that returned an error, by reason"),
		metric.WithUnit("{call}"))
	m.latency, errs[2] = meter.Float64Histogram("agentflow.mcp.tool.latency",
		metric.WithDescription("MCP tool call latency"),
		metric.WithUnit("s"),
		// Tools read local files; anything past a second is pathological.
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1))
	m.inFlight, errs[3] = meter.Int64UpDownCounter("agentflow.mcp.tool.in_flight",
		metric.WithDescription("MCP tool calls currently executing"),
		metric.WithUnit("{call}"))
	return m, errors.Join(errs[:]...)
}

// begin marks a call to tool as in flight. The returned func records the
// outcome and must be called exactly once.
func (m *toolMetrics) begin(ctx context.Context, tool string) func(error) {
	start := time.Now()
	byTool := metric.WithAttributes(attribute.String("tool", tool))
	m.inFlight.Add(ctx, 1, byTool)

	return func(err error) {
		m.inFlight.Add(ctx, -1, byTool)
		m.calls.Add(ctx, 1, byTool)
		m.latency.Record(ctx, time.Since(start).Seconds(), byTool)
		if err != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", failureReason(err)),
			))
		}
	}
}

// failureReason keeps the reason label to a handful of values.
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	if kind := core.Classify(err); kind != core.KindUnknown {
		return string(kind)
	}
	if strings.HasPrefix(err.Error(), "invalid") {
		return "invalid_input"
	}
	return "internal"
}
