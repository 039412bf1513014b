package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

func newRecordedMetrics(t *testing.T) (*toolMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := newToolMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter(instrumentationName))
	require.NoError(t, err)
	return m, reader
}

// sums totals int64 sum data points per metric, split by the reason label
// when present.
func sums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key := m.Name
				if reason, ok := dp.Attributes.Value(attribute.Key("reason")); ok {
					key += "/" + reason.AsString()
				}
				out[key] += dp.Value
			}
		}
	}
	return out
}

func TestToolMetricsBegin(t *testing.T) {
	m, reader := newRecordedMetrics(t)
	ctx := context.Background()

	m.begin(ctx, "workflow_status")(nil)
	m.begin(ctx, "workflow_status")(fmt.Errorf("%w: wf-9", workflow.ErrWorkflowNotFound))
	pending := m.begin(ctx, "query_logs")

	got := sums(t, reader)
	assert.Equal(t, int64(2), got["agentflow.mcp.tool.calls"])
	assert.Equal(t, int64(1), got["agentflow.mcp.tool.failures/not_found"])
	assert.Equal(t, int64(1), got["agentflow.mcp.tool.in_flight"])

	pending(nil)
	got = sums(t, reader)
	assert.Equal(t, int64(3), got["agentflow.mcp.tool.calls"])
	assert.Equal(t, int64(0), got["agentflow.mcp.tool.in_flight"])
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: wf-1", workflow.ErrWorkflowNotFound), "not_found"},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), "timeout"},
		{context.Canceled, "canceled"},
		{core.NewError(core.KindWorkflow, "cancelled", nil), "workflow"},
		{fmt.Errorf("load: %w", core.NewError(core.KindConfiguration, "bad", nil)), "configuration"},
		{errors.New(`invalid role "bard"`), "invalid_input"},
		{errors.New("disk on fire"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureReason(tt.err), "%v", tt.err)
	}
}
