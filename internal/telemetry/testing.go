package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory.
type TestTelemetry struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry returns an enabled Telemetry whose providers never leave
// the process. It does not touch the otel globals.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			cfg:            cfg,
			tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		spans:  spans,
		reader: reader,
	}
}

// Spans returns ended spans in end order.
func (t *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return t.spans.Ended()
}

// SpanByName returns the first ended span called name.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Spans() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// SpanNames lists ended span names in end order.
func (t *TestTelemetry) SpanNames() []string {
	spans := t.Spans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	return names
}

// AssertSpanExists fails tb unless a span called name has ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) == nil {
		tb.Errorf("span %q not recorded; have %v", name, t.SpanNames())
	}
}

// AssertSpanAttribute fails tb unless span name carries key=want.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	span := t.SpanByName(name)
	if span == nil {
		tb.Fatalf("span %q not recorded; have %v", name, t.SpanNames())
	}
	for _, kv := range span.Attributes() {
		if string(kv.Key) != key {
			continue
		}
		if got := plain(kv.Value); got != want {
			tb.Errorf("span %q %s = %v (%T), want %v (%T)", name, key, got, got, want, want)
		}
		return
	}
	tb.Errorf("span %q has no attribute %q", name, key)
}

// Collect reads the current metric state.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.reader.Collect(ctx, &rm)
	return rm, err
}

// Sum totals every data point of the int64 counter called name.
func (t *TestTelemetry) Sum(ctx context.Context, name string) (int64, bool) {
	rm, err := t.Collect(ctx)
	if err != nil {
		return 0, false
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return 0, false
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

// plain converts an attribute value so it compares equal to Go literals.
func plain(v attribute.Value) any {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.BOOL:
		return v.AsBool()
	default:
		return v.AsInterface()
	}
}
