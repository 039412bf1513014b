package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the trace and metric providers for one process.
//
// A nil or disabled Telemetry hands out the global providers, which are
// no-ops unless something else installed real ones. Export failures during
// setup degrade the instance instead of failing the command.
type Telemetry struct {
	cfg *Config

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    log.LoggerProvider

	mu       sync.Mutex
	problems []string
	closed   bool
}

// HealthStatus describes the exporter state.
type HealthStatus struct {
	Enabled  bool
	Healthy  bool
	Degraded bool
	// Problems lists why export is partially or fully unavailable.
	Problems []string
}

// New validates cfg and, when enabled, installs OTLP providers as the
// process globals so instrumentation in dependencies reports through them.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{cfg: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := serviceResource(cfg)

	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.degrade(err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricInterval > 0 {
		if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
			t.degrade(err)
		} else {
			t.meterProvider = mp
			otel.SetMeterProvider(mp)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Log export rides on whatever provider the embedding process registered.
	t.logProvider = global.GetLoggerProvider()
	return t, nil
}

// Tracer returns a tracer scoped to name.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter scoped to name.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider feeds the zap bridge. Nil when telemetry is disabled.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logProvider
}

// SetLoggerProvider replaces the provider handed to the zap bridge.
func (t *Telemetry) SetLoggerProvider(lp log.LoggerProvider) {
	if t != nil {
		t.logProvider = lp
	}
}

// IsEnabled reports whether telemetry is on and not yet shut down.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.cfg == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Enabled && !t.closed
}

// Health snapshots the exporter state.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true, Problems: []string{"telemetry not initialised"}}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return HealthStatus{
		Enabled:  t.cfg != nil && t.cfg.Enabled,
		Healthy:  !t.closed,
		Degraded: len(t.problems) > 0,
		Problems: append([]string(nil), t.problems...),
	}
}

// ForceFlush exports everything buffered so far.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush spans: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the providers. Without a deadline on ctx the
// configured shutdown timeout applies. Calling it twice is harmless.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && t.cfg != nil && t.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop tracer provider: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telemetry) degrade(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.problems = append(t.problems, err.Error())
}
