package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/agentflow/internal/http"

// requestMetrics records status API traffic by route.
type requestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	bytes    metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

func newRequestMetrics(meter metric.Meter) (*requestMetrics, error) {
	m := &requestMetrics{}
	var errs [4]error
	m.requests, errs[0] = meter.Int64Counter("agentflow.http.requests",
		metric.WithDescription("Status API requests by method, route and status"),
		metric.WithUnit("{request}"))
	m.latency, errs[1] = meter.Float64Histogram("agentflow.http.latency",
		metric.WithDescription("Status API request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5))
	m.bytes, errs[2] = meter.Int64Histogram("agentflow.http.response_bytes",
		metric.WithDescription("Status API response body size"),
		metric.WithUnit("By"),
		// Log queries can return up to maxLogLimit entries.
		metric.WithExplicitBucketBoundaries(256, 1<<10, 4<<10, 16<<10, 64<<10, 256<<10, 1<<20))
	m.inFlight, errs[3] = meter.Int64UpDownCounter("agentflow.http.in_flight",
		metric.WithDescription("Status API requests currently being served"),
		metric.WithUnit("{request}"))
	return m, errors.Join(errs[:]...)
}

func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)

			err := next(c)

			set := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.Int("status", statusOf(c, err)),
			)
			m.requests.Add(ctx, 1, set)
			m.latency.Record(ctx, time.Since(start).Seconds(), set)
			m.bytes.Record(ctx, c.Response().Size, set)
			return err
		}
	}
}

// routeLabel uses the registered pattern so workflow ids stay out of labels.
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	return pattern
}

// statusOf reports the status the error handler will write when the
// handler returned an error before committing a response.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
