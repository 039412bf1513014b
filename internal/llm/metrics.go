package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts Generate calls.
	// Labels: provider, result (success, error)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentflow",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"provider", "result"},
	)

	// RetriesTotal counts retried attempts after 429 or 5xx responses.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentflow",
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total number of retried generation attempts",
		},
		[]string{"provider"},
	)

	// RequestDuration tracks Generate latency, retries included.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentflow",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of generation requests in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
)

// observe records fn's outcome and latency under provider.
func observe(provider string, fn func() (string, error)) (string, error) {
	start := time.Now()
	text, err := fn()
	RequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	RequestsTotal.WithLabelValues(provider, result).Inc()
	return text, err
}

// observed returns p with retries counted under provider.
func (p retryPolicy) observed(provider string) retryPolicy {
	next := p.onRetry
	p.onRetry = func(attempt int, err error) {
		RetriesTotal.WithLabelValues(provider).Inc()
		if next != nil {
			next(attempt, err)
		}
	}
	return p
}
