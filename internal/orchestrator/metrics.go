package orchestrator

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/metric"
)

var (
	// WorkflowsTotal counts finished workflow runs.
	// Labels: status (completed, failed)
	WorkflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentflow",
			Subsystem: "orchestrator",
			Name:      "workflows_total",
			Help:      "Total number of workflow runs by final status",
		},
		[]string{"status"},
	)

	// PhaseDuration tracks how long each phase took, validation included.
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentflow",
			Subsystem: "orchestrator",
			Name:      "phase_duration_seconds",
			Help:      "Duration of workflow phases in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase", "result"},
	)

	// AgentInvocations counts agent executions.
	// Labels: role, result (success, error)
	AgentInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentflow",
			Subsystem: "orchestrator",
			Name:      "agent_invocations_total",
			Help:      "Total number of agent invocations",
		},
		[]string{"role", "result"},
	)
)

func (o *Orchestrator) initMetrics() error {
	var err error
	o.phaseDuration, err = o.meter.Float64Histogram(
		"agentflow.phase.duration",
		metric.WithDescription("Duration of workflow phases"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating phase duration histogram: %w", err)
	}
	o.workflowTotal, err = o.meter.Int64Counter(
		"agentflow.workflow.total",
		metric.WithDescription("Workflow runs by final status"),
	)
	if err != nil {
		return fmt.Errorf("creating workflow counter: %w", err)
	}
	return nil
}
