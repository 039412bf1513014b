package orchestrator

import (
	"fmt"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// PhaseStatus is the state reported for a phase in a progress update.
type PhaseStatus string

const (
	PhaseStarted   PhaseStatus = "started"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// PhaseProgress reports progress during execution.
type PhaseProgress struct {
	WorkflowID string             `json:"workflow_id"`
	Phase      core.WorkflowPhase `json:"phase"`
	Status     PhaseStatus        `json:"status"`
	Message    string             `json:"message"`
	Percentage int                `json:"percentage"`
}

// ProgressCallback receives progress updates during execution.
type ProgressCallback func(progress PhaseProgress)

func (o *Orchestrator) reportProgress(id string, phase core.WorkflowPhase, status PhaseStatus, done, total int) {
	if o.progress == nil {
		return
	}
	pct := 100
	if total > 0 {
		pct = done * 100 / total
	}
	o.progress(PhaseProgress{
		WorkflowID: id,
		Phase:      phase,
		Status:     status,
		Message:    fmt.Sprintf("Phase %s %s", phase, status),
		Percentage: pct,
	})
}
