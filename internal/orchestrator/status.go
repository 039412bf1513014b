package orchestrator

import (
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

// Status is the externally visible summary of one workflow.
type Status struct {
	WorkflowID      string               `json:"workflow_id,omitempty"`
	Status          workflow.Status      `json:"status,omitempty"`
	CurrentPhase    core.WorkflowPhase   `json:"current_phase,omitempty"`
	CompletedPhases []core.WorkflowPhase `json:"completed_phases,omitempty"`
	FailedPhases    []core.WorkflowPhase `json:"failed_phases,omitempty"`
	FailureReason   string               `json:"failure_reason,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// Found reports whether the status describes a known workflow.
func (s Status) Found() bool { return s.Error == "" }

// WorkflowStatus summarises workflow id. Unknown ids yield a Status whose
// Error is "Workflow not found".
func (o *Orchestrator) WorkflowStatus(id string) Status {
	state, ok := o.workflows.State(id)
	if !ok {
		return Status{Error: "Workflow not found"}
	}
	st := Status{
		WorkflowID:      state.WorkflowID,
		Status:          state.Status,
		CurrentPhase:    state.CurrentPhase,
		CompletedPhases: state.CompletedPhases,
		FailedPhases:    state.FailedPhases,
	}
	if reason, ok := state.Metadata["failure_reason"].(string); ok {
		st.FailureReason = reason
	}
	return st
}
