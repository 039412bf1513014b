package workflow

import (
	"time"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// Status is the lifecycle state of a workflow.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Transition is an immutable record of one phase change. FromPhase is nil
// for an initial transition.
type Transition struct {
	FromPhase *core.WorkflowPhase `json:"from_phase"`
	ToPhase   core.WorkflowPhase  `json:"to_phase"`
	Timestamp time.Time           `json:"timestamp"`
	AgentRole *core.AgentRole     `json:"agent_role"`
	Success   bool                `json:"success"`
	Metadata  map[string]any      `json:"metadata"`
}

// State is one workflow's execution state.
type State struct {
	WorkflowID      string               `json:"workflow_id"`
	CurrentPhase    core.WorkflowPhase   `json:"current_phase"`
	Status          Status               `json:"status"`
	Transitions     []Transition         `json:"transitions"`
	CompletedPhases []core.WorkflowPhase `json:"completed_phases"`
	FailedPhases    []core.WorkflowPhase `json:"failed_phases"`
	Metadata        map[string]any       `json:"metadata"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// AddTransition appends t and stamps UpdatedAt.
func (s *State) AddTransition(t Transition, now time.Time) {
	s.Transitions = append(s.Transitions, t)
	s.UpdatedAt = now
}

// MarkPhaseComplete adds phase to the completed set.
func (s *State) MarkPhaseComplete(phase core.WorkflowPhase, now time.Time) {
	s.CompletedPhases = addPhase(s.CompletedPhases, phase)
	s.UpdatedAt = now
}

// MarkPhaseFailed adds phase to the failed set. A phase may be in both
// sets after a retry.
func (s *State) MarkPhaseFailed(phase core.WorkflowPhase, now time.Time) {
	s.FailedPhases = addPhase(s.FailedPhases, phase)
	s.UpdatedAt = now
}

// IsCompleted reports whether phase is in the completed set.
func (s *State) IsCompleted(phase core.WorkflowPhase) bool {
	return hasPhase(s.CompletedPhases, phase)
}

// IsFailed reports whether phase is in the failed set.
func (s *State) IsFailed(phase core.WorkflowPhase) bool {
	return hasPhase(s.FailedPhases, phase)
}

func (s *State) clone() *State {
	out := *s
	out.Transitions = make([]Transition, len(s.Transitions))
	for i, t := range s.Transitions {
		t.Metadata = core.CloneMetadata(t.Metadata)
		out.Transitions[i] = t
	}
	out.CompletedPhases = append([]core.WorkflowPhase{}, s.CompletedPhases...)
	out.FailedPhases = append([]core.WorkflowPhase{}, s.FailedPhases...)
	out.Metadata = core.CloneMetadata(s.Metadata)
	return &out
}

func addPhase(set []core.WorkflowPhase, phase core.WorkflowPhase) []core.WorkflowPhase {
	if hasPhase(set, phase) {
		return set
	}
	return append(set, phase)
}

func hasPhase(set []core.WorkflowPhase, phase core.WorkflowPhase) bool {
	for _, p := range set {
		if p == phase {
			return true
		}
	}
	return false
}

// ValidationRule is a named, per-phase check evaluated by the RuleValidator
// registered under ValidatorFunction.
type ValidationRule struct {
	RuleID            string             `json:"rule_id"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	Phase             core.WorkflowPhase `json:"phase"`
	ValidatorFunction string             `json:"validator_function"`
	Severity          core.Severity      `json:"severity"`
	Enabled           bool               `json:"enabled"`
}
