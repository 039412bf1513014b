package monitor

import (
	"slices"
	"time"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

// recentItems is how many timeline items the dashboard shows.
const recentItems = 5

// Snapshot is what the dashboard knows about one workflow at one refresh.
type Snapshot struct {
	WorkflowID      string
	Name            string
	Status          workflow.Status
	CurrentPhase    core.WorkflowPhase
	Phases          []core.WorkflowPhase
	CompletedPhases []core.WorkflowPhase
	FailedPhases    []core.WorkflowPhase
	FailureReason   string
	Elapsed         time.Duration

	TotalEntries   int
	ActivityCounts map[activitylog.ActivityType]int
	AgentCounts    map[core.AgentRole]int
	Recent         []activitylog.TimelineItem
}

// NewSnapshot combines a state and its summary. The planned phase list comes
// from state metadata written when the workflow started; without it the
// phases seen in the transitions are used.
func NewSnapshot(state *workflow.State, summary *activitylog.Summary, now time.Time) Snapshot {
	s := Snapshot{
		WorkflowID:      state.WorkflowID,
		Status:          state.Status,
		CurrentPhase:    state.CurrentPhase,
		CompletedPhases: state.CompletedPhases,
		FailedPhases:    state.FailedPhases,
		Phases:          plannedPhases(state),
	}
	s.Name, _ = state.Metadata["workflow_name"].(string)
	s.FailureReason, _ = state.Metadata["failure_reason"].(string)

	end := now
	if s.Finished() {
		end = state.UpdatedAt
	}
	if !state.CreatedAt.IsZero() && end.After(state.CreatedAt) {
		s.Elapsed = end.Sub(state.CreatedAt)
	}

	if summary != nil {
		s.TotalEntries = summary.TotalEntries
		s.ActivityCounts = summary.ActivityCounts
		s.AgentCounts = summary.AgentCounts
		recent := summary.Timeline
		if len(recent) > recentItems {
			recent = recent[len(recent)-recentItems:]
		}
		s.Recent = recent
	}
	return s
}

func plannedPhases(state *workflow.State) []core.WorkflowPhase {
	// JSON decoding turns the stored []string into []any.
	switch raw := state.Metadata["phases"].(type) {
	case []string:
		out := make([]core.WorkflowPhase, len(raw))
		for i, p := range raw {
			out[i] = core.WorkflowPhase(p)
		}
		return out
	case []any:
		out := make([]core.WorkflowPhase, 0, len(raw))
		for _, p := range raw {
			if str, ok := p.(string); ok {
				out = append(out, core.WorkflowPhase(str))
			}
		}
		return out
	}

	var seen []core.WorkflowPhase
	add := func(p core.WorkflowPhase) {
		if !slices.Contains(seen, p) {
			seen = append(seen, p)
		}
	}
	for _, t := range state.Transitions {
		if t.FromPhase != nil {
			add(*t.FromPhase)
		}
		add(t.ToPhase)
	}
	if len(seen) == 0 {
		add(state.CurrentPhase)
	}
	return seen
}

// Finished reports whether the workflow reached a terminal status.
func (s Snapshot) Finished() bool {
	switch s.Status {
	case workflow.StatusCompleted, workflow.StatusFailed, workflow.StatusRolledBack:
		return true
	}
	return false
}

// PhaseState is how a planned phase is drawn.
type PhaseState int

const (
	PhasePending PhaseState = iota
	PhaseActive
	PhaseDone
	PhaseFailed
)

// PhaseState reports the state of p. Phases before the current one are done:
// a workflow only moves on after a phase validates.
func (s Snapshot) PhaseState(p core.WorkflowPhase) PhaseState {
	switch {
	case slices.Contains(s.FailedPhases, p):
		return PhaseFailed
	case slices.Contains(s.CompletedPhases, p):
		return PhaseDone
	}
	cur := slices.Index(s.Phases, s.CurrentPhase)
	idx := slices.Index(s.Phases, p)
	switch {
	case idx >= 0 && cur >= 0 && idx < cur:
		return PhaseDone
	case p == s.CurrentPhase && s.Status == workflow.StatusCompleted:
		return PhaseDone
	case p == s.CurrentPhase && !s.Finished():
		return PhaseActive
	}
	return PhasePending
}

// Progress is the fraction of planned phases that are done, in [0, 1].
func (s Snapshot) Progress() float64 {
	if len(s.Phases) == 0 {
		return 0
	}
	done := 0
	for _, p := range s.Phases {
		if s.PhaseState(p) == PhaseDone {
			done++
		}
	}
	return float64(done) / float64(len(s.Phases))
}
