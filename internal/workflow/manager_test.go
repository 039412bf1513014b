package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

func role(r core.AgentRole) *core.AgentRole { return &r }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	var mu sync.Mutex
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return NewManager(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}))
}

func TestInitialize(t *testing.T) {
	m := newTestManager(t)

	id := m.Initialize(core.WorkflowConfig{
		ID:       "wf-1",
		Phases:   []core.WorkflowPhase{core.PhaseArchitecture, core.PhaseImplementation},
		Metadata: map[string]any{"owner": "team-a"},
	})
	assert.Equal(t, "wf-1", id)

	state, ok := m.State(id)
	require.True(t, ok)
	assert.Equal(t, core.PhaseArchitecture, state.CurrentPhase)
	assert.Equal(t, StatusPending, state.Status)
	assert.Equal(t, "team-a", state.Metadata["owner"])
	assert.Empty(t, state.Transitions)
}

func TestInitialize_ReusedIDRestarts(t *testing.T) {
	tl := logging.NewTestLogger()
	m := NewManager(WithLogger(tl.Logger))

	id := m.Initialize(core.WorkflowConfig{ID: "wf-again", Phases: core.DefaultPhases})
	m.Transition(id, core.PhaseArchitecture, role(core.RoleProductAnalyst))
	m.MarkFailed(id, "boom")
	tl.AssertNotLogged(t, zapcore.WarnLevel, "workflow id reused")

	again := m.Initialize(core.WorkflowConfig{ID: "wf-again", Phases: core.DefaultPhases})
	assert.Equal(t, id, again)

	state, ok := m.State(id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, state.Status)
	assert.Equal(t, core.PhaseAnalysis, state.CurrentPhase)
	assert.Empty(t, state.Transitions)
	assert.Empty(t, state.FailedPhases)
	assert.Equal(t, []string{"wf-again"}, m.List())

	tl.AssertLogged(t, zapcore.WarnLevel, "workflow id reused")
	tl.AssertField(t, "workflow id reused", "previous_status", "failed")
	tl.AssertField(t, "workflow id reused", "discarded_transitions", int64(1))
}

func TestInitialize_DefaultsWithoutPhases(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{})

	assert.NotEmpty(t, id)
	phase, ok := m.CurrentPhase(id)
	require.True(t, ok)
	assert.Equal(t, core.PhaseAnalysis, phase)
}

func TestTransition(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{Phases: []core.WorkflowPhase{core.PhaseAnalysis, core.PhaseArchitecture}})
	before, _ := m.State(id)

	ok := m.Transition(id, core.PhaseArchitecture, role(core.RoleArchitect))
	require.True(t, ok)

	phase, _ := m.CurrentPhase(id)
	assert.Equal(t, core.PhaseArchitecture, phase)

	hist := m.History(id)
	require.Len(t, hist, 1)
	assert.Equal(t, core.PhaseArchitecture, hist[0].ToPhase)
	require.NotNil(t, hist[0].FromPhase)
	assert.Equal(t, core.PhaseAnalysis, *hist[0].FromPhase)
	assert.Equal(t, core.RoleArchitect, *hist[0].AgentRole)
	assert.True(t, hist[0].Success)

	after, _ := m.State(id)
	assert.Equal(t, StatusRunning, after.Status)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestTransition_NoOrderingEnforced(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{Phases: []core.WorkflowPhase{core.PhaseReview}})

	assert.True(t, m.Transition(id, core.PhaseAnalysis, nil))
	assert.True(t, m.Transition(id, core.PhaseDeployment, nil))
	assert.Len(t, m.History(id), 2)
}

func TestUnknownWorkflow(t *testing.T) {
	m := newTestManager(t)

	assert.False(t, m.Transition("missing", core.PhaseReview, nil))
	assert.False(t, m.Rollback("missing", core.PhaseAnalysis))
	assert.False(t, m.MarkComplete("missing"))
	assert.False(t, m.MarkFailed("missing", "x"))
	assert.Empty(t, m.History("missing"))
	_, ok := m.CurrentPhase("missing")
	assert.False(t, ok)
	_, ok = m.State("missing")
	assert.False(t, ok)
}

func TestRollback_MarksPreviousPhaseFailed(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{Phases: []core.WorkflowPhase{core.PhaseAnalysis}})
	m.Transition(id, core.PhaseImplementation, role(core.RoleDeveloper))

	require.True(t, m.Rollback(id, core.PhaseArchitecture))

	state, _ := m.State(id)
	assert.Equal(t, StatusRolledBack, state.Status)
	assert.Equal(t, core.PhaseArchitecture, state.CurrentPhase)
	assert.True(t, state.IsFailed(core.PhaseImplementation))
	assert.False(t, state.IsFailed(core.PhaseArchitecture))

	last := state.Transitions[len(state.Transitions)-1]
	assert.False(t, last.Success)
	assert.Equal(t, true, last.Metadata["rollback"])
	assert.Nil(t, last.AgentRole)
}

func TestRetryAfterRollback_PhaseInBothSets(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{Phases: []core.WorkflowPhase{core.PhaseImplementation}})

	m.Rollback(id, core.PhaseArchitecture)
	m.Transition(id, core.PhaseImplementation, role(core.RoleDeveloper))
	m.MarkComplete(id)

	state, _ := m.State(id)
	assert.True(t, state.IsFailed(core.PhaseImplementation))
	assert.True(t, state.IsCompleted(core.PhaseImplementation))
	assert.Equal(t, StatusCompleted, state.Status)
}

func TestMarkFailed(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{Phases: []core.WorkflowPhase{core.PhaseAnalysis}})

	m.MarkFailed(id, "Validation failed in analysis")
	m.MarkFailed(id, "")

	state, _ := m.State(id)
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, []core.WorkflowPhase{core.PhaseAnalysis}, state.FailedPhases)
	assert.Equal(t, "Validation failed in analysis", state.Metadata["failure_reason"])
}

func TestPauseResume(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{})

	assert.False(t, m.Pause(id), "pending workflows cannot pause")
	m.Transition(id, core.PhaseArchitecture, nil)
	assert.True(t, m.Pause(id))
	state, _ := m.State(id)
	assert.Equal(t, StatusPaused, state.Status)
	assert.True(t, m.Resume(id))
	state, _ = m.State(id)
	assert.Equal(t, StatusRunning, state.Status)
}

func TestHistory_AppendOnlyInCallOrder(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{})

	calls := []core.WorkflowPhase{core.PhaseArchitecture, core.PhaseImplementation, core.PhaseArchitecture, core.PhaseReview}
	m.Transition(id, calls[0], nil)
	m.Transition(id, calls[1], nil)
	m.Rollback(id, calls[2])
	m.Transition(id, calls[3], nil)

	hist := m.History(id)
	require.Len(t, hist, len(calls))
	for i, tr := range hist {
		assert.Equal(t, calls[i], tr.ToPhase)
		if i > 0 {
			assert.False(t, tr.Timestamp.Before(hist[i-1].Timestamp))
		}
	}
}

func TestState_ReturnsCopy(t *testing.T) {
	m := newTestManager(t)
	id := m.Initialize(core.WorkflowConfig{})
	m.Transition(id, core.PhaseReview, nil)

	state, _ := m.State(id)
	state.Transitions = nil
	state.Metadata["x"] = 1

	again, _ := m.State(id)
	assert.Len(t, again.Transitions, 1)
	assert.NotContains(t, again.Metadata, "x")
}

func TestValidatePhaseCompletion_NoOutput(t *testing.T) {
	m := newTestManager(t)

	res := m.ValidatePhaseCompletion(context.Background(), core.PhaseImplementation, nil)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "NO_OUTPUT", res.Errors[0].Code)
	assert.Equal(t, "No outputs generated for phase implementation", res.Errors[0].Message)
}

func TestValidatePhaseCompletion_Rules(t *testing.T) {
	tl := logging.NewTestLogger()
	m := NewManager(WithLogger(tl.Logger))
	m.RegisterValidator("mentions_tests", RuleValidatorFunc(func(_ ValidationRule, outs []core.AgentOutput) []string {
		return []string{"no tests mentioned"}
	}))

	m.AddValidationRule(ValidationRule{RuleID: "R1", Name: "tests", Phase: core.PhaseImplementation, ValidatorFunction: "mentions_tests", Severity: core.SeverityError, Enabled: true})
	m.AddValidationRule(ValidationRule{RuleID: "R2", Name: "soft", Phase: core.PhaseImplementation, ValidatorFunction: "mentions_tests", Severity: core.SeverityWarning, Enabled: true})
	m.AddValidationRule(ValidationRule{RuleID: "R3", Name: "off", Phase: core.PhaseImplementation, ValidatorFunction: "mentions_tests", Severity: core.SeverityError, Enabled: false})
	m.AddValidationRule(ValidationRule{RuleID: "R4", Name: "ghost", Phase: core.PhaseImplementation, ValidatorFunction: "unregistered", Severity: core.SeverityError, Enabled: true})
	m.AddValidationRule(ValidationRule{RuleID: "R5", Name: "other", Phase: core.PhaseReview, ValidatorFunction: "mentions_tests", Severity: core.SeverityError, Enabled: true})

	outs := []core.AgentOutput{core.NewAgentOutput(core.RoleDeveloper, "t", "some code")}
	res := m.ValidatePhaseCompletion(context.Background(), core.PhaseImplementation, outs)

	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "R1", res.Errors[0].Code)
	assert.Equal(t, []string{"soft: no tests mentioned"}, res.Warnings)
	tl.AssertLogged(t, zapcore.DebugLevel, "skipping rule without validator")
}

func TestBuiltinValidators(t *testing.T) {
	m := newTestManager(t)
	m.AddValidationRule(ValidationRule{RuleID: "LEN", Name: "length", Phase: core.PhaseReview, ValidatorFunction: ValidatorMinContentLength, Severity: core.SeverityError, Enabled: true})
	m.AddValidationRule(ValidationRule{RuleID: "ART", Name: "artifacts", Phase: core.PhaseReview, ValidatorFunction: ValidatorHasArtifacts, Severity: core.SeverityWarning, Enabled: true})
	m.AddValidationRule(ValidationRule{RuleID: "PH", Name: "placeholders", Phase: core.PhaseReview, ValidatorFunction: ValidatorNoPlaceholders, Severity: core.SeverityWarning, Enabled: true})

	short := core.NewAgentOutput(core.RoleCodeReviewer, "t", "TODO")
	res := m.ValidatePhaseCompletion(context.Background(), core.PhaseReview, []core.AgentOutput{short})

	assert.False(t, res.IsValid)
	assert.Equal(t, "LEN", res.Errors[0].Code)
	assert.Len(t, res.Warnings, 2)
	assert.Len(t, m.Rules(core.PhaseReview), 3)
	assert.True(t, m.HasValidator(ValidatorHasArtifacts))
}

func TestList(t *testing.T) {
	m := newTestManager(t)
	first := m.Initialize(core.WorkflowConfig{ID: "b"})
	second := m.Initialize(core.WorkflowConfig{ID: "a"})

	assert.Equal(t, []string{first, second}, m.List())
}
