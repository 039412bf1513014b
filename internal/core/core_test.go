package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask_Defaults(t *testing.T) {
	task := NewTask("Build login", nil, nil)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, PriorityMedium, task.Priority)
	assert.NotNil(t, task.Requirements)
	assert.NotNil(t, task.Metadata)
	assert.Empty(t, task.ContextIDs)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestValidationResult_AddError(t *testing.T) {
	r := NewValidationResult()
	r.AddWarning("short")
	assert.True(t, r.IsValid, "warnings never affect validity")

	r.AddError(ValidationError{Code: "EMPTY_OUTPUT", Message: "empty", Severity: SeverityError})
	assert.False(t, r.IsValid)
	assert.Len(t, r.Errors, 1)
}

func TestAgentOutput_JSONRoundTrip(t *testing.T) {
	out := NewAgentOutput(RoleArchitect, "task-1", "design")
	out.Artifacts = append(out.Artifacts, Artifact{Type: ArtifactDiagram, Path: "arch.md", Content: "graph"})
	out.ValidationStatus = ValidationNeedsReview

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"agent_role":"architect"`)
	assert.Contains(t, string(data), `"validation_status":"needs_review"`)

	var decoded AgentOutput
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, out.AgentRole, decoded.AgentRole)
	assert.Equal(t, out.ValidationStatus, decoded.ValidationStatus)
	assert.True(t, out.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, ArtifactDiagram, decoded.Artifacts[0].Type)
}

func TestWorkflowConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WorkflowConfig
		wantErr bool
	}{
		{name: "default", cfg: DefaultWorkflowConfig("demo")},
		{name: "empty phases", cfg: WorkflowConfig{}},
		{
			name:    "unknown phase",
			cfg:     WorkflowConfig{Phases: []WorkflowPhase{PhaseAnalysis, "launch"}},
			wantErr: true,
		},
		{
			name:    "unknown role",
			cfg:     WorkflowConfig{AgentRoles: []AgentRole{"wizard"}},
			wantErr: true,
		},
		{
			name: "unknown rule phase",
			cfg: WorkflowConfig{ValidationRules: map[WorkflowPhase][]string{
				"launch": {"r1"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindConfiguration, Classify(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		err         error
		strategy    Strategy
		recoverable bool
		maxRetries  int
	}{
		{NewError(KindConfiguration, "missing key", nil), StrategyFailFast, false, 0},
		{NewError(KindValidation, "bad output", nil), StrategyRollback, true, 0},
		{NewError(KindLLM, "rate limited", nil), StrategyRetry, true, 5},
		{NewError(KindWorkflow, "unknown id", nil), StrategyRollback, true, 0},
		{errors.New("boom"), StrategyEscalate, false, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			res := Resolve(tt.err, 5)
			assert.Equal(t, tt.strategy, res.Strategy)
			assert.Equal(t, tt.recoverable, res.Recoverable)
			assert.Equal(t, tt.maxRetries, res.MaxRetries)
		})
	}
}

func TestResolve_NilAndDefaults(t *testing.T) {
	assert.NotPanics(t, func() {
		res := Resolve(nil, 2)
		assert.Equal(t, StrategyNone, res.Strategy)
		assert.True(t, res.Recoverable)
		assert.Empty(t, res.Message)
	})

	res := Resolve(NewError(KindLLM, "rate limited", nil), 0)
	assert.Equal(t, DefaultMaxRetries, res.MaxRetries)
	assert.Equal(t, "LLM error: rate limited", res.Message)
}

func TestClassify_Wrapped(t *testing.T) {
	base := NewError(KindLLM, "generation failed", errors.New("503"))
	wrapped := fmt.Errorf("invoke architect: %w", base)

	assert.Equal(t, KindLLM, Classify(wrapped))
	assert.True(t, IsKind(wrapped, KindLLM))
	assert.False(t, IsKind(nil, KindLLM))
	assert.Equal(t, "generation failed: 503", base.Error())
}
