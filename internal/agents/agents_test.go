package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentflow/internal/contextstore"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/llm"
	"github.com/fyrsmithlabs/agentflow/internal/templates"
)

// MockProvider mocks llm.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Generate(ctx context.Context, prompt string, cfg *llm.GenerationConfig) (string, error) {
	args := m.Called(ctx, prompt, cfg)
	return args.String(0), args.Error(1)
}

func testTemplate() *templates.Template {
	return &templates.Template{RoleName: "Test", SystemPrompt: "You are a test agent."}
}

func testTask() core.Task {
	task := core.NewTask("Build a login page", []string{"Email and password", "Remember me"}, nil)
	task.ID = "task-1"
	return task
}

func TestFormatPrompt_NoContext(t *testing.T) {
	b := NewBase(core.RoleDeveloper, testTemplate(), &MockProvider{})

	prompt := b.FormatPrompt(testTask(), contextstore.NewContext())

	want := "You are a test agent.\n\n" +
		"## Context\n\nNo previous context available.\n\n" +
		"## Current Task\n\n" +
		"**Description:** Build a login page\n\n" +
		"\n**Requirements:**\n" +
		"- Email and password\n" +
		"- Remember me\n" +
		"\n**Priority:** medium\n\n" +
		"Please provide your response following the output format specified in your role."
	assert.Equal(t, want, prompt)
}

func TestFormatPrompt_WithContext(t *testing.T) {
	store := contextstore.NewStore()
	store.Store("product_analyst-1", core.NewAgentOutput(core.RoleProductAnalyst, "t0", "analysis"), nil)
	store.Store("architect-1", core.NewAgentOutput(core.RoleArchitect, "t1", strings.Repeat("a", 1200)), nil)

	b := NewBase(core.RoleDeveloper, testTemplate(), &MockProvider{})
	prompt := b.FormatPrompt(testTask(), store.Snapshot())

	summary := "## Context from Previous Agents\n\n" +
		"\n### Architect\n\n" + strings.Repeat("a", 1000) + "...[truncated]\n" +
		"\n### Product Analyst\n\n" + "analysis"
	assert.Contains(t, prompt, summary)
	assert.NotContains(t, prompt, "No previous context available.")
}

func TestContextSummary_RecentFive(t *testing.T) {
	store := contextstore.NewStore()
	for i := 0; i < 7; i++ {
		store.Store("developer-1", core.NewAgentOutput(core.RoleDeveloper, "t", "entry-"+string(rune('a'+i))), nil)
	}

	summary := contextSummary(store.Snapshot())

	assert.Equal(t, 5, strings.Count(summary, "### Developer"))
	assert.Contains(t, summary, "entry-g")
	assert.NotContains(t, summary, "entry-b")
}

func TestTaskDescription_Minimal(t *testing.T) {
	assert.Equal(t, "## Current Task\n", taskDescription(core.Task{}))
}

func TestRoleTitle(t *testing.T) {
	assert.Equal(t, "Product Analyst", RoleTitle(core.RoleProductAnalyst))
	assert.Equal(t, "Code Reviewer", RoleTitle(core.RoleCodeReviewer))
	assert.Equal(t, "Ml Engineer", RoleTitle(core.RoleMLEngineer))
}

func TestBaseValidateOutput(t *testing.T) {
	b := NewBase(core.RoleDeveloper, testTemplate(), &MockProvider{})

	empty := b.ValidateOutput(core.NewAgentOutput(core.RoleDeveloper, "t", ""))
	assert.False(t, empty.IsValid)
	require.Len(t, empty.Errors, 1)
	assert.Equal(t, "EMPTY_OUTPUT", empty.Errors[0].Code)
	assert.Equal(t, "Agent output is empty", empty.Errors[0].Message)
	assert.Equal(t, core.SeverityError, empty.Errors[0].Severity)

	short := b.ValidateOutput(core.NewAgentOutput(core.RoleDeveloper, "t", "Too short"))
	assert.True(t, short.IsValid)
	assert.Equal(t, []string{"Output seems very short, may be incomplete"}, short.Warnings)

	long := b.ValidateOutput(core.NewAgentOutput(core.RoleDeveloper, "t", strings.Repeat("x", 50)))
	assert.True(t, long.IsValid)
	assert.Empty(t, long.Warnings)
}

func TestNew_Dispatch(t *testing.T) {
	p := &MockProvider{}
	tests := []struct {
		role core.AgentRole
		want Agent
	}{
		{core.RoleProductAnalyst, &ProductAnalyst{}},
		{core.RoleArchitect, &Architect{}},
		{core.RoleDeveloper, &Developer{}},
		{core.RoleDebugger, &Debugger{}},
		{core.RoleCodeReviewer, &CodeReviewer{}},
		{core.RoleDataScientist, &Developer{}},
		{core.RoleMLEngineer, &Developer{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			a := New(tt.role, testTemplate(), p)
			assert.IsType(t, tt.want, a)
			assert.Equal(t, tt.role, a.Role())
		})
	}
	assert.True(t, HasVariant(core.RoleDebugger))
	assert.False(t, HasVariant(core.RoleAIEngineer))
}

func TestNew_NilTemplate(t *testing.T) {
	a := New(core.RoleArchitect, nil, &MockProvider{})
	b := a.(*Architect)
	assert.Equal(t, "Architect", b.Template().RoleName)
}

func TestExecute_Instructions(t *testing.T) {
	tests := []struct {
		role        core.AgentRole
		instruction string
	}{
		{core.RoleProductAnalyst, "Please provide a comprehensive product analysis including:"},
		{core.RoleArchitect, "Please provide a comprehensive architecture design including:"},
		{core.RoleDeveloper, "Please implement the required functionality with:"},
		{core.RoleDebugger, "Please analyze the code for issues and provide:"},
		{core.RoleCodeReviewer, "Please provide a comprehensive code review including:"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			p := &MockProvider{}
			p.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
				return strings.HasPrefix(prompt, "You are a test agent.") &&
					strings.Contains(prompt, "\n\n"+tt.instruction)
			}), (*llm.GenerationConfig)(nil)).Return("generated content", nil)

			out, err := New(tt.role, testTemplate(), p).Execute(context.Background(), testTask(), contextstore.NewContext())

			require.NoError(t, err)
			assert.Equal(t, tt.role, out.AgentRole)
			assert.Equal(t, "task-1", out.TaskID)
			assert.Equal(t, "generated content", out.Content)
			assert.Equal(t, core.ValidationPending, out.ValidationStatus)
			p.AssertExpectations(t)
		})
	}
}

func TestExecute_GenerationConfig(t *testing.T) {
	cfg := &llm.GenerationConfig{MaxTokens: 64}
	p := &MockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, cfg).Return("ok", nil)

	_, err := New(core.RoleDeveloper, testTemplate(), p, WithGenerationConfig(cfg)).
		Execute(context.Background(), testTask(), contextstore.NewContext())

	require.NoError(t, err)
	p.AssertExpectations(t)
}

func TestExecute_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	p := &MockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", boom)

	_, err := New(core.RoleDebugger, testTemplate(), p).Execute(context.Background(), testTask(), contextstore.NewContext())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "debugger")
}

func TestDebuggerMetadata(t *testing.T) {
	p := &MockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("no issues found", nil)

	out, err := New(core.RoleDebugger, testTemplate(), p).Execute(context.Background(), testTask(), contextstore.NewContext())

	require.NoError(t, err)
	assert.Equal(t, 1, out.Metadata["iteration"])
	assert.Equal(t, 3, out.Metadata["max_iterations"])
}

func TestReviewerMetadata(t *testing.T) {
	p := &MockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("LGTM", nil)

	out, err := New(core.RoleCodeReviewer, testTemplate(), p).Execute(context.Background(), testTask(), contextstore.NewContext())

	require.NoError(t, err)
	assert.Equal(t, "comprehensive", out.Metadata["review_type"])
	assert.Equal(t, true, out.Metadata["approval_required"])
}

func TestExtractCodeArtifacts(t *testing.T) {
	content := "Here is the implementation.\n\n" +
		"```python\n# src/app.py\nprint('hi')\n```\n\n" +
		"```go\npackage main\n```\n\n" +
		"```\n   \n```\n\n" +
		"```javascript # web/index.js\nconsole.log(1)\n```\n"

	artifacts := ExtractCodeArtifacts(content)

	require.Len(t, artifacts, 3)
	assert.Equal(t, "src/app.py", artifacts[0].Path)
	assert.Equal(t, "print('hi')", artifacts[0].Content)
	assert.Equal(t, core.ArtifactCode, artifacts[0].Type)
	assert.Equal(t, DefaultArtifactPath, artifacts[1].Path)
	assert.Equal(t, "package main", artifacts[1].Content)
	assert.Equal(t, "web/index.js", artifacts[2].Path)
	assert.Equal(t, "console.log(1)", artifacts[2].Content)

	assert.Empty(t, ExtractCodeArtifacts("no code here"))
}

func TestDeveloperExecute_Artifacts(t *testing.T) {
	p := &MockProvider{}
	p.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("```python\n# main.py\nprint('hello')\n```", nil)

	out, err := New(core.RoleDeveloper, testTemplate(), p).Execute(context.Background(), testTask(), contextstore.NewContext())

	require.NoError(t, err)
	require.Len(t, out.Artifacts, 1)
	assert.Equal(t, "main.py", out.Artifacts[0].Path)
}

func TestProductAnalystValidation(t *testing.T) {
	a := New(core.RoleProductAnalyst, testTemplate(), &MockProvider{})

	complete := "## User Stories\nAs a user I want to log in so that I can see my data.\n" +
		"## Success Metrics\nLogin success rate.\n## Acceptance Criteria\nGiven valid credentials..."
	result := a.ValidateOutput(core.NewAgentOutput(core.RoleProductAnalyst, "t", complete))
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Warnings)

	bare := strings.Repeat("nothing relevant here. ", 5)
	result = a.ValidateOutput(core.NewAgentOutput(core.RoleProductAnalyst, "t", bare))
	assert.True(t, result.IsValid)
	assert.Equal(t, []string{
		"Missing or unclear User stories section",
		"Missing or unclear Success metrics section",
		"Missing or unclear Acceptance criteria section",
		"User stories may not follow standard format (As a... I want... So that...)",
	}, result.Warnings)

	empty := a.ValidateOutput(core.NewAgentOutput(core.RoleProductAnalyst, "t", ""))
	assert.False(t, empty.IsValid)
	assert.Empty(t, empty.Warnings)
}

func TestArchitectValidation(t *testing.T) {
	a := New(core.RoleArchitect, testTemplate(), &MockProvider{})

	complete := "Component design with a REST API, layered pattern and security review of every endpoint."
	result := a.ValidateOutput(core.NewAgentOutput(core.RoleArchitect, "t", complete))
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Warnings)

	bare := strings.Repeat("just some prose. ", 4)
	result = a.ValidateOutput(core.NewAgentOutput(core.RoleArchitect, "t", bare))
	assert.Equal(t, []string{
		"Missing or unclear Component design",
		"Missing or unclear API specifications",
		"Missing or unclear Security considerations",
		"No design patterns mentioned",
	}, result.Warnings)

	empty := a.ValidateOutput(core.NewAgentOutput(core.RoleArchitect, "t", ""))
	assert.False(t, empty.IsValid)
	assert.Empty(t, empty.Warnings)
}
