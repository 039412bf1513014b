// Package agents implements the role-specialised agents that execute workflow
// phases. Every agent renders its template's system prompt, the shared
// context and the task into a single prompt, asks an llm.Provider for a
// completion and wraps the reply in a core.AgentOutput.
package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/contextstore"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/llm"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/templates"
)

const (
	// contextLimit is how many recent entries a prompt summarises.
	contextLimit = 5

	// maxEntryChars bounds each summarised entry.
	maxEntryChars = 1000

	// minContentLength is the length below which output draws a warning.
	minContentLength = 50

	responseInstruction = "Please provide your response following the output format specified in your role."
)

// Agent executes tasks for one role.
type Agent interface {
	Role() core.AgentRole
	Execute(ctx context.Context, task core.Task, c contextstore.Context) (core.AgentOutput, error)
	ValidateOutput(output core.AgentOutput) core.ValidationResult
}

// Option configures an agent.
type Option func(*Base)

// WithLogger sets the agent's logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Base) { b.logger = l.Named("agent") }
}

// WithGenerationConfig sets per-call overrides passed to the provider.
func WithGenerationConfig(cfg *llm.GenerationConfig) Option {
	return func(b *Base) { b.genConfig = cfg }
}

// Base holds what every agent shares and provides prompt formatting and
// default validation.
type Base struct {
	role      core.AgentRole
	template  *templates.Template
	llm       llm.Provider
	genConfig *llm.GenerationConfig
	logger    *logging.Logger
}

// NewBase creates the shared part of an agent.
func NewBase(role core.AgentRole, tmpl *templates.Template, provider llm.Provider, opts ...Option) Base {
	b := Base{role: role, template: tmpl, llm: provider, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&b)
	}
	if b.template == nil {
		b.template = &templates.Template{RoleName: RoleTitle(role)}
	}
	return b
}

// Role returns the agent's role.
func (b *Base) Role() core.AgentRole { return b.role }

// Template returns the template the agent was built with.
func (b *Base) Template() *templates.Template { return b.template }

// FormatPrompt combines the system prompt, a summary of c and the task.
func (b *Base) FormatPrompt(task core.Task, c contextstore.Context) string {
	return b.template.SystemPrompt + "\n\n" +
		contextSummary(c) + "\n\n" +
		taskDescription(task) + "\n\n" +
		responseInstruction
}

// ValidateOutput rejects empty output and warns about very short output.
func (b *Base) ValidateOutput(output core.AgentOutput) core.ValidationResult {
	result := core.NewValidationResult()
	if output.Content == "" {
		result.AddError(core.ValidationError{
			Code:     "EMPTY_OUTPUT",
			Message:  "Agent output is empty",
			Severity: core.SeverityError,
		})
	}
	if output.Content != "" && utf8.RuneCountInString(output.Content) < minContentLength {
		result.AddWarning("Output seems very short, may be incomplete")
	}
	return result
}

// run formats the prompt, appends instructions and generates a pending
// output for task.
func (b *Base) run(ctx context.Context, task core.Task, c contextstore.Context, instructions string) (core.AgentOutput, error) {
	prompt := b.FormatPrompt(task, c) + "\n\n" + instructions

	b.logger.Debug(ctx, "generating",
		zap.String("agent_role", string(b.role)),
		zap.String("task_id", task.ID),
		zap.String("provider", b.llm.Name()),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("context_entries", c.Len()))

	content, err := b.llm.Generate(ctx, prompt, b.genConfig)
	if err != nil {
		return core.AgentOutput{}, fmt.Errorf("%s: generating output: %w", b.role, err)
	}
	return core.NewAgentOutput(b.role, task.ID, content), nil
}

func contextSummary(c contextstore.Context) string {
	if c.Len() == 0 {
		return "## Context\n\nNo previous context available."
	}
	parts := []string{"## Context from Previous Agents\n"}
	for _, e := range c.Recent(contextLimit) {
		parts = append(parts, "\n### "+RoleTitle(e.AgentRole)+"\n")
		content := e.Output.Content
		if r := []rune(content); len(r) > maxEntryChars {
			content = string(r[:maxEntryChars]) + "...[truncated]"
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n")
}

func taskDescription(task core.Task) string {
	parts := []string{"## Current Task\n"}
	if task.Description != "" {
		parts = append(parts, "**Description:** "+task.Description+"\n")
	}
	if len(task.Requirements) > 0 {
		parts = append(parts, "\n**Requirements:**")
		for _, req := range task.Requirements {
			parts = append(parts, "- "+req)
		}
	}
	if task.Priority != "" {
		parts = append(parts, "\n**Priority:** "+string(task.Priority))
	}
	return strings.Join(parts, "\n")
}

// RoleTitle renders a role for display: "product_analyst" becomes
// "Product Analyst".
func RoleTitle(role core.AgentRole) string {
	words := strings.Fields(strings.ReplaceAll(string(role), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
