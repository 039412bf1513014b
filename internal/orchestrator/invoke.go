package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/agents"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/templates"
)

// AgentID is the id under which role's activities and outputs are recorded.
func AgentID(role core.AgentRole) string {
	return string(role) + "-1"
}

// InvokeAgent runs task on the agent for role against the context produced
// by the other roles so far. Successful output is added to the context
// store. Unknown roles get the developer behaviour.
func (o *Orchestrator) InvokeAgent(ctx context.Context, role core.AgentRole, task core.Task) (core.AgentOutput, error) {
	ctx, span := o.tracer.Start(ctx, "agent.invoke",
		trace.WithAttributes(
			attribute.String("agent.role", string(role)),
			attribute.String("task.id", task.ID),
		))
	defer span.End()
	ctx = logging.WithAgentRole(ctx, string(role))

	agent, err := o.agent(ctx, role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return core.AgentOutput{}, err
	}

	agentID := AgentID(role)
	opts := entryOptions(role, task)
	o.logActivity(ctx, agentID,
		activitylog.NewActivity(activitylog.ActivityTaskStart,
			"Starting task: "+task.Description,
			map[string]any{"task_id": task.ID, "agent_role": string(role)}),
		"", opts...)

	output, err := agent.Execute(ctx, task, o.store.ContextFor(role))
	if err != nil {
		AgentInvocations.WithLabelValues(string(role), "error").Inc()
		o.logActivity(ctx, agentID,
			activitylog.NewActivity(activitylog.ActivityError,
				fmt.Sprintf("Error executing task: %v", err),
				map[string]any{"task_id": task.ID}),
			"", opts...)
		o.logger.Error(ctx, "agent execution failed", zap.String("task_id", task.ID), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return core.AgentOutput{}, err
	}
	AgentInvocations.WithLabelValues(string(role), "success").Inc()

	entryID := o.store.Store(agentID, output, map[string]any{"task_id": task.ID})
	span.SetAttributes(attribute.String("context.entry_id", entryID))
	o.logActivity(ctx, agentID,
		activitylog.NewActivity(activitylog.ActivityTaskComplete,
			"Completed task: "+task.Description,
			map[string]any{"task_id": task.ID, "artifacts": len(output.Artifacts)}),
		"", opts...)
	return output, nil
}

// agent returns the cached agent for role, building it on first use.
func (o *Orchestrator) agent(ctx context.Context, role core.AgentRole) (agents.Agent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.agents[role]; ok {
		return a, nil
	}

	tmpl, err := o.templates.Template(role, nil)
	switch {
	case errors.Is(err, templates.ErrNoTemplate):
		o.logger.Warn(ctx, "no template for role, using bare prompt", zap.String("agent_role", string(role)))
		tmpl = nil
	case err != nil:
		return nil, core.NewError(core.KindConfiguration, fmt.Sprintf("loading template for %s", role), err)
	}

	opts := append([]agents.Option{agents.WithLogger(o.logger)}, o.agentOpts...)
	a := agents.New(role, tmpl, o.provider, opts...)
	o.agents[role] = a
	return a, nil
}

func entryOptions(role core.AgentRole, task core.Task) []activitylog.EntryOption {
	opts := []activitylog.EntryOption{activitylog.WithRole(role)}
	switch p := task.Metadata["phase"].(type) {
	case string:
		opts = append(opts, activitylog.WithPhase(core.WorkflowPhase(p)))
	case core.WorkflowPhase:
		opts = append(opts, activitylog.WithPhase(p))
	}
	if id, ok := task.Metadata["workflow_id"].(string); ok && id != "" {
		opts = append(opts, activitylog.WithWorkflowID(id))
	}
	return opts
}

func (o *Orchestrator) logActivity(ctx context.Context, agentID string, a activitylog.Activity, reasoning string, opts ...activitylog.EntryOption) {
	if err := o.log.LogActivity(ctx, agentID, a, reasoning, opts...); err != nil {
		o.logger.Warn(ctx, "failed to log activity",
			zap.String("agent_id", agentID),
			zap.Error(err))
	}
}
