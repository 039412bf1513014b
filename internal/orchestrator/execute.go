package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/events"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

// State metadata keys set when a workflow starts.
const (
	MetadataWorkflowName = "workflow_name"
	MetadataPhases       = "phases"
)

// orchestratorAgentID attributes activities the orchestrator records itself.
const orchestratorAgentID = "orchestrator"

var phaseRoles = map[core.WorkflowPhase]core.AgentRole{
	core.PhaseAnalysis:       core.RoleProductAnalyst,
	core.PhaseArchitecture:   core.RoleArchitect,
	core.PhaseImplementation: core.RoleDeveloper,
	core.PhaseDebugging:      core.RoleDebugger,
	core.PhaseReview:         core.RoleCodeReviewer,
}

// PhaseRole returns the role that executes phase. Phases without a role are
// skipped by ExecuteWorkflow.
func PhaseRole(phase core.WorkflowPhase) (core.AgentRole, bool) {
	role, ok := phaseRoles[phase]
	return role, ok
}

// PhaseTaskDescription is the description of the task handed to a phase's
// agent.
func PhaseTaskDescription(phase core.WorkflowPhase) string {
	return fmt.Sprintf("Execute %s phase", phase)
}

// ExecuteWorkflow runs cfg to completion and returns the workflow id.
//
// A phase whose output fails validation ends the workflow as failed with a
// nil error; the id can be used to inspect what happened. Agent and
// provider failures, and context cancellation between phases, also fail the
// workflow and are returned.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, cfg core.WorkflowConfig) (string, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.name", cfg.Name),
			attribute.Int("workflow.phases", len(cfg.Phases)),
		))
	defer span.End()

	if err := cfg.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid workflow config")
		return "", err
	}

	o.registerRules(cfg)
	cfg.Metadata = core.CloneMetadata(cfg.Metadata)
	cfg.Metadata[MetadataWorkflowName] = cfg.Name
	cfg.Metadata[MetadataPhases] = phaseStrings(cfg.Phases)
	id := o.workflows.Initialize(cfg)
	span.SetAttributes(attribute.String("workflow.id", id))
	ctx = logging.WithWorkflowID(ctx, id)
	o.persistState(ctx, id)

	first := core.PhaseAnalysis
	if len(cfg.Phases) > 0 {
		first = cfg.Phases[0]
	}
	o.logger.Info(ctx, "workflow started",
		zap.String("name", cfg.Name),
		zap.Int("phases", len(cfg.Phases)))
	o.emit(ctx, events.Event{
		Type:       events.TypeWorkflowStarted,
		WorkflowID: id,
		Phase:      first,
		Message:    "Workflow started",
		Metadata:   map[string]any{"name": cfg.Name},
	})
	if err := o.log.LogTransition(ctx, id, core.PhaseAnalysis, first); err != nil {
		o.logger.Warn(ctx, "failed to log transition", zap.Error(err))
	}
	o.startBranch(ctx, id)

	reason, err := o.runPhases(ctx, id, cfg.Phases)
	status := o.finish(ctx, id, len(cfg.Phases), reason, err)

	span.SetAttributes(attribute.String("workflow.status", string(status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return id, err
	}
	return id, nil
}

// runPhases executes every mapped phase in order. It returns a failure
// reason when a phase fails validation, or an error when execution fails.
func (o *Orchestrator) runPhases(ctx context.Context, id string, phases []core.WorkflowPhase) (string, error) {
	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			return "", core.NewError(core.KindWorkflow, fmt.Sprintf("workflow cancelled before %s", phase), err)
		}

		role, ok := PhaseRole(phase)
		if !ok {
			o.logger.Debug(ctx, "skipping phase without agent", zap.String("phase", string(phase)))
			o.reportProgress(id, phase, PhaseSkipped, i+1, len(phases))
			continue
		}

		o.reportProgress(id, phase, PhaseStarted, i, len(phases))
		valid, err := o.runPhase(logging.WithPhase(ctx, string(phase)), id, phase, role)
		if err != nil {
			o.reportProgress(id, phase, PhaseFailed, i, len(phases))
			return "", err
		}
		if !valid {
			o.reportProgress(id, phase, PhaseFailed, i, len(phases))
			return fmt.Sprintf("Validation failed in %s", phase), nil
		}
		o.reportProgress(id, phase, PhaseCompleted, i+1, len(phases))

		if i < len(phases)-1 {
			o.workflows.Transition(id, phases[i+1], &role)
			o.persistState(ctx, id)
		}
	}
	return "", nil
}

// runPhase invokes role for phase and validates its output. It reports
// whether the output passed validation.
func (o *Orchestrator) runPhase(ctx context.Context, id string, phase core.WorkflowPhase, role core.AgentRole) (bool, error) {
	start := time.Now()
	result := "success"
	defer func() {
		elapsed := time.Since(start).Seconds()
		PhaseDuration.WithLabelValues(string(phase), result).Observe(elapsed)
		o.phaseDuration.Record(ctx, elapsed, metric.WithAttributes(
			attribute.String("phase", string(phase)),
			attribute.String("result", result),
		))
	}()

	task := core.NewTask(PhaseTaskDescription(phase), nil, map[string]any{
		"workflow_id": id,
		"phase":       string(phase),
	})
	output, err := o.InvokeAgent(ctx, role, task)
	if err != nil {
		result = "error"
		return false, err
	}

	errs := o.validate(ctx, role, phase, output)
	if len(errs) > 0 {
		result = "invalid"
		o.logActivity(ctx, orchestratorAgentID,
			activitylog.NewActivity(activitylog.ActivityValidation,
				fmt.Sprintf("Validation failed in %s", phase),
				map[string]any{"errors": errs}),
			fmt.Sprintf("Phase %s failed validation", phase),
			activitylog.WithPhase(phase),
			activitylog.WithWorkflowID(id))
		o.logger.Warn(ctx, "phase failed validation",
			zap.String("phase", string(phase)),
			zap.Strings("errors", errs))
		return false, nil
	}

	o.recordOutput(ctx, role, task, output)
	return true, nil
}

// validate runs the agent's own checks and, when they pass, the phase rules.
// Errors are returned as "CODE: message".
func (o *Orchestrator) validate(ctx context.Context, role core.AgentRole, phase core.WorkflowPhase, output core.AgentOutput) []string {
	agent, err := o.agent(ctx, role)
	if err != nil {
		return []string{"AGENT_UNAVAILABLE: " + err.Error()}
	}
	res := agent.ValidateOutput(output)
	if len(res.Warnings) > 0 {
		o.logger.Warn(ctx, "phase output has warnings",
			zap.String("phase", string(phase)),
			zap.Strings("warnings", res.Warnings))
	}
	errs := res.Errors
	if res.IsValid {
		errs = o.workflows.ValidatePhaseCompletion(ctx, phase, []core.AgentOutput{output}).Errors
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	return out
}

// recordOutput commits artifacts and scans reviews for debt.
func (o *Orchestrator) recordOutput(ctx context.Context, role core.AgentRole, task core.Task, output core.AgentOutput) {
	if o.vcs != nil && len(output.Artifacts) > 0 {
		written, err := o.vcs.WriteArtifacts(output.Artifacts)
		if err != nil {
			o.logger.Warn(ctx, "failed to write artifacts", zap.Error(err))
		} else if len(written) > 0 {
			sha, err := o.vcs.CommitChanges(ctx, role, task.ID, task.Description)
			if err != nil {
				o.logger.Warn(ctx, "failed to commit artifacts", zap.Error(err))
			} else if sha != "" {
				o.logger.Info(ctx, "artifacts committed",
					zap.String("commit", sha),
					zap.Strings("files", written))
			}
		}
	}

	if o.debt != nil && role == core.RoleCodeReviewer {
		items := o.debt.ScanReview(output.Content, "review:"+task.ID)
		if len(items) > 0 {
			o.logger.Info(ctx, "technical debt recorded", zap.Int("items", len(items)))
		}
	}
}

// finish settles the workflow's final status, publishes it and persists the
// run.
func (o *Orchestrator) finish(ctx context.Context, id string, phases int, reason string, err error) workflow.Status {
	if err != nil {
		reason = err.Error()
	} else if reason != "" {
		err = core.NewError(core.KindValidation, reason, nil)
	}

	status := workflow.StatusCompleted
	if reason != "" {
		status = workflow.StatusFailed
		res := core.Resolve(err, 0)
		o.workflows.MarkFailed(id, reason)
		o.logger.Warn(ctx, "workflow failed",
			zap.String("reason", reason),
			zap.String("kind", string(res.Kind)),
			zap.String("strategy", string(res.Strategy)),
			zap.Bool("recoverable", res.Recoverable))
		o.emit(ctx, events.Event{
			Type:       events.TypeWorkflowFailed,
			WorkflowID: id,
			Message:    reason,
			Metadata: map[string]any{
				"kind":        string(res.Kind),
				"strategy":    string(res.Strategy),
				"recoverable": res.Recoverable,
			},
		})
	} else {
		o.workflows.MarkComplete(id)
		o.logger.Info(ctx, "workflow completed")
		if o.vcs != nil {
			if err := o.vcs.TagRelease(ctx, id, map[string]any{"phases": phases}); err != nil {
				o.logger.Warn(ctx, "failed to tag release", zap.Error(err))
			}
		}
		o.emit(ctx, events.Event{
			Type:       events.TypeWorkflowCompleted,
			WorkflowID: id,
			Message:    "Workflow completed",
		})
	}

	WorkflowsTotal.WithLabelValues(string(status)).Inc()
	o.workflowTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	o.persist(ctx, id)
	return status
}

func (o *Orchestrator) startBranch(ctx context.Context, id string) {
	if o.vcs == nil || !o.branch {
		return
	}
	name, err := o.vcs.CreateBranch(ctx, id)
	if err != nil {
		o.logger.Warn(ctx, "failed to create workflow branch", zap.Error(err))
		return
	}
	o.logger.Debug(ctx, "workflow branch ready", zap.String("branch", name))
}

// persist saves the workflow state and the shared context snapshot.
func (o *Orchestrator) persist(ctx context.Context, id string) {
	o.persistState(ctx, id)
	if o.snapshots != nil {
		if err := o.snapshots.Save(o.store.Snapshot()); err != nil {
			o.logger.Warn(ctx, "failed to save context snapshot", zap.Error(err))
		}
	}
}

// persistState saves the workflow state so readers in other processes
// (serve, status, watch) follow the run while it progresses.
func (o *Orchestrator) persistState(ctx context.Context, id string) {
	if o.states == nil {
		return
	}
	state, ok := o.workflows.State(id)
	if !ok {
		return
	}
	if err := o.states.Save(state); err != nil {
		o.logger.Warn(ctx, "failed to save workflow state", zap.Error(err))
	}
}

// registerRules turns cfg.ValidationRules into workflow rules. A rule
// already registered for its phase is not added again.
func (o *Orchestrator) registerRules(cfg core.WorkflowConfig) {
	phases := make([]core.WorkflowPhase, 0, len(cfg.ValidationRules))
	for phase := range cfg.ValidationRules {
		phases = append(phases, phase)
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i] < phases[j] })

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, phase := range phases {
		existing := map[string]bool{}
		for _, r := range o.workflows.Rules(phase) {
			existing[r.RuleID] = true
		}
		for _, name := range cfg.ValidationRules[phase] {
			name = strings.TrimSpace(name)
			id := fmt.Sprintf("%s_%s", phase, name)
			if name == "" || existing[id] {
				continue
			}
			o.workflows.AddValidationRule(workflow.ValidationRule{
				RuleID:            id,
				Name:              name,
				Phase:             phase,
				ValidatorFunction: name,
				Severity:          core.SeverityError,
				Enabled:           true,
			})
			existing[id] = true
		}
	}
}

func (o *Orchestrator) emit(ctx context.Context, e events.Event) {
	if err := o.events.Emit(ctx, e); err != nil {
		o.logger.Warn(ctx, "failed to publish event",
			zap.String("type", string(e.Type)),
			zap.Error(err))
	}
}

func phaseStrings(phases []core.WorkflowPhase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = string(p)
	}
	return out
}
