// Package orchestrator drives a workflow through its phases, handing each
// phase to the agent that owns it and recording everything that happens on
// the way.
//
// An Orchestrator owns one context store, so agents in a run see the outputs
// of earlier phases. Status reads are safe while a run is in progress.
package orchestrator

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/agents"
	"github.com/fyrsmithlabs/agentflow/internal/contextstore"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/debt"
	"github.com/fyrsmithlabs/agentflow/internal/events"
	"github.com/fyrsmithlabs/agentflow/internal/llm"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/telemetry"
	"github.com/fyrsmithlabs/agentflow/internal/templates"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

const instrumentationName = "github.com/fyrsmithlabs/agentflow/internal/orchestrator"

// TemplateSource supplies rendered role templates. Both templates.Resolver
// and templates.Loader satisfy it.
type TemplateSource interface {
	Template(role core.AgentRole, vars map[string]string) (*templates.Template, error)
}

// VersionControl records agent work in a repository. *vcs.Repo satisfies it.
type VersionControl interface {
	WriteArtifacts(artifacts []core.Artifact) ([]string, error)
	CommitChanges(ctx context.Context, role core.AgentRole, taskID, message string) (string, error)
	CreateBranch(ctx context.Context, workflowID string) (string, error)
	TagRelease(ctx context.Context, workflowID string, metadata map[string]any) error
}

// StateRepository persists workflow state. *workflow.FileRepository
// satisfies it.
type StateRepository interface {
	Save(state *workflow.State) error
}

// ContextRepository persists the shared context. *contextstore.FileRepository
// satisfies it.
type ContextRepository interface {
	Save(c contextstore.Context) error
}

// Orchestrator runs workflows. Create one with New.
type Orchestrator struct {
	provider  llm.Provider
	templates TemplateSource
	store     *contextstore.Store
	workflows *workflow.Manager
	log       *activitylog.Log
	events    events.Emitter
	vcs       VersionControl
	branch    bool
	debt      *debt.Tracker
	states    StateRepository
	snapshots ContextRepository
	progress  ProgressCallback

	logger    *logging.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	agentOpts []agents.Option

	phaseDuration metric.Float64Histogram
	workflowTotal metric.Int64Counter

	mu     sync.Mutex
	agents map[core.AgentRole]agents.Agent
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for the orchestrator and the collaborators it
// creates itself.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTemplates replaces the built-in template resolver.
func WithTemplates(src TemplateSource) Option {
	return func(o *Orchestrator) { o.templates = src }
}

// WithActivityLog sets the activity log. The default keeps entries in memory.
func WithActivityLog(l *activitylog.Log) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithWorkflowManager shares a workflow manager with other components.
func WithWorkflowManager(m *workflow.Manager) Option {
	return func(o *Orchestrator) { o.workflows = m }
}

// WithContextStore sets the shared context store.
func WithContextStore(s *contextstore.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithVCS commits agent artifacts to vc. When createBranch is set each
// workflow runs on its own branch.
func WithVCS(vc VersionControl, createBranch bool) Option {
	return func(o *Orchestrator) {
		o.vcs = vc
		o.branch = createBranch
	}
}

// WithDebtTracker scans reviewer output for technical debt.
func WithDebtTracker(t *debt.Tracker) Option {
	return func(o *Orchestrator) { o.debt = t }
}

// WithEmitter publishes workflow lifecycle events.
func WithEmitter(em events.Emitter) Option {
	return func(o *Orchestrator) {
		if em != nil {
			o.events = em
		}
	}
}

// WithTelemetry takes tracer and meter from tel.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *Orchestrator) {
		o.tracer = tel.Tracer(instrumentationName)
		o.meter = tel.Meter(instrumentationName)
	}
}

// WithPersistence saves workflow state and the context snapshot after every
// run. Either repository may be nil.
func WithPersistence(states StateRepository, snapshots ContextRepository) Option {
	return func(o *Orchestrator) {
		o.states = states
		o.snapshots = snapshots
	}
}

// WithProgress registers a callback for phase progress.
func WithProgress(cb ProgressCallback) Option {
	return func(o *Orchestrator) { o.progress = cb }
}

// WithAgentOptions passes opts to every agent the orchestrator builds.
func WithAgentOptions(opts ...agents.Option) Option {
	return func(o *Orchestrator) { o.agentOpts = append(o.agentOpts, opts...) }
}

// New creates an orchestrator generating through provider.
func New(provider llm.Provider, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, core.NewError(core.KindConfiguration, "an LLM provider is required", llm.ErrNoProvider)
	}
	o := &Orchestrator{
		provider: provider,
		events:   events.NopBus{},
		logger:   logging.NewNop(),
		agents:   make(map[core.AgentRole]agents.Agent),
	}
	var tel *telemetry.Telemetry
	o.tracer = tel.Tracer(instrumentationName)
	o.meter = tel.Meter(instrumentationName)

	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")

	if o.templates == nil {
		o.templates = templates.NewResolver()
	}
	if o.store == nil {
		o.store = contextstore.NewStore()
	}
	if o.workflows == nil {
		o.workflows = workflow.NewManager(workflow.WithLogger(o.logger))
	}
	if o.log == nil {
		l, err := activitylog.New("", activitylog.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		o.log = l
	}
	if err := o.initMetrics(); err != nil {
		return nil, err
	}
	return o, nil
}

// Workflows returns the workflow manager.
func (o *Orchestrator) Workflows() *workflow.Manager { return o.workflows }

// ActivityLog returns the activity log.
func (o *Orchestrator) ActivityLog() *activitylog.Log { return o.log }

// ContextStore returns the shared context store.
func (o *Orchestrator) ContextStore() *contextstore.Store { return o.store }

// DebtTracker returns the debt tracker, or nil when none is configured.
func (o *Orchestrator) DebtTracker() *debt.Tracker { return o.debt }
