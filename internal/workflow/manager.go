// Package workflow tracks the execution state of workflows: current phase,
// status, completed and failed phase sets, and the append-only transition
// history. Ordering discipline is left to the caller; any phase may follow
// any phase.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

// ErrWorkflowNotFound is returned by lookups on unknown workflow ids.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Manager owns the state of every workflow it initialised. Safe for
// concurrent use; each workflow id is isolated.
type Manager struct {
	mu         sync.RWMutex
	workflows  map[string]*State
	rules      map[core.WorkflowPhase][]ValidationRule
	validators map[string]RuleValidator
	logger     *logging.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.Named("workflow")
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager with the built-in rule validators registered.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		workflows:  make(map[string]*State),
		rules:      make(map[core.WorkflowPhase][]ValidationRule),
		validators: BuiltinValidators(),
		logger:     logging.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize creates a pending workflow from cfg and returns its id. The id
// is cfg.ID when set. The current phase is the first configured phase, or
// analysis when none are configured.
//
// Reusing the id of a known workflow restarts it: the earlier state and
// its history are discarded, and a warning is logged.
func (m *Manager) Initialize(cfg core.WorkflowConfig) string {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	phase := core.PhaseAnalysis
	if len(cfg.Phases) > 0 {
		phase = cfg.Phases[0]
	}

	now := m.now()
	state := &State{
		WorkflowID:      id,
		CurrentPhase:    phase,
		Status:          StatusPending,
		Transitions:     []Transition{},
		CompletedPhases: []core.WorkflowPhase{},
		FailedPhases:    []core.WorkflowPhase{},
		Metadata:        core.CloneMetadata(cfg.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	m.mu.Lock()
	prev, reused := m.workflows[id]
	m.workflows[id] = state
	m.mu.Unlock()

	if reused {
		m.logger.Warn(context.Background(), "workflow id reused, restarting workflow",
			zap.String("workflow_id", id),
			zap.String("previous_status", string(prev.Status)),
			zap.Int("discarded_transitions", len(prev.Transitions)))
	}
	return id
}

// Transition moves workflow id to next and marks it running. It returns
// false when id is unknown. role may be nil.
func (m *Manager) Transition(id string, next core.WorkflowPhase, role *core.AgentRole) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.workflows[id]
	if !ok {
		return false
	}
	from := state.CurrentPhase
	now := m.now()
	state.AddTransition(Transition{
		FromPhase: &from,
		ToPhase:   next,
		Timestamp: now,
		AgentRole: copyRole(role),
		Success:   true,
		Metadata:  map[string]any{},
	}, now)
	state.CurrentPhase = next
	state.Status = StatusRunning
	return true
}

// Rollback moves workflow id back to target, marks the phase it leaves as
// failed and sets status rolled_back. It returns false when id is unknown.
func (m *Manager) Rollback(id string, target core.WorkflowPhase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.workflows[id]
	if !ok {
		return false
	}
	from := state.CurrentPhase
	now := m.now()
	state.AddTransition(Transition{
		FromPhase: &from,
		ToPhase:   target,
		Timestamp: now,
		Success:   false,
		Metadata:  map[string]any{"rollback": true},
	}, now)
	state.MarkPhaseFailed(from, now)
	state.CurrentPhase = target
	state.Status = StatusRolledBack
	return true
}

// Pause moves a running workflow to paused.
func (m *Manager) Pause(id string) bool {
	return m.setStatus(id, StatusRunning, StatusPaused)
}

// Resume moves a paused workflow back to running.
func (m *Manager) Resume(id string) bool {
	return m.setStatus(id, StatusPaused, StatusRunning)
}

func (m *Manager) setStatus(id string, from, to Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.workflows[id]
	if !ok || state.Status != from {
		return false
	}
	state.Status = to
	state.UpdatedAt = m.now()
	return true
}

// MarkComplete completes workflow id and its current phase.
func (m *Manager) MarkComplete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.workflows[id]
	if !ok {
		return false
	}
	state.Status = StatusCompleted
	state.MarkPhaseComplete(state.CurrentPhase, m.now())
	return true
}

// MarkFailed fails workflow id and its current phase. A non-empty reason is
// stored as metadata["failure_reason"].
func (m *Manager) MarkFailed(id, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.workflows[id]
	if !ok {
		return false
	}
	state.Status = StatusFailed
	state.MarkPhaseFailed(state.CurrentPhase, m.now())
	if reason != "" {
		state.Metadata["failure_reason"] = reason
	}
	return true
}

// AddValidationRule registers rule for its phase.
func (m *Manager) AddValidationRule(rule ValidationRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.Phase] = append(m.rules[rule.Phase], rule)
}

// Rules returns the rules registered for phase.
func (m *Manager) Rules(phase core.WorkflowPhase) []ValidationRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ValidationRule{}, m.rules[phase]...)
}

// RegisterValidator makes v available to rules naming it.
func (m *Manager) RegisterValidator(name string, v RuleValidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators[name] = v
}

// HasValidator reports whether a validator is registered under name.
func (m *Manager) HasValidator(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.validators[name]
	return ok
}

// ValidatePhaseCompletion checks that phase produced output and evaluates
// every enabled rule registered for it. Rules whose validator is not
// registered are skipped.
func (m *Manager) ValidatePhaseCompletion(ctx context.Context, phase core.WorkflowPhase, outputs []core.AgentOutput) core.PhaseValidationResult {
	result := core.NewPhaseValidationResult(phase)
	result.ValidatedAt = m.now()

	if len(outputs) == 0 {
		result.AddError(core.ValidationError{
			Code:     "NO_OUTPUT",
			Message:  fmt.Sprintf("No outputs generated for phase %s", phase),
			Severity: core.SeverityError,
		})
		return result
	}

	m.mu.RLock()
	rules := append([]ValidationRule{}, m.rules[phase]...)
	validators := make(map[string]RuleValidator, len(m.validators))
	for k, v := range m.validators {
		validators[k] = v
	}
	m.mu.RUnlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		v, ok := validators[rule.ValidatorFunction]
		if !ok {
			m.logger.Debug(ctx, "skipping rule without validator",
				zap.String("rule_id", rule.RuleID),
				zap.String("validator", rule.ValidatorFunction))
			continue
		}
		for _, msg := range v.Validate(rule, outputs) {
			switch rule.Severity {
			case core.SeverityWarning, core.SeverityInfo:
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", rule.Name, msg))
			default:
				result.AddError(core.ValidationError{
					Code:     rule.RuleID,
					Message:  msg,
					Severity: core.SeverityError,
					Location: string(phase),
				})
			}
		}
	}
	return result
}

// CurrentPhase returns the current phase of workflow id.
func (m *Manager) CurrentPhase(id string) (core.WorkflowPhase, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.workflows[id]
	if !ok {
		return "", false
	}
	return state.CurrentPhase, true
}

// State returns a copy of the state of workflow id.
func (m *Manager) State(id string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.workflows[id]
	if !ok {
		return nil, false
	}
	return state.clone(), true
}

// History returns the transitions of workflow id in order; empty when the
// id is unknown.
func (m *Manager) History(id string) []Transition {
	state, ok := m.State(id)
	if !ok {
		return []Transition{}
	}
	return state.Transitions
}

// List returns the ids of all known workflows sorted by creation time.
func (m *Manager) List() []string {
	m.mu.RLock()
	states := make([]*State, 0, len(m.workflows))
	for _, s := range m.workflows {
		states = append(states, s)
	}
	m.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		if states[i].CreatedAt.Equal(states[j].CreatedAt) {
			return states[i].WorkflowID < states[j].WorkflowID
		}
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	ids := make([]string, len(states))
	for i, s := range states {
		ids[i] = s.WorkflowID
	}
	return ids
}

// Restore installs a previously persisted state, replacing any state with
// the same id.
func (m *Manager) Restore(state *State) {
	if state == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[state.WorkflowID] = state.clone()
}

func copyRole(role *core.AgentRole) *core.AgentRole {
	if role == nil {
		return nil
	}
	r := *role
	return &r
}
