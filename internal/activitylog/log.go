// Package activitylog records agent activities, decisions and workflow
// transitions as an append-only JSONL file and answers queries over them.
package activitylog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

// fileTimeLayout names log files log_YYYYMMDD_HHMMSS.jsonl.
const fileTimeLayout = "20060102_150405"

// Hook observes every appended entry, after it has been persisted.
type Hook func(ctx context.Context, e Entry)

// Log is the activity log of one process. Entries are kept in memory and,
// when a directory is configured, appended to a single JSONL file.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	path    string
	lock    *flock.Flock
	logger  *logging.Logger
	hooks   []Hook
	now     func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithLogger mirrors every entry to l at debug level.
func WithLogger(l *logging.Logger) Option {
	return func(lg *Log) {
		if l != nil {
			lg.logger = l.Named("activity")
		}
	}
}

// WithHook registers h to run for every entry.
func WithHook(h Hook) Option {
	return func(lg *Log) { lg.hooks = append(lg.hooks, h) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(lg *Log) { lg.now = now }
}

// New creates a log writing to dir. An empty dir keeps entries in memory
// only.
func New(dir string, opts ...Option) (*Log, error) {
	l := &Log{
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if dir == "" {
		return l, nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	l.path = filepath.Join(dir, "log_"+l.now().Format(fileTimeLayout)+".jsonl")
	l.lock = flock.New(l.path + ".lock")
	return l, nil
}

// Path returns the JSONL file, or "" for an in-memory log.
func (l *Log) Path() string {
	return l.path
}

// EntryOption decorates an entry before it is appended.
type EntryOption func(*Entry)

// WithRole attributes the entry to role.
func WithRole(role core.AgentRole) EntryOption {
	return func(e *Entry) { e.AgentRole = &role }
}

// WithPhase attributes the entry to phase.
func WithPhase(phase core.WorkflowPhase) EntryOption {
	return func(e *Entry) { e.WorkflowPhase = &phase }
}

// WithWorkflowID tags the entry so SummaryReport can find it.
func WithWorkflowID(id string) EntryOption {
	return WithMetadata("workflow_id", id)
}

// WithMetadata sets an entry metadata key.
func WithMetadata(key string, value any) EntryOption {
	return func(e *Entry) { e.Metadata[key] = value }
}

// LogActivity records activity performed by agentID.
func (l *Log) LogActivity(ctx context.Context, agentID string, activity Activity, reasoning string, opts ...EntryOption) error {
	if activity.Metadata == nil {
		activity.Metadata = map[string]any{}
	}
	e := l.newEntry(agentID, reasoning, opts)
	e.Activity = &activity
	return l.append(ctx, e)
}

// LogTransition records a workflow moving from one phase to another.
func (l *Log) LogTransition(ctx context.Context, workflowID string, from, to core.WorkflowPhase) error {
	activity := Activity{
		Type:        ActivityTaskComplete,
		Description: fmt.Sprintf("Transition from %s to %s", from, to),
		Metadata:    map[string]any{"workflow_id": workflowID},
		Timestamp:   l.now(),
	}
	e := l.newEntry("", "", []EntryOption{
		WithPhase(to),
		WithWorkflowID(workflowID),
		WithMetadata("from_phase", string(from)),
	})
	e.Activity = &activity
	return l.append(ctx, e)
}

// LogDecision records a decision made by agentID.
func (l *Log) LogDecision(ctx context.Context, agentID string, decision Decision, rationale string, opts ...EntryOption) error {
	if decision.Metadata == nil {
		decision.Metadata = map[string]any{}
	}
	if decision.Alternatives == nil {
		decision.Alternatives = []string{}
	}
	if decision.Timestamp.IsZero() {
		decision.Timestamp = l.now()
	}
	e := l.newEntry(agentID, rationale, opts)
	e.Decision = &decision
	return l.append(ctx, e)
}

func (l *Log) newEntry(agentID, reasoning string, opts []EntryOption) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Reasoning: reasoning,
		Metadata:  map[string]any{},
		Timestamp: l.now(),
	}
	if agentID != "" {
		e.Metadata["agent_id"] = agentID
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// append stores e in memory and on disk. The in-memory copy is kept even
// when the write fails.
func (l *Log) append(ctx context.Context, e Entry) error {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	err := l.persist(e)
	l.mu.Unlock()

	fields := []zap.Field{zap.String("entry_id", e.ID)}
	if e.Activity != nil {
		fields = append(fields,
			zap.String("activity_type", string(e.Activity.Type)),
			zap.String("description", e.Activity.Description))
	}
	if e.Decision != nil {
		fields = append(fields, zap.String("decision_type", e.Decision.DecisionType))
	}
	if id := e.WorkflowID(); id != "" {
		fields = append(fields, zap.String("workflow_id", id))
	}
	l.logger.Debug(ctx, "activity logged", fields...)

	if err != nil {
		l.logger.Warn(ctx, "failed to persist activity", zap.String("path", l.path), zap.Error(err))
		return err
	}
	for _, h := range l.hooks {
		h(ctx, e)
	}
	return nil
}

func (l *Log) persist(e Entry) error {
	if l.path == "" {
		return nil
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry %s: %w", e.ID, err)
	}
	line = append(line, '\n')

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	defer func() { _ = l.lock.Unlock() }()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to %s: %w", l.path, err)
	}
	return f.Close()
}

// Entries returns every entry in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry{}, l.entries...)
}

// Query returns the entries matching f in append order.
func (l *Log) Query(f Filter) []Entry {
	return Apply(l.Entries(), f)
}

// SummaryReport aggregates the entries tagged with workflowID.
func (l *Log) SummaryReport(workflowID string) Summary {
	return Summarize(l.Entries(), workflowID)
}

// Close releases the file lock handle.
func (l *Log) Close() error {
	if l.lock == nil {
		return nil
	}
	return l.lock.Close()
}
