// Package events publishes workflow progress to NATS.
//
// Events are JSON documents published to subjects of the form
//
//	{prefix}.workflow.{workflow_id}.{type}
//
// so a subscriber can follow one workflow with "{prefix}.workflow.{id}.>"
// or every workflow with "{prefix}.workflow.>".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

// Type classifies an event. It is the last subject token.
type Type string

const (
	TypeWorkflowStarted   Type = "started"
	TypeWorkflowCompleted Type = "completed"
	TypeWorkflowFailed    Type = "failed"
	TypeActivity          Type = "activity"
	TypeDecision          Type = "decision"
)

// unassigned stands in for an empty workflow id in subjects.
const unassigned = "_"

// Event is one published message.
type Event struct {
	ID         string             `json:"id"`
	Type       Type               `json:"type"`
	WorkflowID string             `json:"workflow_id"`
	Phase      core.WorkflowPhase `json:"phase,omitempty"`
	AgentRole  core.AgentRole     `json:"agent_role,omitempty"`
	Message    string             `json:"message"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Publisher sends raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Emitter accepts events.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// Bus marshals events and publishes them through a Publisher.
type Bus struct {
	pub    Publisher
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) { b.logger = l.Named("events") }
}

// NewBus creates a bus publishing under prefix.
func NewBus(pub Publisher, prefix string, opts ...Option) *Bus {
	if prefix == "" {
		prefix = "agentflow"
	}
	b := &Bus{
		pub:    pub,
		prefix: prefix,
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subject returns the subject an event for workflowID of type typ is
// published to.
func Subject(prefix, workflowID string, typ Type) string {
	return fmt.Sprintf("%s.workflow.%s.%s", prefix, token(workflowID), typ)
}

// WorkflowSubject returns the wildcard subject matching every event of
// workflowID, or of all workflows when workflowID is empty.
func WorkflowSubject(prefix, workflowID string) string {
	if workflowID == "" {
		return prefix + ".workflow.>"
	}
	return prefix + ".workflow." + token(workflowID) + ".>"
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return unassigned
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Emit fills in the id and timestamp when missing and publishes e.
func (b *Bus) Emit(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(b.prefix, e.WorkflowID, e.Type)
	if err := b.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	b.logger.Trace(ctx, "event published", zap.String("subject", subject), zap.String("event_id", e.ID))
	return nil
}

// NopBus drops every event.
type NopBus struct{}

// Emit does nothing.
func (NopBus) Emit(context.Context, Event) error { return nil }

// ActivityHook returns an activity log hook that mirrors entries onto em.
// Publish failures are logged, never returned to the log.
func ActivityHook(em Emitter, logger *logging.Logger) activitylog.Hook {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(ctx context.Context, entry activitylog.Entry) {
		e := FromEntry(entry)
		if err := em.Emit(ctx, e); err != nil {
			logger.Warn(ctx, "failed to publish activity event",
				zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}
}

// FromEntry converts an activity log entry to an event.
func FromEntry(entry activitylog.Entry) Event {
	e := Event{
		ID:         entry.ID,
		WorkflowID: entry.WorkflowID(),
		Metadata:   core.CloneMetadata(entry.Metadata),
		Timestamp:  entry.Timestamp,
	}
	if entry.AgentRole != nil {
		e.AgentRole = *entry.AgentRole
	}
	if entry.WorkflowPhase != nil {
		e.Phase = *entry.WorkflowPhase
	}
	switch {
	case entry.Activity != nil:
		e.Type = TypeActivity
		e.Message = entry.Activity.Description
		e.Metadata["activity_type"] = string(entry.Activity.Type)
	case entry.Decision != nil:
		e.Type = TypeDecision
		e.Message = entry.Decision.Rationale
		e.Metadata["decision_type"] = entry.Decision.DecisionType
	default:
		e.Type = TypeActivity
		e.Message = entry.Reasoning
	}
	return e
}
