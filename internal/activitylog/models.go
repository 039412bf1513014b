package activitylog

import (
	"time"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// ActivityType classifies an agent activity.
type ActivityType string

const (
	ActivityTaskStart    ActivityType = "task_start"
	ActivityTaskComplete ActivityType = "task_complete"
	ActivityTaskFailed   ActivityType = "task_failed"
	ActivityGeneration   ActivityType = "generation"
	ActivityValidation   ActivityType = "validation"
	ActivityError        ActivityType = "error"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityTaskStart, ActivityTaskComplete, ActivityTaskFailed,
		ActivityGeneration, ActivityValidation, ActivityError:
		return true
	}
	return false
}

// Activity is something an agent did.
type Activity struct {
	Type        ActivityType   `json:"type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewActivity creates an activity stamped now.
func NewActivity(typ ActivityType, description string, metadata map[string]any) Activity {
	return Activity{
		Type:        typ,
		Description: description,
		Metadata:    core.CloneMetadata(metadata),
		Timestamp:   time.Now().UTC(),
	}
}

// Decision is a choice an agent made, with the alternatives it rejected.
type Decision struct {
	DecisionType string         `json:"type"`
	Rationale    string         `json:"rationale"`
	Alternatives []string       `json:"alternatives"`
	Metadata     map[string]any `json:"metadata"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Entry is one line of the activity log. Exactly one of Activity or
// Decision is normally set.
type Entry struct {
	ID            string              `json:"id"`
	AgentRole     *core.AgentRole     `json:"agent_role"`
	WorkflowPhase *core.WorkflowPhase `json:"workflow_phase"`
	Activity      *Activity           `json:"activity"`
	Decision      *Decision           `json:"decision"`
	Reasoning     string              `json:"reasoning"`
	Metadata      map[string]any      `json:"metadata"`
	Timestamp     time.Time           `json:"timestamp"`
}

// WorkflowID returns metadata["workflow_id"] when it is a string.
func (e Entry) WorkflowID() string {
	id, _ := e.Metadata["workflow_id"].(string)
	return id
}

// Filter selects entries; zero-valued fields match everything.
type Filter struct {
	AgentRole     core.AgentRole
	WorkflowPhase core.WorkflowPhase
	ActivityType  ActivityType
	WorkflowID    string
	Start         time.Time
	End           time.Time
	SearchText    string
	// Limit keeps the most recent N matches; 0 keeps all.
	Limit int
}

// TimelineItem is one step of a workflow summary.
type TimelineItem struct {
	Timestamp time.Time          `json:"timestamp"`
	Phase     *core.WorkflowPhase `json:"phase"`
	Activity  *string             `json:"activity"`
}

// Summary aggregates the entries tagged with one workflow id.
type Summary struct {
	WorkflowID     string                 `json:"workflow_id"`
	TotalEntries   int                    `json:"total_entries"`
	ActivityCounts map[ActivityType]int   `json:"activity_counts"`
	AgentCounts    map[core.AgentRole]int `json:"agent_counts"`
	Timeline       []TimelineItem         `json:"timeline"`
	StartTime      *time.Time             `json:"start_time"`
	EndTime        *time.Time             `json:"end_time"`
}
