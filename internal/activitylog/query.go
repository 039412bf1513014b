package activitylog

import (
	"strings"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// Apply returns the entries matching every set field of f, in input order.
func Apply(entries []Entry, f Filter) []Entry {
	search := strings.ToLower(f.SearchText)

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.AgentRole != "" && (e.AgentRole == nil || *e.AgentRole != f.AgentRole) {
			continue
		}
		if f.WorkflowPhase != "" && (e.WorkflowPhase == nil || *e.WorkflowPhase != f.WorkflowPhase) {
			continue
		}
		if f.ActivityType != "" && (e.Activity == nil || e.Activity.Type != f.ActivityType) {
			continue
		}
		if f.WorkflowID != "" && e.WorkflowID() != f.WorkflowID {
			continue
		}
		if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && e.Timestamp.After(f.End) {
			continue
		}
		if search != "" && !matchesText(e, search) {
			continue
		}
		out = append(out, e)
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func matchesText(e Entry, lower string) bool {
	if strings.Contains(strings.ToLower(e.Reasoning), lower) {
		return true
	}
	return e.Activity != nil && strings.Contains(strings.ToLower(e.Activity.Description), lower)
}

// Summarize builds the report for the entries tagged with workflowID.
func Summarize(entries []Entry, workflowID string) Summary {
	s := Summary{
		WorkflowID:     workflowID,
		ActivityCounts: map[ActivityType]int{},
		AgentCounts:    map[core.AgentRole]int{},
		Timeline:       []TimelineItem{},
	}

	for _, e := range entries {
		if e.WorkflowID() != workflowID {
			continue
		}
		s.TotalEntries++
		if e.Activity != nil {
			s.ActivityCounts[e.Activity.Type]++
		}
		if e.AgentRole != nil {
			s.AgentCounts[*e.AgentRole]++
		}

		item := TimelineItem{Timestamp: e.Timestamp, Phase: e.WorkflowPhase}
		if e.Activity != nil {
			desc := e.Activity.Description
			item.Activity = &desc
		}
		s.Timeline = append(s.Timeline, item)

		ts := e.Timestamp
		if s.StartTime == nil {
			s.StartTime = &ts
		}
		s.EndTime = &ts
	}
	return s
}
