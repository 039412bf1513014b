package contextstore

import (
	"time"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// Entry wraps one agent output placed into the shared context.
// Dependencies holds ids of entries stored before this one.
type Entry struct {
	ID           string           `json:"id"`
	AgentRole    core.AgentRole   `json:"agent_role"`
	Output       core.AgentOutput `json:"output"`
	Metadata     map[string]any   `json:"metadata"`
	Timestamp    time.Time        `json:"timestamp"`
	Dependencies []string         `json:"dependencies"`
}

func (e Entry) clone() Entry {
	e.Dependencies = append([]string{}, e.Dependencies...)
	e.Metadata = core.CloneMetadata(e.Metadata)
	return e
}

// Context is an ordered, chronological collection of entries.
type Context struct {
	Entries  []Entry        `json:"entries"`
	Metadata map[string]any `json:"metadata"`
}

// NewContext returns an empty context.
func NewContext() Context {
	return Context{Entries: []Entry{}, Metadata: map[string]any{}}
}

// Len returns the number of entries.
func (c Context) Len() int {
	return len(c.Entries)
}

// ByRole returns entries produced by role, in order.
func (c Context) ByRole(role core.AgentRole) []Entry {
	out := []Entry{}
	for _, e := range c.Entries {
		if e.AgentRole == role {
			out = append(out, e)
		}
	}
	return out
}

// ByID returns the entry with id.
func (c Context) ByID(id string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Recent returns up to limit entries, most recent first.
func (c Context) Recent(limit int) []Entry {
	if limit <= 0 {
		return []Entry{}
	}
	n := len(c.Entries)
	if limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, c.Entries[i])
	}
	return out
}

// Dependencies resolves the dependency ids of entry id, skipping ids that
// no longer resolve.
func (c Context) Dependencies(id string) []Entry {
	entry, ok := c.ByID(id)
	if !ok {
		return []Entry{}
	}
	out := make([]Entry, 0, len(entry.Dependencies))
	for _, dep := range entry.Dependencies {
		if d, ok := c.ByID(dep); ok {
			out = append(out, d)
		}
	}
	return out
}
