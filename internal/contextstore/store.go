// Package contextstore is the append-only log of agent outputs shared by one
// workflow run. Entries can be filtered by producing role and linked by
// explicit dependency edges that always point backwards in time.
package contextstore

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// ErrForwardReference is returned when a dependency would point at an entry
// stored after (or equal to) the dependent entry.
var ErrForwardReference = errors.New("dependency must reference an earlier entry")

// Store holds the entries of one run scope. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	position map[string]int
	metadata map[string]any
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries:  []Entry{},
		position: make(map[string]int),
		metadata: map[string]any{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Store appends output as a new entry attributed to agentID and returns the
// entry id. metadata is copied; agent_id is always set.
func (s *Store) Store(agentID string, output core.AgentOutput, metadata map[string]any) string {
	md := core.CloneMetadata(metadata)
	md["agent_id"] = agentID

	entry := Entry{
		ID:           uuid.NewString(),
		AgentRole:    output.AgentRole,
		Output:       output,
		Metadata:     md,
		Timestamp:    s.now(),
		Dependencies: []string{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.position[entry.ID] = len(s.entries)
	s.entries = append(s.entries, entry)
	return entry.ID
}

// ContextFor returns every entry not produced by role, in insertion order.
func (s *Store) ContextFor(role core.AgentRole) Context {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := NewContext()
	for _, e := range s.entries {
		if e.AgentRole != role {
			ctx.Entries = append(ctx.Entries, e.clone())
		}
	}
	return ctx
}

// TrackDependency records that targetID depends on sourceID.
//
// It returns false with no error when either id is unknown, and true when the
// edge exists afterwards (repeated calls do not duplicate it). A source that
// was not stored strictly before the target yields ErrForwardReference.
func (s *Store) TrackDependency(sourceID, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.position[sourceID]
	if !ok {
		return false, nil
	}
	dst, ok := s.position[targetID]
	if !ok {
		return false, nil
	}
	if src >= dst {
		return false, ErrForwardReference
	}

	target := &s.entries[dst]
	for _, dep := range target.Dependencies {
		if dep == sourceID {
			return true, nil
		}
	}
	target.Dependencies = append(target.Dependencies, sourceID)
	return true, nil
}

// DependenciesOf resolves the dependencies of entryID in recorded order,
// skipping ids that no longer resolve.
func (s *Store) DependenciesOf(entryID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Entry{}
	idx, ok := s.position[entryID]
	if !ok {
		return out
	}
	for _, dep := range s.entries[idx].Dependencies {
		if d, ok := s.position[dep]; ok {
			out = append(out, s.entries[d].clone())
		}
	}
	return out
}

// GetDependencies is an alias of DependenciesOf.
func (s *Store) GetDependencies(entryID string) []Entry {
	return s.DependenciesOf(entryID)
}

// History returns all entries sorted by timestamp, insertion order on ties.
func (s *Store) History() []Entry {
	s.mu.RLock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Recent returns up to limit entries, most recent first.
func (s *Store) Recent(limit int) []Entry {
	return s.Snapshot().Recent(limit)
}

// EntriesByRole returns the entries produced by role, in order.
func (s *Store) EntriesByRole(role core.AgentRole) []Entry {
	return s.Snapshot().ByRole(role)
}

// Entry returns the entry with id.
func (s *Store) Entry(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.position[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[idx].clone(), true
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every in-memory entry. Persisted snapshots are untouched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = []Entry{}
	s.position = make(map[string]int)
	s.metadata = map[string]any{}
}

// Snapshot returns a copy of the full context.
func (s *Store) Snapshot() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := Context{
		Entries:  make([]Entry, len(s.entries)),
		Metadata: core.CloneMetadata(s.metadata),
	}
	for i, e := range s.entries {
		ctx.Entries[i] = e.clone()
	}
	return ctx
}

// Restore replaces the store content with ctx.
func (s *Store) Restore(ctx Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]Entry, len(ctx.Entries))
	s.position = make(map[string]int, len(ctx.Entries))
	for i, e := range ctx.Entries {
		e = e.clone()
		if e.Dependencies == nil {
			e.Dependencies = []string{}
		}
		s.entries[i] = e
		s.position[e.ID] = i
	}
	s.metadata = core.CloneMetadata(ctx.Metadata)
}
