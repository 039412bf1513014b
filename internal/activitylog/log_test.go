package activitylog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

var t0 = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func TestNew_FileName(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, filepath.Join(dir, "log_20240309_140507.jsonl"), l.Path())
}

func TestLogActivity_PersistsJSONL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := New(dir, WithClock(steppingClock(t0)))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.LogActivity(ctx, "developer-1",
		NewActivity(ActivityTaskStart, "Starting task: build", map[string]any{"task_id": "t1"}),
		"",
		WithRole(core.RoleDeveloper), WithPhase(core.PhaseImplementation)))
	require.NoError(t, l.LogDecision(ctx, "architect-1",
		Decision{DecisionType: "database", Rationale: "relational data", Alternatives: []string{"mongo"}},
		"joins dominate"))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"agent_id":"developer-1"`)
	assert.Contains(t, lines[0], `"type":"task_start"`)
	assert.Contains(t, lines[1], `"alternatives":["mongo"]`)
	assert.Contains(t, lines[1], `"activity":null`)

	replayed, err := ReadFile(l.Path())
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Equal(t, core.RoleDeveloper, *replayed[0].AgentRole)
	assert.Equal(t, "t1", replayed[0].Activity.Metadata["task_id"])
	assert.Equal(t, "joins dominate", replayed[1].Reasoning)
	assert.True(t, l.Entries()[0].Timestamp.Equal(replayed[0].Timestamp))
}

func TestLogTransition(t *testing.T) {
	l, err := New("")
	require.NoError(t, err)

	require.NoError(t, l.LogTransition(context.Background(), "wf-1", core.PhaseAnalysis, core.PhaseArchitecture))

	entries := l.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, core.PhaseArchitecture, *e.WorkflowPhase)
	assert.Equal(t, "wf-1", e.WorkflowID())
	assert.Equal(t, "analysis", e.Metadata["from_phase"])
	assert.Equal(t, ActivityTaskComplete, e.Activity.Type)
	assert.Equal(t, "Transition from analysis to architecture", e.Activity.Description)
	assert.Equal(t, "wf-1", e.Activity.Metadata["workflow_id"])
	assert.Nil(t, e.AgentRole)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	l, err := New("", WithClock(steppingClock(t0)))
	require.NoError(t, err)

	_ = l.LogActivity(ctx, "a", NewActivity(ActivityTaskStart, "Starting task: design", nil), "", WithRole(core.RoleArchitect), WithPhase(core.PhaseArchitecture))
	_ = l.LogActivity(ctx, "d", NewActivity(ActivityError, "Error executing task: timeout", nil), "LLM timed out", WithRole(core.RoleDeveloper))
	_ = l.LogActivity(ctx, "d", NewActivity(ActivityTaskComplete, "Completed task: code", nil), "", WithRole(core.RoleDeveloper))
	_ = l.LogDecision(ctx, "a", Decision{DecisionType: "style"}, "Prefer TIMEOUT budgets")

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{name: "empty filter", filter: Filter{}, want: 4},
		{name: "role", filter: Filter{AgentRole: core.RoleDeveloper}, want: 2},
		{name: "phase", filter: Filter{WorkflowPhase: core.PhaseArchitecture}, want: 1},
		{name: "activity type", filter: Filter{ActivityType: ActivityError}, want: 1},
		{name: "search is case insensitive", filter: Filter{SearchText: "TimeOut"}, want: 2},
		{name: "role and type", filter: Filter{AgentRole: core.RoleDeveloper, ActivityType: ActivityTaskStart}, want: 0},
		{name: "start inclusive", filter: Filter{Start: t0.Add(3 * time.Second)}, want: 2},
		{name: "end inclusive", filter: Filter{End: t0.Add(2 * time.Second)}, want: 2},
		{name: "limit keeps most recent", filter: Filter{Limit: 1}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, l.Query(tt.filter), tt.want)
		})
	}

	last := l.Query(Filter{Limit: 1})
	require.NotNil(t, last[0].Decision)
}

func TestSummaryReport(t *testing.T) {
	ctx := context.Background()
	l, err := New("", WithClock(steppingClock(t0)))
	require.NoError(t, err)

	_ = l.LogTransition(ctx, "wf-1", core.PhaseAnalysis, core.PhaseAnalysis)
	_ = l.LogActivity(ctx, "product_analyst-1", NewActivity(ActivityTaskStart, "Starting task: x", nil), "",
		WithRole(core.RoleProductAnalyst), WithWorkflowID("wf-1"))
	_ = l.LogActivity(ctx, "other", NewActivity(ActivityTaskStart, "unrelated", nil), "", WithWorkflowID("wf-2"))

	s := l.SummaryReport("wf-1")
	assert.Equal(t, 2, s.TotalEntries)
	assert.Equal(t, 1, s.ActivityCounts[ActivityTaskComplete])
	assert.Equal(t, 1, s.ActivityCounts[ActivityTaskStart])
	assert.Equal(t, 1, s.AgentCounts[core.RoleProductAnalyst])
	require.Len(t, s.Timeline, 2)
	assert.Equal(t, "Transition from analysis to analysis", *s.Timeline[0].Activity)
	require.NotNil(t, s.StartTime)
	assert.True(t, s.StartTime.Before(*s.EndTime))

	empty := l.SummaryReport("missing")
	assert.Zero(t, empty.TotalEntries)
	assert.Nil(t, empty.StartTime)
	assert.Nil(t, empty.EndTime)
	assert.Empty(t, empty.Timeline)
}

func TestHooksAndLoggerMirror(t *testing.T) {
	tl := logging.NewTestLogger()
	var seen []string
	l, err := New("", WithLogger(tl.Logger), WithHook(func(_ context.Context, e Entry) {
		seen = append(seen, e.ID)
	}))
	require.NoError(t, err)

	require.NoError(t, l.LogTransition(context.Background(), "wf-9", core.PhaseAnalysis, core.PhaseReview))

	assert.Len(t, seen, 1)
	tl.AssertLogged(t, zapcore.DebugLevel, "activity logged")
	tl.AssertField(t, "activity logged", "workflow_id", "wf-9")
}

func TestConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.LogActivity(context.Background(), "agent", NewActivity(ActivityGeneration, "gen", nil), "")
		}()
	}
	wg.Wait()

	entries, err := ReadFile(l.Path())
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir, WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	require.NoError(t, first.LogTransition(context.Background(), "wf", core.PhaseAnalysis, core.PhaseArchitecture))

	second, err := New(dir, WithClock(func() time.Time { return t0.Add(time.Hour) }))
	require.NoError(t, err)
	require.NoError(t, second.LogTransition(context.Background(), "wf", core.PhaseArchitecture, core.PhaseReview))

	entries, err := LoadDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, core.PhaseArchitecture, *entries[0].WorkflowPhase)
	assert.Equal(t, core.PhaseReview, *entries[1].WorkflowPhase)

	missing, err := LoadDir(filepath.Join(dir, "nope"), nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestReadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log_bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"a\"}\n\nnot json\n"), 0600))

	_, err := ReadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":3:")
}

func TestDirReader(t *testing.T) {
	dir := t.TempDir()
	reader := NewDirReader(dir, nil)
	assert.Empty(t, reader.Query(Filter{}))

	lg, err := New(dir, WithClock(steppingClock(t0)))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, lg.LogTransition(ctx, "wf", core.PhaseAnalysis, core.PhaseAnalysis))
	require.NoError(t, lg.LogActivity(ctx, "architect-1",
		NewActivity(ActivityTaskComplete, "Completed task: design", nil), "",
		WithRole(core.RoleArchitect), WithWorkflowID("wf")))

	// Written after the reader was created.
	assert.Len(t, reader.Entries(), 2)
	got := reader.Query(Filter{AgentRole: core.RoleArchitect})
	require.Len(t, got, 1)
	assert.Equal(t, "Completed task: design", got[0].Activity.Description)

	summary := reader.SummaryReport("wf")
	assert.Equal(t, 2, summary.TotalEntries)
	assert.Equal(t, 1, summary.AgentCounts[core.RoleArchitect])
}

func TestDirReader_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	lg, err := New(dir, WithClock(steppingClock(t0)))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, lg.LogTransition(ctx, "wf", core.PhaseAnalysis, core.PhaseAnalysis))
	require.NoError(t, lg.LogActivity(ctx, "architect-1",
		NewActivity(ActivityTaskComplete, "Completed task: design", nil), "",
		WithRole(core.RoleArchitect), WithWorkflowID("wf")))

	// A crashed writer leaves a truncated record behind, and another file is garbage.
	f, err := os.OpenFile(lg.Path(), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{\"id\":\"trunc\",\"timest\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log_0000_bad.jsonl"), []byte("not json\n"), 0600))

	var errs []error
	reader := NewDirReader(dir, func(err error) { errs = append(errs, err) })

	got := reader.Query(Filter{})
	require.Len(t, got, 2)
	assert.Equal(t, "Completed task: design", got[1].Activity.Description)
	assert.Equal(t, 2, reader.SummaryReport("wf").TotalEntries)
	require.Len(t, errs, 4, "two bad lines, reported on each of two loads")
	assert.Contains(t, errs[0].Error(), "log_0000_bad.jsonl:1:")

	_, err = ReadFile(lg.Path())
	assert.Error(t, err, "ReadFile stays strict")
}
