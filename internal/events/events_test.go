package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "agentflow.workflow.wf-1.completed", Subject("agentflow", "wf-1", TypeWorkflowCompleted))
	assert.Equal(t, "agentflow.workflow._.activity", Subject("agentflow", "", TypeActivity))
	assert.Equal(t, "x.workflow.a_b_c.failed", Subject("x", "a.b c", TypeWorkflowFailed))
	assert.Equal(t, "agentflow.workflow.wf-1.>", WorkflowSubject("agentflow", "wf-1"))
	assert.Equal(t, "agentflow.workflow.>", WorkflowSubject("agentflow", ""))
}

func TestBus_Emit(t *testing.T) {
	pub := &recordingPublisher{}
	bus := NewBus(pub, "")
	bus.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := bus.Emit(context.Background(), Event{
		Type:       TypeWorkflowStarted,
		WorkflowID: "wf-1",
		Phase:      core.PhaseAnalysis,
		Message:    "Workflow started",
	})
	require.NoError(t, err)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "agentflow.workflow.wf-1.started", pub.subjects[0])

	var got Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, TypeWorkflowStarted, got.Type)
	assert.Equal(t, core.PhaseAnalysis, got.Phase)
	assert.Equal(t, "Workflow started", got.Message)
	assert.Equal(t, bus.now(), got.Timestamp)
}

func TestBus_EmitError(t *testing.T) {
	bus := NewBus(&recordingPublisher{err: errors.New("connection closed")}, "agentflow")

	err := bus.Emit(context.Background(), Event{Type: TypeActivity, WorkflowID: "wf"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "agentflow.workflow.wf.activity")
}

func TestNopBus(t *testing.T) {
	assert.NoError(t, NopBus{}.Emit(context.Background(), Event{}))
}

func TestFromEntry(t *testing.T) {
	role := core.RoleArchitect
	phase := core.PhaseArchitecture
	activity := activitylog.NewActivity(activitylog.ActivityTaskStart, "Starting task: design", nil)
	entry := activitylog.Entry{
		ID:            "e-1",
		AgentRole:     &role,
		WorkflowPhase: &phase,
		Activity:      &activity,
		Metadata:      map[string]any{"workflow_id": "wf-9"},
		Timestamp:     time.Now().UTC(),
	}

	e := FromEntry(entry)
	assert.Equal(t, "e-1", e.ID)
	assert.Equal(t, TypeActivity, e.Type)
	assert.Equal(t, "wf-9", e.WorkflowID)
	assert.Equal(t, core.RoleArchitect, e.AgentRole)
	assert.Equal(t, core.PhaseArchitecture, e.Phase)
	assert.Equal(t, "Starting task: design", e.Message)
	assert.Equal(t, "task_start", e.Metadata["activity_type"])

	decision := activitylog.Entry{
		ID:       "e-2",
		Decision: &activitylog.Decision{DecisionType: "tech_choice", Rationale: "simpler"},
		Metadata: map[string]any{},
	}
	e = FromEntry(decision)
	assert.Equal(t, TypeDecision, e.Type)
	assert.Equal(t, "simpler", e.Message)
	assert.Equal(t, "tech_choice", e.Metadata["decision_type"])
	assert.Empty(t, e.WorkflowID)
}

func TestActivityHook_LogsFailures(t *testing.T) {
	tl := logging.NewTestLogger()
	hook := ActivityHook(NewBus(&recordingPublisher{err: errors.New("down")}, ""), tl.Logger)

	hook(context.Background(), activitylog.Entry{ID: "e-1", Metadata: map[string]any{}})

	tl.AssertLogged(t, zapcore.WarnLevel, "failed to publish activity event")
}

func TestNATS_RoundTrip(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := Connect(context.Background(), server.ClientURL(), nil)
	require.NoError(t, err)
	defer nc.Close()

	received := make(chan Event, 4)
	sub, err := Subscribe(nc, "agentflow", "wf-1", func(e Event) { received <- e })
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()
	require.NoError(t, nc.Flush())

	bus := NewBus(nc, "agentflow")
	require.NoError(t, bus.Emit(context.Background(), Event{Type: TypeWorkflowStarted, WorkflowID: "wf-1", Message: "go"}))
	require.NoError(t, bus.Emit(context.Background(), Event{Type: TypeWorkflowStarted, WorkflowID: "wf-2", Message: "other"}))
	require.NoError(t, bus.Emit(context.Background(), Event{Type: TypeWorkflowCompleted, WorkflowID: "wf-1", Message: "done"}))

	var got []Event
	for len(got) < 2 {
		select {
		case e := <-received:
			got = append(got, e)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	assert.Equal(t, "go", got[0].Message)
	assert.Equal(t, "done", got[1].Message)

	select {
	case e := <-received:
		t.Fatalf("unexpected event for %s", e.WorkflowID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribe_SkipsMalformed(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	received := make(chan Event, 2)
	_, err = Subscribe(nc, "", "", func(e Event) { received <- e })
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	require.NoError(t, nc.Publish("agentflow.workflow.wf.activity", []byte("not json")))
	require.NoError(t, NewBus(nc, "").Emit(context.Background(), Event{Type: TypeActivity, WorkflowID: "wf", Message: "ok"}))

	select {
	case e := <-received:
		assert.Equal(t, "ok", e.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}
