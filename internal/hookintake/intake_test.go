package hookintake

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/store"
)

func newTestIntake(t *testing.T) *Intake {
	t.Helper()
	dir := t.TempDir()
	sessions, _, err := store.OpenSessionStore(filepath.Join(dir, "sessions.db"), "")
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	events, err := store.OpenEventStore(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("OpenEventStore: %v", err)
	}
	t.Cleanup(func() { events.Close() })
	metrics, err := store.OpenMetricsStore(filepath.Join(dir, "metrics.db"))
	if err != nil {
		t.Fatalf("OpenMetricsStore: %v", err)
	}
	t.Cleanup(func() { metrics.Close() })

	now := time.Now().UTC()
	sess := &model.AgentSession{
		AgentName: "builder-1", Capability: "builder", WorktreePath: dir,
		TmuxSession: "proj-builder-1", State: "booting",
		StartedAt: now, LastActivity: now,
	}
	if err := sessions.Upsert(sess); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	return New(dir, sessions, events, metrics, nil)
}

func TestHandleToolStartTransitionsBootingToWorking(t *testing.T) {
	in := newTestIntake(t)

	in.Handle(&Payload{
		HookEvent: "tool-start",
		AgentName: "builder-1",
		SessionID: "sess-1",
		ToolName:  "bash",
		ToolInput: map[string]any{"command": "go build ./..."},
	})

	sess, err := in.Sessions.GetByName("builder-1")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if sess.State != "working" {
		t.Errorf("State = %q, want working", sess.State)
	}

	events, err := in.Events.ForAgent("builder-1", "")
	if err != nil {
		t.Fatalf("ForAgent: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "tool_start" {
		t.Fatalf("events = %+v, want one tool_start", events)
	}
}

func TestHandleToolEndCorrelatesDuration(t *testing.T) {
	in := newTestIntake(t)

	in.Handle(&Payload{HookEvent: "tool-start", AgentName: "builder-1", ToolName: "bash", ToolInput: map[string]any{"command": "sleep 1"}})
	in.Handle(&Payload{HookEvent: "tool-end", AgentName: "builder-1", ToolName: "bash", ToolInput: map[string]any{"command": "sleep 1"}})

	events, err := in.Events.ForAgent("builder-1", "")
	if err != nil {
		t.Fatalf("ForAgent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events len = %d, want 2", len(events))
	}
	if events[0].ToolDurationMs == nil {
		t.Error("tool_start event should have duration stamped after correlation")
	}
}

func TestHandleSessionEndCompletesNonPersistentAgent(t *testing.T) {
	in := newTestIntake(t)

	in.Handle(&Payload{HookEvent: "session-end", AgentName: "builder-1"})

	sess, err := in.Sessions.GetByName("builder-1")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if sess.State != "completed" {
		t.Errorf("State = %q, want completed", sess.State)
	}
}

func TestHandleSessionEndWritesPendingNudgeMarkerForLead(t *testing.T) {
	in := newTestIntake(t)
	now := time.Now().UTC()
	lead := &model.AgentSession{
		AgentName: "lead-1", Capability: "lead", BeadID: "bead-7", WorktreePath: t.TempDir(),
		TmuxSession: "proj-lead-1", State: "working",
		StartedAt: now, LastActivity: now,
	}
	if err := in.Sessions.Upsert(lead); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	in.Handle(&Payload{HookEvent: "session-end", AgentName: "lead-1"})

	markerPath := filepath.Join(in.ProjectRoot, "pending-nudges", "lead-1.json")
	if _, err := os.Stat(markerPath); err != nil {
		t.Fatalf("expected pending nudge marker at %s: %v", markerPath, err)
	}

	stateStatePath := filepath.Join(in.ProjectRoot, "nudge-state.json")
	if _, err := os.Stat(stateStatePath); !os.IsNotExist(err) {
		t.Errorf("lead completion must not write nudge-state.json (debounce file), stat err = %v", err)
	}
}

func TestHandleSessionEndSkipsPersistentAgent(t *testing.T) {
	in := newTestIntake(t)
	now := time.Now().UTC()
	coord := &model.AgentSession{
		AgentName: "coordinator", Capability: "coordinator", WorktreePath: t.TempDir(),
		TmuxSession: "proj-coordinator", State: "working",
		StartedAt: now, LastActivity: now,
	}
	if err := in.Sessions.Upsert(coord); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	in.Handle(&Payload{HookEvent: "session-end", AgentName: "coordinator"})

	got, err := in.Sessions.GetByName("coordinator")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.State != "working" {
		t.Errorf("State = %q, want unchanged (working) for persistent capability", got.State)
	}
}
