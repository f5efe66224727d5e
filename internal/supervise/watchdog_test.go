package supervise

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/nudge"
	"github.com/overstory-run/overstory/internal/store"
)

type fakePanes struct {
	alive map[string]bool
	killed []string
}

func (f *fakePanes) HasSession(name string) (bool, error) {
	return f.alive[name], nil
}

func (f *fakePanes) GetPanePID(session string) (int, error) {
	if f.alive[session] {
		return 1234, nil
	}
	return 0, errors.New("no pane")
}

func (f *fakePanes) KillSession(name string) error {
	f.killed = append(f.killed, name)
	delete(f.alive, name)
	return nil
}

func (f *fakePanes) SendKeysDebounced(session, keys string, debounce time.Duration) error {
	if !f.alive[session] {
		return errors.New("no pane")
	}
	return nil
}

func newTestWatchdog(t *testing.T) (*Watchdog, *fakePanes) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	s, _, err := store.OpenSessionStore(dbPath, "")
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	panes := &fakePanes{alive: map[string]bool{}}
	w := &Watchdog{
		Sessions:        s,
		Tmux:            panes,
		StaleThreshold:  time.Minute,
		ZombieThreshold: 5 * time.Minute,
	}
	return w, panes
}

func TestReconcileWorkingStaysWorkingWhenFresh(t *testing.T) {
	w, panes := newTestWatchdog(t)
	panes.alive["proj-a"] = true
	now := time.Now().UTC()
	sess := &model.AgentSession{
		AgentName: "a", TmuxSession: "proj-a", State: "working",
		StartedAt: now, LastActivity: now,
	}

	action := w.reconcileOne(sess, now.Add(10*time.Second))
	if action != ActionNone {
		t.Errorf("action = %q, want none", action)
	}
}

func TestReconcileWorkingEscalatesToStalled(t *testing.T) {
	w, panes := newTestWatchdog(t)
	panes.alive["proj-a"] = true
	start := time.Now().UTC()
	sess := &model.AgentSession{
		AgentName: "a", TmuxSession: "proj-a", State: "working",
		StartedAt: start, LastActivity: start,
	}

	action := w.reconcileOne(sess, start.Add(2*time.Minute))
	if action != ActionInvestigate {
		t.Errorf("action = %q, want investigate", action)
	}
}

func TestReconcileStalledEscalatesToZombieAndTerminates(t *testing.T) {
	w, panes := newTestWatchdog(t)
	panes.alive["proj-a"] = true
	start := time.Now().UTC()
	sess := &model.AgentSession{
		AgentName: "a", TmuxSession: "proj-a", State: "stalled",
		StartedAt: start, LastActivity: start,
	}

	action := w.reconcileOne(sess, start.Add(10*time.Minute))
	if action != ActionTerminate {
		t.Errorf("action = %q, want terminate", action)
	}
}

func TestReconcileDeadPaneTerminatesNonTerminalSession(t *testing.T) {
	w, _ := newTestWatchdog(t)
	now := time.Now().UTC()
	sess := &model.AgentSession{
		AgentName: "a", TmuxSession: "proj-a", State: "working",
		StartedAt: now, LastActivity: now,
	}

	action := w.reconcileOne(sess, now)
	if action != ActionTerminate {
		t.Errorf("action = %q, want terminate (dead pane)", action)
	}
}

func TestReconcileDeadPaneCompletedSessionIsNoop(t *testing.T) {
	w, _ := newTestWatchdog(t)
	now := time.Now().UTC()
	sess := &model.AgentSession{
		AgentName: "a", TmuxSession: "proj-a", State: "completed",
		StartedAt: now, LastActivity: now,
	}

	action := w.reconcileOne(sess, now)
	if action != ActionNone {
		t.Errorf("action = %q, want none for completed session with dead pane", action)
	}
}

func TestReconcileOnceTerminatesAndKillsSession(t *testing.T) {
	w, panes := newTestWatchdog(t)
	start := time.Now().UTC().Add(-time.Hour)
	sess := &model.AgentSession{
		AgentName: "zombie-1", Capability: "builder", TmuxSession: "proj-zombie-1", State: "stalled",
		StartedAt: start, LastActivity: start,
	}
	panes.alive["proj-zombie-1"] = true
	if err := w.Sessions.Upsert(sess); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := w.ReconcileOnce(); err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}

	if len(panes.killed) != 1 || panes.killed[0] != "proj-zombie-1" {
		t.Errorf("killed = %v, want [proj-zombie-1]", panes.killed)
	}
	got, err := w.Sessions.GetByName("zombie-1")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.State != "zombie" {
		t.Errorf("State = %q, want zombie", got.State)
	}
}

func TestReconcileOnceNudgesCoordinatorForPendingMarkerAndConsumesIt(t *testing.T) {
	w, panes := newTestWatchdog(t)
	w.ProjectRoot = t.TempDir()
	panes.alive["proj-coordinator"] = true

	if err := w.Sessions.Upsert(&model.AgentSession{
		AgentName: constants.CapabilityCoordinator, Capability: constants.CapabilityCoordinator,
		TmuxSession: "proj-coordinator", State: constants.StateWorking,
		StartedAt: time.Now().UTC(), LastActivity: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Upsert coordinator: %v", err)
	}

	markerDir := filepath.Join(w.ProjectRoot, constants.PendingNudgesDir)
	if err := os.MkdirAll(markerDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	markerPath := filepath.Join(markerDir, "lead-1.json")
	data, _ := json.Marshal(map[string]any{"agentName": "lead-1", "beadId": "bead-9", "endedAt": time.Now().UTC()})
	if err := os.WriteFile(markerPath, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w.Nudge = &nudge.Bus{Tmux: panes, Sessions: w.Sessions, ProjectRoot: w.ProjectRoot}

	if err := w.ReconcileOnce(); err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}

	if _, err := os.Stat(markerPath); !os.IsNotExist(err) {
		t.Errorf("expected marker file to be consumed, stat err = %v", err)
	}
}
