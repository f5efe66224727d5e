package nudge

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/store"
)

type fakeSessioner struct {
	hasSession    bool
	hasSessionErr error
	failSends     int // number of SendKeysDebounced calls to fail before succeeding
	sendCalls     int
}

func (f *fakeSessioner) HasSession(name string) (bool, error) {
	return f.hasSession, f.hasSessionErr
}

func (f *fakeSessioner) SendKeysDebounced(session, keys string, debounce time.Duration) error {
	f.sendCalls++
	if f.sendCalls <= f.failSends {
		return errors.New("send failed")
	}
	return nil
}

func newTestBus(t *testing.T, tmux sessioner) (*Bus, string) {
	t.Helper()
	dir := t.TempDir()
	sessions, _, err := store.OpenSessionStore(filepath.Join(dir, "sessions.db"), "")
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	now := time.Now().UTC()
	if err := sessions.Upsert(&model.AgentSession{
		AgentName: "scout-1", Capability: "scout", TmuxSession: "overstory-proj-scout-1",
		State: constants.StateWorking, StartedAt: now, LastActivity: now,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	return &Bus{Tmux: tmux, Sessions: sessions, ProjectRoot: dir}, dir
}

func TestBusSendSucceedsFirstTry(t *testing.T) {
	fake := &fakeSessioner{hasSession: true}
	bus, _ := newTestBus(t, fake)

	delivered, reason, err := bus.Send("scout-1", "hello", PriorityNormal)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !delivered || reason != ReasonNone {
		t.Errorf("delivered=%v reason=%q, want true/none", delivered, reason)
	}
	if fake.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want 1", fake.sendCalls)
	}
}

func TestBusSendRetriesThenSucceeds(t *testing.T) {
	fake := &fakeSessioner{hasSession: true, failSends: 2}
	bus, _ := newTestBus(t, fake)

	start := time.Now()
	delivered, _, err := bus.Send("scout-1", "hello", PriorityHigh)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !delivered {
		t.Error("expected delivered=true after eventual success")
	}
	if fake.sendCalls != 3 {
		t.Errorf("sendCalls = %d, want 3", fake.sendCalls)
	}
	if time.Since(start) < 2*constants.NudgeRetryDelay {
		t.Errorf("expected at least two retry delays between attempts")
	}
}

func TestBusSendUnknownAgentFailsFast(t *testing.T) {
	fake := &fakeSessioner{hasSession: false}
	bus, _ := newTestBus(t, fake)

	delivered, reason, err := bus.Send("nobody", "hello", PriorityNormal)
	if err == nil {
		t.Fatal("expected error when target has no registered session")
	}
	if delivered || reason != ReasonNoSession {
		t.Errorf("delivered=%v reason=%q, want false/NoSession", delivered, reason)
	}
	if fake.sendCalls != 0 {
		t.Errorf("sendCalls = %d, want 0 (should not attempt send)", fake.sendCalls)
	}
}

func TestBusSendDeadPaneFailsFast(t *testing.T) {
	fake := &fakeSessioner{hasSession: false}
	bus, _ := newTestBus(t, fake)

	if _, _, err := bus.Send("scout-1", "hello", PriorityNormal); err == nil {
		t.Fatal("expected error when pane is dead")
	}
	if fake.sendCalls != 0 {
		t.Errorf("sendCalls = %d, want 0 (should not attempt send)", fake.sendCalls)
	}
}

func TestBusSendExhaustsRetries(t *testing.T) {
	fake := &fakeSessioner{hasSession: true, failSends: 99}
	bus, _ := newTestBus(t, fake)

	delivered, _, err := bus.Send("scout-1", "hello", PriorityNormal)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if delivered {
		t.Error("expected delivered=false after exhausting retries")
	}
	if fake.sendCalls != constants.NudgeRetryAttempts {
		t.Errorf("sendCalls = %d, want %d", fake.sendCalls, constants.NudgeRetryAttempts)
	}
}

func TestBusSendDebouncesSecondCall(t *testing.T) {
	fake := &fakeSessioner{hasSession: true}
	bus, _ := newTestBus(t, fake)

	delivered1, _, err := bus.Send("scout-1", "first", PriorityNormal)
	if err != nil || !delivered1 {
		t.Fatalf("first Send: delivered=%v err=%v", delivered1, err)
	}

	delivered2, reason2, err := bus.Send("scout-1", "second", PriorityNormal)
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if delivered2 || reason2 != ReasonDebounced {
		t.Errorf("delivered=%v reason=%q, want false/Debounced", delivered2, reason2)
	}
	if fake.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want 1 (debounced send must not reach tmux)", fake.sendCalls)
	}
}

func TestBusSendOrchestratorFallsBackToRegistration(t *testing.T) {
	fake := &fakeSessioner{hasSession: true}
	bus, dir := newTestBus(t, fake)

	if err := RegisterOrchestrator(dir, "overstory-proj-coordinator"); err != nil {
		t.Fatalf("RegisterOrchestrator: %v", err)
	}

	delivered, _, err := bus.Send(constants.SentinelOrchestrator, "hello", PriorityNormal)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !delivered {
		t.Error("expected delivery via orchestrator registration fallback")
	}
}

func TestBusSendOrchestratorWithoutRegistrationFails(t *testing.T) {
	fake := &fakeSessioner{hasSession: true}
	bus, _ := newTestBus(t, fake)

	if _, _, err := bus.Send(constants.SentinelOrchestrator, "hello", PriorityNormal); err == nil {
		t.Fatal("expected error when no orchestrator registration exists")
	}
}
