package lifecycle

import (
	"testing"
	"time"

	"github.com/overstory-run/overstory/internal/model"
)

func TestCalculateStaggerDelayNoActiveSessions(t *testing.T) {
	if d := calculateStaggerDelay(nil, 5000, time.Now()); d != 0 {
		t.Errorf("delay = %v, want 0 with no active sessions", d)
	}
}

func TestCalculateStaggerDelayDisabled(t *testing.T) {
	active := []*model.AgentSession{{StartedAt: time.Now()}}
	if d := calculateStaggerDelay(active, 0, time.Now()); d != 0 {
		t.Errorf("delay = %v, want 0 when staggerMs <= 0", d)
	}
}

func TestCalculateStaggerDelayWithinWindow(t *testing.T) {
	now := time.Now()
	active := []*model.AgentSession{
		{StartedAt: now.Add(-1 * time.Second)},
		{StartedAt: now.Add(-4 * time.Second)},
	}
	delay := calculateStaggerDelay(active, 5000, now)
	want := 4 * time.Second
	if delay < want-50*time.Millisecond || delay > want+50*time.Millisecond {
		t.Errorf("delay = %v, want ~%v (5s window minus 1s elapsed since most recent)", delay, want)
	}
}

func TestCalculateStaggerDelayWindowElapsed(t *testing.T) {
	now := time.Now()
	active := []*model.AgentSession{{StartedAt: now.Add(-10 * time.Second)}}
	if d := calculateStaggerDelay(active, 5000, now); d != 0 {
		t.Errorf("delay = %v, want 0 once the stagger window has elapsed", d)
	}
}
