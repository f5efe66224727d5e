package lifecycle

import (
	"testing"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/model"
)

func liveCoordinatorSession() *model.AgentSession {
	now := time.Now().UTC()
	return &model.AgentSession{
		ID:           "coord-session-1",
		AgentName:    constants.CapabilityCoordinator,
		Capability:   constants.CapabilityCoordinator,
		WorktreePath: "/tmp/project",
		TmuxSession:  "overstory-test-coordinator",
		State:        constants.StateWorking,
		StartedAt:    now,
		LastActivity: now,
	}
}

func TestStopNoSessionIsNoop(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Stop("no-such-agent"); err != nil {
		t.Fatalf("Stop on a missing session should be a no-op, got: %v", err)
	}
}
