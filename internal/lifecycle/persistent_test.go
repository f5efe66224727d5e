package lifecycle

import (
	"path/filepath"
	"testing"

	"github.com/overstory-run/overstory/internal/config"
	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	sessions, _, err := store.OpenSessionStore(filepath.Join(dir, "sessions.db"), "")
	if err != nil {
		t.Fatalf("opening session store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	return &Engine{
		ProjectRoot: dir,
		Config:      &config.ProjectConfig{ProjectName: "test"},
		Sessions:    sessions,
	}
}

func TestSpawnPersistentRejectsUnknownCapability(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.SpawnPersistent(PersistentRequest{Capability: "builder"})
	if err == nil {
		t.Fatal("expected an error for a non coordinator/monitor capability")
	}
}

func TestSpawnPersistentMonitorRequiresTier2(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.SpawnPersistent(PersistentRequest{Capability: constants.CapabilityMonitor})
	if err == nil {
		t.Fatal("expected an error starting a monitor without tier2Enabled")
	}
}

func TestSpawnPersistentRejectsDuplicateLiveSession(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Sessions.Upsert(liveCoordinatorSession()); err != nil {
		t.Fatalf("seeding existing session: %v", err)
	}
	_, err := e.SpawnPersistent(PersistentRequest{Capability: constants.CapabilityCoordinator})
	if err == nil {
		t.Fatal("expected an error spawning a coordinator while one is already live")
	}
}
