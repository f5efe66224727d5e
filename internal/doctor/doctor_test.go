package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/overstory-run/overstory/internal/store"
)

func TestSessionRegistryCheckOK(t *testing.T) {
	ctx := &Context{ProjectRoot: t.TempDir()}
	result := (&SessionRegistryCheck{}).Run(ctx)
	if result.Status != StatusOK {
		t.Errorf("Status = %q, want ok: %s", result.Status, result.Message)
	}
}

func TestCurrentRunConsistencyCheckNoFile(t *testing.T) {
	ctx := &Context{ProjectRoot: t.TempDir()}
	result := (&CurrentRunConsistencyCheck{}).Run(ctx)
	if result.Status != StatusOK {
		t.Errorf("Status = %q, want ok when no current-run.txt exists", result.Status)
	}
}

func TestCurrentRunConsistencyCheckUnknownRun(t *testing.T) {
	dir := t.TempDir()
	s, _, err := store.OpenSessionStore(filepath.Join(dir, "sessions.db"), "")
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	s.Close()

	if err := os.WriteFile(filepath.Join(dir, "current-run.txt"), []byte("nonexistent-run-id"), 0644); err != nil {
		t.Fatalf("writing current-run.txt: %v", err)
	}

	ctx := &Context{ProjectRoot: dir}
	result := (&CurrentRunConsistencyCheck{}).Run(ctx)
	if result.Status != StatusCritical {
		t.Errorf("Status = %q, want critical for unknown run id", result.Status)
	}
}

func TestCurrentRunConsistencyCheckActiveRun(t *testing.T) {
	dir := t.TempDir()
	s, _, err := store.OpenSessionStore(filepath.Join(dir, "sessions.db"), "")
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	run, err := s.CreateRun("run-1")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	s.Close()

	if err := os.WriteFile(filepath.Join(dir, "current-run.txt"), []byte(run.ID), 0644); err != nil {
		t.Fatalf("writing current-run.txt: %v", err)
	}

	ctx := &Context{ProjectRoot: dir}
	result := (&CurrentRunConsistencyCheck{}).Run(ctx)
	if result.Status != StatusOK {
		t.Errorf("Status = %q, want ok for active run: %s", result.Status, result.Message)
	}
}
