package supervise

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchdog.pid")
	pf := NewPIDFile(path)

	if err := pf.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	pid, err := pf.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	if err := pf.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	pid, err = pf.Read()
	if err != nil {
		t.Fatalf("Read after remove: %v", err)
	}
	if pid != 0 {
		t.Errorf("pid after remove = %d, want 0", pid)
	}
}

func TestPIDFileIsRunningCleansUpStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchdog.pid")
	pf := NewPIDFile(path)

	// PID 1<<30 is almost certainly not a live process.
	if err := os.WriteFile(path, []byte("1073741824"), 0644); err != nil {
		t.Fatalf("seeding stale pid file: %v", err)
	}

	running, pid, err := pf.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if running {
		t.Errorf("running = true, want false for a stale pid")
	}
	if pid != 0 {
		t.Errorf("pid = %d, want 0", pid)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stale pid file should have been removed")
	}
}
