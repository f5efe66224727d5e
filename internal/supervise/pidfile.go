package supervise

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/overstory-run/overstory/internal/filelock"
	"github.com/overstory-run/overstory/internal/util"
)

// PIDFile manages the watchdog's background-daemon PID file: the
// coordinator reads it to answer start/stop/isRunning queries without
// needing a live handle to the daemon process.
type PIDFile struct {
	Path string
}

// NewPIDFile returns a PIDFile at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process's PID, overwriting any prior file.
// Locked so a concurrent `coordinator start --watchdog` racing another
// watchdog launch can't interleave writes into a corrupt file.
func (p *PIDFile) Write() error {
	return filelock.WithLock(p.Path, func() error {
		return os.WriteFile(p.Path, []byte(strconv.Itoa(os.Getpid())), 0644)
	})
}

// Remove deletes the PID file if present.
func (p *PIDFile) Remove() error {
	err := os.Remove(p.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read returns the PID file process's PID, or (0, nil) if the file
// doesn't exist.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading pid file %s: %w", p.Path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", p.Path, err)
	}
	return pid, nil
}

// IsRunning reports whether the recorded PID names a live process. A
// stale PID file (process gone) is removed as a side effect, the same
// cleanup the coordinator would otherwise have to remember to do itself.
func (p *PIDFile) IsRunning() (bool, int, error) {
	pid, err := p.Read()
	if err != nil {
		return false, 0, err
	}
	if pid == 0 {
		return false, 0, nil
	}
	if util.ProcessExists(pid) {
		return true, pid, nil
	}
	_ = p.Remove()
	return false, 0, nil
}
