// Package filelock guards Overstory's single-writer state files
// (current-run.txt, nudge-state.json, watchdog.pid) against concurrent
// mutation from more than one process, the same way the host fleet's own
// JSON-state packages do for their equivalents.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WithLock acquires an exclusive lock on path+".lock" (creating its parent
// directory if needed), runs fn, and releases the lock regardless of
// whether fn returns an error.
func WithLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring lock on %s: %w", path, err)
	}
	defer fl.Unlock()

	return fn()
}
