// Package lifecycle implements Overstory's agent-birth pipeline: the
// sling spawn sequence for worker agents, the specialized persistent-agent
// spawn for the coordinator and monitor, and the stop path that tears a
// session back down. All three share one skeleton grounded in the same
// registry, multiplexer adapter, and working-copy adapter.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/overstory-run/overstory/internal/config"
	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/expertise"
	"github.com/overstory-run/overstory/internal/filelock"
	"github.com/overstory-run/overstory/internal/logging"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/ovserr"
	"github.com/overstory-run/overstory/internal/store"
	"github.com/overstory-run/overstory/internal/tmux"
	"github.com/overstory-run/overstory/internal/tracker"
	"github.com/overstory-run/overstory/internal/util"
	"github.com/overstory-run/overstory/internal/vcs"
)

// Engine holds every dependency the lifecycle pipeline drives. Callers
// build one Engine per project root and reuse it across spawns.
type Engine struct {
	ProjectRoot string
	Config      *config.ProjectConfig

	Sessions *store.SessionStore
	Mail     *store.MailStore
	Events   *store.EventStore

	Tmux     *tmux.Tmux
	Tracker  *tracker.Client
	Advisor  expertise.Lookuper
	Log      *logging.Logger

	// CostTier is the project's optional overstory.toml model-selection
	// override; nil means every capability runs the runner's own default.
	CostTier *config.CostTierOverride

	// MaxConcurrent bounds the number of simultaneously active sessions.
	// Zero means unbounded.
	MaxConcurrent int
	// TrackerEnabled gates the work-item fetch/claim steps, since the
	// tracker is an optional external collaborator.
	TrackerEnabled bool
}

// NewEngine wires an Engine from already-open stores and a loaded config.
// The cost-tier override is best-effort: an invalid overstory.toml falls
// back to nil rather than failing engine construction, and a missing one
// yields the standard tier, which overrides no capability's model. Either
// way every capability runs its manifest default.
func NewEngine(projectRoot string, cfg *config.ProjectConfig, sessions *store.SessionStore, mail *store.MailStore, events *store.EventStore) *Engine {
	tier, err := config.LoadCostTierOverride(projectRoot)
	if err != nil {
		tier = nil
	}
	return &Engine{
		ProjectRoot: projectRoot,
		Config:      cfg,
		Sessions:    sessions,
		Mail:        mail,
		Events:      events,
		Tmux:        tmux.New(),
		Tracker:     tracker.New(filepath.Join(projectRoot, ".beads")),
		Advisor:     expertise.New(),
		Log:         logging.New("lifecycle"),
		CostTier:    tier,
	}
}

// currentRunPath returns the path to current-run.txt at the project root.
func (e *Engine) currentRunPath() string {
	return filepath.Join(e.ProjectRoot, constants.CurrentRunFile)
}

// resolveOrCreateRun implements step 7 of sling: read the active run id
// from current-run.txt, or create a new run and write the file if absent.
// Concurrent slings racing to create the first run of a project both read
// "absent" without a lock, so the read-or-create sequence is guarded by a
// file lock on current-run.txt.
func (e *Engine) resolveOrCreateRun() (*model.Run, error) {
	var run *model.Run
	err := filelock.WithLock(e.currentRunPath(), func() error {
		data, err := os.ReadFile(e.currentRunPath())
		if err == nil {
			id := string(data)
			if id != "" {
				if existing, err := e.Sessions.GetRun(trimNewline(id)); err == nil && existing != nil {
					run = existing
					return nil
				}
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("reading current run file: %w", err)
		}

		created, err := e.Sessions.CreateRun(uuid.NewString())
		if err != nil {
			return fmt.Errorf("creating run: %w", err)
		}
		if err := util.WriteFileAtomic(e.currentRunPath(), []byte(created.ID), 0644); err != nil {
			return fmt.Errorf("writing current-run.txt: %w", err)
		}
		run = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

// workingCopyGit returns a vcs adapter rooted at an agent's working copy.
func (e *Engine) workingCopyGit(worktreePath string) *vcs.Git {
	return vcs.New(worktreePath)
}

// validationError is a convenience wrapper matching the rest of the
// engine's error style.
func validationError(field, msg string) error {
	return ovserr.NewValidationError(field, msg)
}
