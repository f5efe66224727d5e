package lifecycle

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/overstory-run/overstory/internal/config"
	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/ovserr"
)

// PersistentRequest spawns the coordinator or monitor, which run at the
// project root rather than in a per-agent working copy.
type PersistentRequest struct {
	Capability    string // coordinator or monitor
	Tier2Enabled  bool   // must be true to start a monitor
	Attach        *bool  // explicit --attach/--no-attach; nil defers to terminal detection
	WithWatchdog  bool
	WithMonitor   bool
}

// SpawnPersistent runs the coordinator/monitor variant of the spawn
// skeleton: no working copy, no work-item claim, hooks deployed at the
// project root, no stagger (there is at most one of each). The hook
// manifest written at the root carries no environment guard.
func (e *Engine) SpawnPersistent(req PersistentRequest) (*model.AgentSession, error) {
	if req.Capability != constants.CapabilityCoordinator && req.Capability != constants.CapabilityMonitor {
		return nil, validationError("capability", "must be coordinator or monitor")
	}
	if req.Capability == constants.CapabilityMonitor && !req.Tier2Enabled {
		return nil, ovserr.NewOverstoryError("monitor start requires tier2Enabled", nil)
	}

	name := req.Capability
	if existing, err := e.Sessions.GetByName(name); err != nil {
		return nil, fmt.Errorf("checking existing %s session: %w", name, err)
	} else if existing != nil && isLive(existing.State) {
		return nil, ovserr.NewAgentError(name, fmt.Sprintf("%s is already running", name), nil)
	}

	if err := deployHooks(e.ProjectRoot, req.Capability); err != nil {
		return nil, fmt.Errorf("deploying hooks at project root: %w", err)
	}

	tmuxName := constants.SessionName(e.Config.ProjectName, name)
	runnerCmd := composeRunnerCommand(e.Config, config.CapabilityDef{Capability: name}, e.CostTier)

	if err := e.Tmux.NewSessionWithCommand(tmuxName, e.ProjectRoot, runnerCmd); err != nil {
		return nil, fmt.Errorf("starting %s session: %w", name, err)
	}

	now := time.Now().UTC()
	sess := &model.AgentSession{
		ID:           uuid.NewString(),
		AgentName:    name,
		Capability:   req.Capability,
		WorktreePath: e.ProjectRoot,
		BranchName:   "",
		TmuxSession:  tmuxName,
		State:        constants.StateBooting,
		Depth:        0,
		StartedAt:    now,
		LastActivity: now,
	}
	if err := e.Sessions.Upsert(sess); err != nil {
		_ = e.Tmux.KillSession(tmuxName)
		return nil, fmt.Errorf("registering %s session: %w", name, err)
	}

	shouldAttach := false
	switch {
	case req.Attach != nil:
		shouldAttach = *req.Attach
	default:
		shouldAttach = term.IsTerminal(int(os.Stdout.Fd()))
	}
	if shouldAttach {
		e.Log.Info("attach_requested", "agent", name, "tmux_session", tmuxName)
	}

	return sess, nil
}
