// Package supervise implements the two-tier control loop: tier 1, the
// watchdog, reconciles session state against pane liveness on a fixed
// interval; tier 2, the monitor, is itself a living agent that patrols
// the fleet through the status API, so this package only needs to give
// it something to patrol — it does not implement the monitor's reasoning.
package supervise

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/logging"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/nudge"
	"github.com/overstory-run/overstory/internal/store"
	"github.com/overstory-run/overstory/internal/tmux"
)

// Action is what a reconciliation pass decided to do about a session.
type Action string

const (
	ActionNone        Action = ""
	ActionInvestigate Action = "investigate"
	ActionTerminate   Action = "terminate"
)

// paneChecker is the narrow slice of *tmux.Tmux the watchdog needs to
// probe liveness — small enough to fake in tests.
type paneChecker interface {
	HasSession(name string) (bool, error)
	GetPanePID(session string) (int, error)
}

var _ paneChecker = (*tmux.Tmux)(nil)

// killer is the narrow slice of *tmux.Tmux the watchdog needs to tear
// down a session once it decides to terminate it.
type killer interface {
	KillSession(name string) error
}

var _ killer = (*tmux.Tmux)(nil)

// Watchdog runs the tier-1 reconciliation loop.
type Watchdog struct {
	Sessions *store.SessionStore
	Tmux     interface {
		paneChecker
		killer
	}
	Nudge       *nudge.Bus
	ProjectRoot string
	Log         *logging.Logger

	StaleThreshold  time.Duration
	ZombieThreshold time.Duration
	Tick            time.Duration
	GracePeriod     time.Duration
}

// New returns a Watchdog with spec defaults; callers override fields that
// a project's config.yaml customizes.
func New(sessions *store.SessionStore, t *tmux.Tmux, n *nudge.Bus, projectRoot string) *Watchdog {
	return &Watchdog{
		Sessions:        sessions,
		Tmux:            t,
		Nudge:           n,
		ProjectRoot:     projectRoot,
		Log:             logging.New("watchdog"),
		StaleThreshold:  constants.DefaultStaleThreshold,
		ZombieThreshold: constants.DefaultZombieThreshold,
		Tick:            constants.DefaultWatchdogTick,
		GracePeriod:     constants.DefaultGracePeriod,
	}
}

// Run ticks until ctx is canceled, reconciling every known session each
// tick.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ReconcileOnce(); err != nil {
				w.Log.Error("reconcile_failed", err)
			}
		}
	}
}

// ReconcileOnce runs one pass of reconciliation over every known session.
func (w *Watchdog) ReconcileOnce() error {
	sessions, err := w.Sessions.GetAll()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	now := time.Now().UTC()
	for _, sess := range sessions {
		action := w.reconcileOne(sess, now)
		switch action {
		case ActionTerminate:
			w.terminate(sess)
		case ActionInvestigate:
			w.investigate(sess)
		}
	}
	w.reconcilePendingNudges()
	return nil
}

// pendingNudgeMarker mirrors the shape hookintake writes to
// pending-nudges/{agent}.json when a non-persistent lead's session ends.
type pendingNudgeMarker struct {
	AgentName string    `json:"agentName"`
	BeadID    string    `json:"beadId"`
	EndedAt   time.Time `json:"endedAt"`
}

// reconcilePendingNudges consumes every pending-nudges/{agent}.json marker,
// nudging the coordinator that a lead finished and removing the marker so
// it isn't replayed on the next tick.
func (w *Watchdog) reconcilePendingNudges() {
	if w.Nudge == nil || w.ProjectRoot == "" {
		return
	}
	dir := w.ProjectRoot + "/" + constants.PendingNudgesDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.Log.Warn("read_pending_nudges_failed", "err", err)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		w.Log.Discard("nudge_coordinator_pending", func() error {
			return w.consumePendingNudge(path)
		})
	}
}

func (w *Watchdog) consumePendingNudge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading pending nudge marker %s: %w", path, err)
	}
	var marker pendingNudgeMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return fmt.Errorf("parsing pending nudge marker %s: %w", path, err)
	}

	message := fmt.Sprintf("Lead %s finished (bead %s).", marker.AgentName, marker.BeadID)
	if _, _, err := w.Nudge.Send(constants.CapabilityCoordinator, message, "normal"); err != nil {
		return fmt.Errorf("nudging coordinator about %s: %w", marker.AgentName, err)
	}
	return os.Remove(path)
}

// reconcileOne implements the reconciliation table from the supervision
// design: pane liveness crossed with state and idle duration decides the
// next state and any action.
func (w *Watchdog) reconcileOne(sess *model.AgentSession, now time.Time) Action {
	paneAlive := w.paneAlive(sess)
	idle := now.Sub(sess.LastActivity)

	switch {
	case paneAlive && (sess.State == constants.StateBooting || sess.State == constants.StateWorking) && idle < w.StaleThreshold:
		_ = w.Sessions.UpdateLastActivity(sess.AgentName)
		return ActionNone

	case paneAlive && sess.State == constants.StateStalled && idle < w.StaleThreshold:
		_ = w.Sessions.UpdateState(sess.AgentName, constants.StateWorking)
		_ = w.Sessions.UpdateEscalation(sess.AgentName, 0, nil)
		return ActionNone

	case paneAlive && sess.State == constants.StateWorking && idle >= w.StaleThreshold:
		_ = w.Sessions.UpdateState(sess.AgentName, constants.StateStalled)
		_ = w.Sessions.UpdateEscalation(sess.AgentName, sess.EscalationLevel+1, &now)
		return ActionInvestigate

	case paneAlive && sess.State == constants.StateStalled && idle >= w.ZombieThreshold:
		_ = w.Sessions.UpdateState(sess.AgentName, constants.StateZombie)
		return ActionTerminate

	case !paneAlive && sess.State != constants.StateCompleted && sess.State != constants.StateZombie:
		_ = w.Sessions.UpdateState(sess.AgentName, constants.StateZombie)
		return ActionTerminate

	default:
		return ActionNone
	}
}

func (w *Watchdog) paneAlive(sess *model.AgentSession) bool {
	has, err := w.Tmux.HasSession(sess.TmuxSession)
	if err != nil || !has {
		return false
	}
	if sess.PID == nil {
		return true
	}
	_, err = w.Tmux.GetPanePID(sess.TmuxSession)
	return err == nil
}

func (w *Watchdog) terminate(sess *model.AgentSession) {
	if sess.PID != nil {
		if err := tmux.KillProcessTree(*sess.PID, w.GracePeriod); err != nil {
			w.Log.Warn("kill_process_tree_failed", "agent", sess.AgentName, "err", err)
		}
	}
	if err := w.Tmux.KillSession(sess.TmuxSession); err != nil {
		w.Log.Warn("kill_session_failed", "agent", sess.AgentName, "err", err)
	}
}

func (w *Watchdog) investigate(sess *model.AgentSession) {
	if w.Nudge == nil {
		return
	}
	priority := "normal"
	if sess.EscalationLevel > 1 {
		priority = "high"
	}
	w.Log.Discard("enqueue_investigate_nudge", func() error {
		_, _, err := w.Nudge.Send(sess.AgentName, fmt.Sprintf("Still there? No activity for a while — escalation level %d.", sess.EscalationLevel), priority)
		return err
	})
}
