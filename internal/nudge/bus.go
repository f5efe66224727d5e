// Package nudge delivers short text messages directly into a running
// agent's terminal pane via tmux send-keys. Unlike a mail message, a
// nudge is not meant to be read later — it is meant to interrupt: a
// debounced, retried send-keys call that gets a sentence in front of
// the agent at its next idle moment.
package nudge

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/filelock"
	"github.com/overstory-run/overstory/internal/logging"
	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/store"
	"github.com/overstory-run/overstory/internal/tmux"
	"github.com/overstory-run/overstory/internal/util"
)

// Priority levels a nudge can carry; status/log output reads these back.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Reason constants explain why a nudge did not reach a live pane. Send
// returns these as a plain string so callers (notably internal/mail's
// notifier interface) don't need to import this package just to name the
// type of a diagnostic value.
const (
	ReasonNone      = ""
	ReasonDebounced = "Debounced"
	ReasonNoSession = "NoSession"
)

// sessioner is the narrow slice of *tmux.Tmux the bus needs — small
// enough to fake in tests without a real tmux server.
type sessioner interface {
	HasSession(name string) (bool, error)
	SendKeysDebounced(session, keys string, debounce time.Duration) error
}

var _ sessioner = (*tmux.Tmux)(nil)

// Bus delivers nudges to live agent sessions over tmux, recording each
// attempt as an event for later audit via `overstory log`.
type Bus struct {
	Tmux        sessioner
	Sessions    *store.SessionStore
	Events      *store.EventStore
	ProjectRoot string
	Log         *logging.Logger
}

// New returns a Bus wired to the given tmux adapter, session registry, and
// event store. Events may be nil in contexts (like tests) that don't need
// an audit trail.
func New(t *tmux.Tmux, sessions *store.SessionStore, events *store.EventStore, projectRoot string) *Bus {
	return &Bus{Tmux: t, Sessions: sessions, Events: events, ProjectRoot: projectRoot, Log: logging.New("nudge")}
}

// orchestration is the shape of orchestrator-tmux.json: the registration a
// coordinator start writes so the sentinel recipient name "orchestrator"
// can still be nudged even when the session registry has no entry under
// that literal name.
type orchestration struct {
	TmuxSession string `json:"tmuxSession"`
}

// RegisterOrchestrator writes the operator-session registration the
// sentinel recipient "orchestrator" falls back to when it has no entry in
// the session registry. The coordinator start path calls this so later
// nudges addressed to "orchestrator" (auto-record's summary mail, an
// operator-issued `overstory nudge orchestrator`) still resolve to a pane.
func RegisterOrchestrator(projectRoot, tmuxSession string) error {
	path := projectRoot + "/" + constants.OrchestratorTmux
	return util.EnsureDirAndWriteJSON(path, &orchestration{TmuxSession: tmuxSession})
}

// Send delivers message to the tmux session for agentName, debouncing
// repeated sends and retrying up to three times with a liveness check
// between attempts. It reports whether the nudge actually reached a pane
// and, when it didn't, a machine-readable reason alongside any error.
func (b *Bus) Send(agentName, message, priority string) (bool, string, error) {
	debounced, err := b.checkDebounce(agentName)
	if err != nil {
		return false, ReasonNone, fmt.Errorf("checking nudge debounce state for %s: %w", agentName, err)
	}
	if debounced {
		b.record(agentName, message, priority, false)
		return false, ReasonDebounced, nil
	}

	session, err := b.resolveSession(agentName)
	if err != nil {
		b.record(agentName, message, priority, false)
		return false, ReasonNoSession, err
	}

	var lastErr error
	for attempt := 1; attempt <= constants.NudgeRetryAttempts; attempt++ {
		has, err := b.Tmux.HasSession(session)
		if err != nil {
			lastErr = err
			break
		}
		if !has {
			lastErr = fmt.Errorf("nudge target %s (session %s) has no live session", agentName, session)
			break
		}

		lastErr = b.Tmux.SendKeysDebounced(session, message, constants.NudgeRetryDelay)
		if lastErr == nil {
			b.record(agentName, message, priority, true)
			return true, ReasonNone, nil
		}
		time.Sleep(constants.NudgeRetryDelay)
	}
	b.record(agentName, message, priority, false)
	return false, ReasonNoSession, fmt.Errorf("delivering nudge to %s after %d attempts: %w", agentName, constants.NudgeRetryAttempts, lastErr)
}

// resolveSession looks agentName up in the session registry first; the
// sentinel name "orchestrator" falls back to the registration file a
// coordinator start writes when the registry has no entry by that name.
func (b *Bus) resolveSession(agentName string) (string, error) {
	sess, err := b.Sessions.GetByName(agentName)
	if err != nil {
		return "", fmt.Errorf("looking up %s in session registry: %w", agentName, err)
	}
	if sess != nil {
		return sess.TmuxSession, nil
	}
	if agentName == constants.SentinelOrchestrator {
		return b.resolveOrchestratorRegistration()
	}
	return "", fmt.Errorf("nudge target %s has no registered session", agentName)
}

func (b *Bus) resolveOrchestratorRegistration() (string, error) {
	path := b.ProjectRoot + "/" + constants.OrchestratorTmux
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("no registered orchestrator session: %w", err)
	}
	var reg orchestration
	if err := json.Unmarshal(data, &reg); err != nil {
		return "", fmt.Errorf("parsing orchestrator registration: %w", err)
	}
	if reg.TmuxSession == "" {
		return "", fmt.Errorf("orchestrator registration at %s has no tmux session", path)
	}
	return reg.TmuxSession, nil
}

// checkDebounce reports whether a nudge to agentName arrived less than the
// debounce window after the previous one, consulting and stamping
// nudge-state.json under an exclusive flock so two racing callers can't
// both see a stale timestamp.
func (b *Bus) checkDebounce(agentName string) (bool, error) {
	path := b.ProjectRoot + "/" + constants.NudgeStateFile
	debounced := false
	err := filelock.WithLock(path, func() error {
		state := map[string]time.Time{}
		if data, readErr := os.ReadFile(path); readErr == nil {
			_ = json.Unmarshal(data, &state)
		} else if !os.IsNotExist(readErr) {
			return readErr
		}

		now := time.Now().UTC()
		if last, ok := state[agentName]; ok && now.Sub(last) < constants.NudgeDebounceWindow {
			debounced = true
			return nil
		}

		state[agentName] = now
		return util.EnsureDirAndWriteJSON(path, state)
	})
	return debounced, err
}

func (b *Bus) record(agentName, message, priority string, delivered bool) {
	if b.Events == nil {
		return
	}
	action := "nudge_delivered"
	if !delivered {
		action = "nudge_failed"
	}
	b.Log.Discard(action, func() error {
		_, err := b.Events.Append(&model.Event{
			AgentName: agentName,
			EventType: action,
			Level:     "info",
			Data:      []byte(fmt.Sprintf(`{"priority":%q,"message":%q}`, priority, message)),
		})
		return err
	})
}
