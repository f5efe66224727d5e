package lifecycle

import (
	"fmt"
	"os"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/tmux"
)

// Stop implements the stop path for a persistent agent: find its active
// session, kill the multiplexer session with process-tree cleanup,
// transition it to completed, and if it owned the active run, complete
// the run and remove current-run.txt.
func (e *Engine) Stop(agentName string) error {
	sess, err := e.Sessions.GetByName(agentName)
	if err != nil {
		return fmt.Errorf("looking up session %s: %w", agentName, err)
	}
	if sess == nil {
		return nil
	}

	if sess.PID != nil {
		_ = tmux.KillProcessTree(*sess.PID, constants.DefaultGracePeriod)
	}
	if err := e.Tmux.KillSession(sess.TmuxSession); err != nil {
		e.Log.Warn("kill_session_failed", "session", sess.TmuxSession, "err", err)
	}

	if err := e.Sessions.UpdateState(agentName, constants.StateCompleted); err != nil {
		return fmt.Errorf("marking %s completed: %w", agentName, err)
	}

	if sess.RunID != nil {
		if err := e.Sessions.CompleteRun(*sess.RunID, constants.RunCompleted); err != nil {
			e.Log.Warn("complete_run_failed", "run", *sess.RunID, "err", err)
		}
		path := e.currentRunPath()
		if data, readErr := os.ReadFile(path); readErr == nil && trimNewline(string(data)) == *sess.RunID {
			_ = os.Remove(path)
		}
	}
	return nil
}
