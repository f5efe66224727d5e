package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func printJSON(c *cobra.Command, v any) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// attachToSession replaces the current process with tmux attached to the
// given session, or switch-client if we're already inside tmux. Mirrors
// the out-of-process exec the rest of the fleet's terminals run under, so
// the operator's own shell behaves the same way.
func attachToSession(sessionID string) error {
	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		return fmt.Errorf("tmux not found: %w", err)
	}

	var args []string
	if os.Getenv("TMUX") != "" {
		args = []string{"tmux", "-u", "switch-client", "-t", sessionID}
	} else {
		args = []string{"tmux", "-u", "attach-session", "-t", sessionID}
	}
	return syscall.Exec(tmuxPath, args, os.Environ())
}

// resolveAttach applies the same --attach/--no-attach/auto-detect
// priority the engine itself logs against: an explicit flag wins,
// otherwise attach only when standard output is itself a terminal.
func resolveAttach(attach, noAttach bool) bool {
	switch {
	case attach:
		return true
	case noAttach:
		return false
	default:
		return term.IsTerminal(int(os.Stdout.Fd()))
	}
}
