package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/model"
)

var (
	nudgeFrom  string
	nudgeForce bool
)

var nudgeCmd = &cobra.Command{
	Use:   "nudge <agentName> [message]",
	Short: "Interrupt a live agent's terminal with a message",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runNudge,
}

func init() {
	nudgeCmd.Flags().StringVar(&nudgeFrom, "from", "operator", "sender name recorded against the nudge")
	nudgeCmd.Flags().BoolVar(&nudgeForce, "force", false, "skip the check that the target is a known agent in the session registry")
	rootCmd.AddCommand(nudgeCmd)
}

func runNudge(c *cobra.Command, args []string) error {
	a, err := openApp("nudge")
	if err != nil {
		return err
	}
	defer a.Close()

	target := args[0]
	message := fmt.Sprintf("nudge from %s", nudgeFrom)
	if len(args) == 2 {
		message = args[1]
	}

	if !nudgeForce {
		sess, err := a.sessions.GetByName(target)
		if err != nil {
			return fmt.Errorf("looking up %s: %w", target, err)
		}
		if sess == nil {
			return fmt.Errorf("no such agent: %s", target)
		}
	}

	delivered, reason, err := a.nudge.Send(target, message, model.PriorityNormal)
	if err != nil {
		return fmt.Errorf("nudging %s: %w", target, err)
	}
	if !delivered {
		return fmt.Errorf("nudge to %s not delivered: %s", target, reason)
	}

	if jsonOutput {
		return printJSON(c, map[string]any{"agent": target, "message": message, "delivered": delivered})
	}
	fmt.Fprintf(c.OutOrStdout(), "nudged %s: %s\n", target, strings.TrimSpace(message))
	return nil
}
