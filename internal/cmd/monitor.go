package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/lifecycle"
)

var (
	monitorAttach   bool
	monitorNoAttach bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start, stop, or inspect the tier-2 monitor agent",
}

var monitorStartCmd = &cobra.Command{
	Use:  "start",
	RunE: runMonitorStart,
}

var monitorStopCmd = &cobra.Command{
	Use:  "stop",
	RunE: runMonitorStop,
}

var monitorStatusCmd = &cobra.Command{
	Use:  "status",
	RunE: runMonitorStatus,
}

func init() {
	monitorStartCmd.Flags().BoolVar(&monitorAttach, "attach", false, "attach to the session after spawning")
	monitorStartCmd.Flags().BoolVar(&monitorNoAttach, "no-attach", false, "never attach, even in an interactive terminal")

	monitorCmd.AddCommand(monitorStartCmd, monitorStopCmd, monitorStatusCmd)
	rootCmd.AddCommand(monitorCmd)
}

func runMonitorStart(c *cobra.Command, args []string) error {
	a, err := openApp("monitor")
	if err != nil {
		return err
	}
	defer a.Close()

	req := lifecycle.PersistentRequest{
		Capability:   constants.CapabilityMonitor,
		Tier2Enabled: true,
	}
	if monitorAttach || monitorNoAttach {
		attach := monitorAttach
		req.Attach = &attach
	}

	sess, err := a.engine.SpawnPersistent(req)
	if err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}

	if jsonOutput {
		return printJSON(c, sess)
	}
	fmt.Fprintf(c.OutOrStdout(), "monitor running as %s\n", sess.TmuxSession)

	if resolveAttach(monitorAttach, monitorNoAttach) {
		return attachToSession(sess.TmuxSession)
	}
	return nil
}

func runMonitorStop(c *cobra.Command, args []string) error {
	a, err := openApp("monitor")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Stop(constants.CapabilityMonitor); err != nil {
		return fmt.Errorf("stopping monitor: %w", err)
	}
	fmt.Fprintln(c.OutOrStdout(), "monitor stopped")
	return nil
}

func runMonitorStatus(c *cobra.Command, args []string) error {
	a, err := openApp("monitor")
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.sessions.GetByName(constants.CapabilityMonitor)
	if err != nil {
		return fmt.Errorf("looking up monitor: %w", err)
	}
	if sess == nil {
		fmt.Fprintln(c.OutOrStdout(), "monitor is not running")
		return nil
	}
	if jsonOutput {
		return printJSON(c, sess)
	}
	fmt.Fprintf(c.OutOrStdout(), "monitor: %s (last activity %s)\n", sess.State, sess.LastActivity.Format("2006-01-02 15:04:05"))
	return nil
}
