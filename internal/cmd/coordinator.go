package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/lifecycle"
	"github.com/overstory-run/overstory/internal/nudge"
	"github.com/overstory-run/overstory/internal/supervise"
)

var (
	coordAttach      bool
	coordNoAttach    bool
	coordWatchdog    bool
	coordMonitor     bool
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Start, stop, or inspect the persistent coordinator agent",
}

var coordinatorStartCmd = &cobra.Command{
	Use:  "start",
	RunE: runCoordinatorStart,
}

var coordinatorStopCmd = &cobra.Command{
	Use:  "stop",
	RunE: runCoordinatorStop,
}

var coordinatorStatusCmd = &cobra.Command{
	Use:  "status",
	RunE: runCoordinatorStatus,
}

func init() {
	coordinatorStartCmd.Flags().BoolVar(&coordAttach, "attach", false, "attach to the session after spawning")
	coordinatorStartCmd.Flags().BoolVar(&coordNoAttach, "no-attach", false, "never attach, even in an interactive terminal")
	coordinatorStartCmd.Flags().BoolVar(&coordWatchdog, "watchdog", true, "also start the tier-1 watchdog daemon")
	coordinatorStartCmd.Flags().BoolVar(&coordMonitor, "monitor", false, "also spawn the tier-2 monitor agent")

	coordinatorCmd.AddCommand(coordinatorStartCmd, coordinatorStopCmd, coordinatorStatusCmd)
	rootCmd.AddCommand(coordinatorCmd)
}

func runCoordinatorStart(c *cobra.Command, args []string) error {
	a, err := openApp("coordinator")
	if err != nil {
		return err
	}
	defer a.Close()

	req := lifecycle.PersistentRequest{
		Capability:   constants.CapabilityCoordinator,
		WithWatchdog: coordWatchdog,
		WithMonitor:  coordMonitor,
	}
	if coordAttach || coordNoAttach {
		attach := coordAttach
		req.Attach = &attach
	}

	sess, err := a.engine.SpawnPersistent(req)
	if err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}

	if err := nudge.RegisterOrchestrator(a.root, sess.TmuxSession); err != nil {
		a.log.Warn("register_orchestrator_failed", "err", err)
	}

	if coordWatchdog {
		if err := spawnWatchdogDaemon(a); err != nil {
			a.log.Warn("watchdog_spawn_failed", "err", err)
		}
	}

	if jsonOutput {
		return printJSON(c, sess)
	}
	fmt.Fprintf(c.OutOrStdout(), "coordinator running as %s\n", sess.TmuxSession)

	if resolveAttach(coordAttach, coordNoAttach) {
		return attachToSession(sess.TmuxSession)
	}
	return nil
}

func runCoordinatorStop(c *cobra.Command, args []string) error {
	a, err := openApp("coordinator")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Stop(constants.CapabilityCoordinator); err != nil {
		return fmt.Errorf("stopping coordinator: %w", err)
	}
	pf := supervise.NewPIDFile(watchdogPIDPath(a.root))
	_ = pf.Remove()

	fmt.Fprintln(c.OutOrStdout(), "coordinator stopped")
	return nil
}

func runCoordinatorStatus(c *cobra.Command, args []string) error {
	a, err := openApp("coordinator")
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.sessions.GetByName(constants.CapabilityCoordinator)
	if err != nil {
		return fmt.Errorf("looking up coordinator: %w", err)
	}
	if sess == nil {
		fmt.Fprintln(c.OutOrStdout(), "coordinator is not running")
		return nil
	}
	if jsonOutput {
		return printJSON(c, sess)
	}
	fmt.Fprintf(c.OutOrStdout(), "coordinator: %s (last activity %s)\n", sess.State, sess.LastActivity.Format("2006-01-02 15:04:05"))
	return nil
}

func watchdogPIDPath(root string) string {
	return root + "/" + constants.WatchdogPIDFile
}
