package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/supervise"
)

var (
	watchIntervalMs int
	watchBackground bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the tier-1 watchdog reconciliation loop",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchIntervalMs, "interval", 0, "reconciliation tick in milliseconds (0 uses the project default)")
	watchCmd.Flags().BoolVar(&watchBackground, "background", false, "fork into the background and exit, writing a PID file")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(c *cobra.Command, args []string) error {
	if watchBackground {
		return forkWatchdog()
	}

	a, err := openApp("watchdog")
	if err != nil {
		return err
	}
	defer a.Close()

	wd := supervise.New(a.sessions, a.tmux, a.nudge, a.root)
	if watchIntervalMs > 0 {
		wd.Tick = time.Duration(watchIntervalMs) * time.Millisecond
	}

	pf := supervise.NewPIDFile(watchdogPIDPath(a.root))
	if err := pf.Write(); err != nil {
		a.log.Warn("pidfile_write_failed", "err", err)
	}
	defer pf.Remove()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(c.OutOrStdout(), "watchdog running, tick %s\n", wd.Tick)
	return wd.Run(ctx)
}

// forkWatchdog execs a detached `overstory watch` (without --background)
// so the foreground invocation can return immediately. The daemon's
// stdout and stderr are discarded, not attached to the caller's terminal.
func forkWatchdog() error {
	return spawnWatchdogDaemon(nil)
}

func spawnWatchdogDaemon(a *app) error {
	root := controlDir
	if a != nil {
		root = a.root
	}

	pf := supervise.NewPIDFile(watchdogPIDPath(root))
	if running, _, _ := pf.IsRunning(); running {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable: %w", err)
	}

	cmd := exec.Command(exe, "watch", "--control-dir", root)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd.Start()
}
