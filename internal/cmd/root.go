// Package cmd wires Overstory's command-line surface: one cobra command
// per verb (sling, coordinator, monitor, watch, nudge, status, log,
// clean, doctor), each opening the stores and adapters it needs against
// a project's control directory and tearing them down on exit.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/config"
	"github.com/overstory-run/overstory/internal/lifecycle"
	"github.com/overstory-run/overstory/internal/logging"
	"github.com/overstory-run/overstory/internal/mail"
	"github.com/overstory-run/overstory/internal/nudge"
	"github.com/overstory-run/overstory/internal/store"
	"github.com/overstory-run/overstory/internal/tmux"
	"github.com/overstory-run/overstory/internal/util"
)

var (
	controlDir string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "overstory",
	Short: "Orchestrate fleets of AI coding agents in terminal sessions",
	Long: `Overstory slings AI coding agents into tmux sessions, watches them for
stalls and crashes, and carries mail and nudges between them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		controlDir = util.ExpandHome(controlDir)
	},
}

func init() {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	rootCmd.PersistentFlags().StringVar(&controlDir, "control-dir", cwd, "project control directory (defaults to $OVS or the current directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON instead of human text")

	if env := os.Getenv("OVS"); env != "" {
		controlDir = util.ExpandHome(env)
	}
}

// Execute runs the root command, returning the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "overstory:", err)
		return 1
	}
	return 0
}

// app bundles the stores and adapters every subcommand needs. Opened
// lazily per-invocation and closed via Close before the command returns.
type app struct {
	root       string
	cfg        *config.ProjectConfig
	sessions   *store.SessionStore
	mailDB     *store.MailStore
	events     *store.EventStore
	metrics    *store.MetricsStore
	mergeQueue *store.MergeQueueStore
	tmux       *tmux.Tmux
	mail       *mail.Client
	nudge      *nudge.Bus
	engine     *lifecycle.Engine
	log        *logging.Logger
}

func openApp(component string) (*app, error) {
	cfg, err := config.Load(controlDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	sessions, _, err := store.OpenSessionStore(dbPath("sessions.db"), legacySessionsPath())
	if err != nil {
		return nil, fmt.Errorf("opening session registry: %w", err)
	}
	mailDB, err := store.OpenMailStore(dbPath("mail.db"))
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("opening mail store: %w", err)
	}
	events, err := store.OpenEventStore(dbPath("events.db"))
	if err != nil {
		sessions.Close()
		mailDB.Close()
		return nil, fmt.Errorf("opening event store: %w", err)
	}
	metrics, err := store.OpenMetricsStore(dbPath("metrics.db"))
	if err != nil {
		sessions.Close()
		mailDB.Close()
		events.Close()
		return nil, fmt.Errorf("opening metrics store: %w", err)
	}
	mergeQueue, err := store.OpenMergeQueueStore(dbPath("merge-queue.db"))
	if err != nil {
		sessions.Close()
		mailDB.Close()
		events.Close()
		metrics.Close()
		return nil, fmt.Errorf("opening merge queue store: %w", err)
	}

	t := tmux.New()
	nb := nudge.New(t, sessions, events, controlDir)
	mc := mail.New(mailDB, sessions)
	mc.Notify = nb

	a := &app{
		root:       controlDir,
		cfg:        cfg,
		sessions:   sessions,
		mailDB:     mailDB,
		events:     events,
		metrics:    metrics,
		mergeQueue: mergeQueue,
		tmux:       t,
		mail:       mc,
		nudge:      nb,
		engine:     lifecycle.NewEngine(controlDir, cfg, sessions, mailDB, events),
		log:        logging.New(component),
	}
	return a, nil
}

func (a *app) Close() {
	a.sessions.Close()
	a.mailDB.Close()
	a.events.Close()
	a.metrics.Close()
	a.mergeQueue.Close()
}

func dbPath(name string) string {
	return controlDir + "/" + name
}

func legacySessionsPath() string {
	return controlDir + "/sessions.json"
}
