package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/store"
)

var (
	cleanAll        bool
	cleanMail       bool
	cleanSessions   bool
	cleanLogs       bool
	cleanMergeQueue bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove completed sessions, old mail, and stale logs",
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanAll, "all", false, "clean everything below")
	cleanCmd.Flags().BoolVar(&cleanMail, "mail", false, "purge mail older than 24h")
	cleanCmd.Flags().BoolVar(&cleanSessions, "sessions", false, "purge completed sessions")
	cleanCmd.Flags().BoolVar(&cleanLogs, "logs", false, "remove the legacy logs directory")
	cleanCmd.Flags().BoolVar(&cleanMergeQueue, "merge-queue", false, "purge merged and rejected merge-queue entries older than 24h")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(c *cobra.Command, args []string) error {
	if !cleanAll && !cleanMail && !cleanSessions && !cleanLogs && !cleanMergeQueue {
		return fmt.Errorf("specify at least one of --all, --mail, --sessions, --logs, --merge-queue")
	}

	report := map[string]any{}

	if cleanAll || cleanSessions {
		sessions, _, err := store.OpenSessionStore(dbPath(constants.SessionsDB), legacySessionsPath())
		if err != nil {
			return fmt.Errorf("opening session registry: %w", err)
		}
		n, err := sessions.Purge(store.PurgeFilter{State: constants.StateCompleted})
		sessions.Close()
		if err != nil {
			return fmt.Errorf("purging completed sessions: %w", err)
		}
		report["sessionsRemoved"] = n
	}

	if cleanAll || cleanMail {
		mailDB, err := store.OpenMailStore(dbPath(constants.MailDB))
		if err != nil {
			return fmt.Errorf("opening mail store: %w", err)
		}
		n, err := mailDB.Purge(time.Now().UTC().Add(-24 * time.Hour))
		mailDB.Close()
		if err != nil {
			return fmt.Errorf("purging mail: %w", err)
		}
		report["mailRemoved"] = n
	}

	if cleanAll || cleanMergeQueue {
		mergeQueue, err := store.OpenMergeQueueStore(dbPath("merge-queue.db"))
		if err != nil {
			return fmt.Errorf("opening merge queue store: %w", err)
		}
		n, err := mergeQueue.PurgeResolved(time.Now().UTC().Add(-24 * time.Hour))
		mergeQueue.Close()
		if err != nil {
			return fmt.Errorf("purging merge queue: %w", err)
		}
		report["mergeQueueRemoved"] = n
	}

	if cleanAll || cleanLogs {
		logsDir := controlDir + "/" + constants.LogsDir
		if err := os.RemoveAll(logsDir); err != nil {
			return fmt.Errorf("removing logs: %w", err)
		}
		report["logsRemoved"] = true
	}

	if jsonOutput {
		return printJSON(c, report)
	}
	for k, v := range report {
		fmt.Fprintf(c.OutOrStdout(), "%s: %v\n", k, v)
	}
	return nil
}
