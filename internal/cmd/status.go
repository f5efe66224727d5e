package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/model"
	"github.com/overstory-run/overstory/internal/style"
)

var (
	statusVerbose    bool
	statusAgent      string
	statusAll        bool
	statusWatch      bool
	statusInterval   int
	statusMergeQueue bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of every known agent",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusVerbose, "verbose", false, "include the worktree column")
	statusCmd.Flags().StringVar(&statusAgent, "agent", "", "show only this agent")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "include completed and zombie sessions, not just active ones")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "redraw on an interval instead of printing once")
	statusCmd.Flags().IntVar(&statusInterval, "interval", 2000, "redraw interval in milliseconds, with --watch")
	statusCmd.Flags().BoolVar(&statusMergeQueue, "merge-queue", false, "show pending merge-queue entries instead of agent sessions")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(c *cobra.Command, args []string) error {
	a, err := openApp("status")
	if err != nil {
		return err
	}
	defer a.Close()

	if !statusWatch {
		return printStatusOnce(c, a)
	}

	ticker := time.NewTicker(time.Duration(statusInterval) * time.Millisecond)
	defer ticker.Stop()
	for {
		fmt.Fprint(c.OutOrStdout(), "\033[2J\033[H")
		if err := printStatusOnce(c, a); err != nil {
			return err
		}
		<-ticker.C
	}
}

// statusPayload is the shape of `overstory status --json`: the agent
// session list plus the supplemented cost-usage dashboard (SPEC_FULL.md
// §4.9) keyed by agent name.
type statusPayload struct {
	Sessions  []*model.AgentSession `json:"sessions"`
	CostUsage []*costUsageEntry     `json:"costUsage"`
}

// costUsageEntry is one agent's row in the cost-usage dashboard: its
// latest periodic TokenSnapshot alongside the cumulative cost recorded
// across every bead it has completed.
type costUsageEntry struct {
	AgentName        string              `json:"agentName"`
	LatestSnapshot   *model.TokenSnapshot `json:"latestSnapshot"`
	EstimatedCostUsd float64             `json:"estimatedCostUsd"`
}

func printStatusOnce(c *cobra.Command, a *app) error {
	if statusMergeQueue {
		return printMergeQueueOnce(c, a)
	}

	sessions, err := fetchSessions(a)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	costUsage, err := fetchCostUsage(a, sessions)
	if err != nil {
		return fmt.Errorf("computing cost usage: %w", err)
	}

	if jsonOutput {
		return printJSON(c, &statusPayload{Sessions: sessions, CostUsage: costUsage})
	}

	if len(sessions) == 0 {
		fmt.Fprintln(c.OutOrStdout(), "no agents")
		return nil
	}

	costByAgent := make(map[string]float64, len(costUsage))
	for _, cu := range costUsage {
		costByAgent[cu.AgentName] = cu.EstimatedCostUsd
	}

	cols := []style.Column{
		{Name: "AGENT", Width: 20},
		{Name: "CAPABILITY", Width: 12},
		{Name: "STATE", Width: 12},
		{Name: "LAST ACTIVITY", Width: 20},
		{Name: "COST", Width: 10},
	}
	if statusVerbose {
		cols = append(cols, style.Column{Name: "WORKTREE", Width: 40})
	}
	t := style.NewTable(cols...)

	for _, sess := range sessions {
		row := []string{
			sess.AgentName, sess.Capability, style.StateBadge(sess.State),
			sess.LastActivity.Format("2006-01-02 15:04:05"), style.CostBadge(costByAgent[sess.AgentName]),
		}
		if statusVerbose {
			row = append(row, sess.WorktreePath)
		}
		t.AddRow(row...)
	}
	fmt.Fprint(c.OutOrStdout(), t.Render())
	return nil
}

// fetchCostUsage builds the cost-usage dashboard for the given sessions:
// each agent's latest live TokenSnapshot (if any) paired with its
// cumulative estimatedCostUsd across every bead recorded for it.
func fetchCostUsage(a *app, sessions []*model.AgentSession) ([]*costUsageEntry, error) {
	if a.metrics == nil || len(sessions) == 0 {
		return nil, nil
	}

	snapshots, err := a.metrics.GetLatestSnapshots()
	if err != nil {
		return nil, fmt.Errorf("listing latest snapshots: %w", err)
	}
	latestByAgent := make(map[string]*model.TokenSnapshot, len(snapshots))
	for _, snap := range snapshots {
		latestByAgent[snap.AgentName] = snap
	}

	out := make([]*costUsageEntry, 0, len(sessions))
	for _, sess := range sessions {
		cumulative, err := a.metrics.CumulativeCostForAgent(sess.AgentName)
		if err != nil {
			return nil, err
		}
		out = append(out, &costUsageEntry{
			AgentName:        sess.AgentName,
			LatestSnapshot:   latestByAgent[sess.AgentName],
			EstimatedCostUsd: cumulative,
		})
	}
	return out, nil
}

func printMergeQueueOnce(c *cobra.Command, a *app) error {
	entries, err := a.mergeQueue.Pending()
	if err != nil {
		return fmt.Errorf("listing merge queue: %w", err)
	}

	if jsonOutput {
		return printJSON(c, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(c.OutOrStdout(), "merge queue is empty")
		return nil
	}

	cols := []style.Column{
		{Name: "ID", Width: 6},
		{Name: "BRANCH", Width: 30},
		{Name: "AGENT", Width: 20},
		{Name: "STATUS", Width: 12},
		{Name: "ENQUEUED", Width: 20},
	}
	t := style.NewTable(cols...)
	for _, e := range entries {
		t.AddRow(fmt.Sprintf("%d", e.ID), e.BranchName, e.AgentName, e.Status, e.EnqueuedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprint(c.OutOrStdout(), t.Render())
	return nil
}

func fetchSessions(a *app) ([]*model.AgentSession, error) {
	if statusAgent != "" {
		sess, err := a.sessions.GetByName(statusAgent)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, nil
		}
		return []*model.AgentSession{sess}, nil
	}
	if statusAll {
		return a.sessions.GetAll()
	}
	return a.sessions.GetActive()
}
