package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/lifecycle"
)

var (
	slingCapability     string
	slingName           string
	slingParent         string
	slingDepth          int
	slingSpec           string
	slingFiles          string
	slingForceHierarchy bool
)

var slingCmd = &cobra.Command{
	Use:   "sling <beadId>",
	Short: "Spawn a worker agent to pick up a work item",
	Args:  cobra.ExactArgs(1),
	RunE:  runSling,
}

func init() {
	slingCmd.Flags().StringVar(&slingCapability, "capability", "", "capability to spawn (required)")
	slingCmd.Flags().StringVar(&slingName, "name", "", "agent name (required)")
	slingCmd.Flags().StringVar(&slingParent, "parent", "", "parent agent name, for hierarchy enforcement")
	slingCmd.Flags().IntVar(&slingDepth, "depth", 0, "spawn depth under the parent")
	slingCmd.Flags().StringVar(&slingSpec, "spec", "", "path to a spec file to hand the agent")
	slingCmd.Flags().StringVar(&slingFiles, "files", "", "comma-separated list of files relevant to the work")
	slingCmd.Flags().BoolVar(&slingForceHierarchy, "force-hierarchy", false, "allow a non-lead capability to spawn with no parent")
	rootCmd.AddCommand(slingCmd)
}

func runSling(c *cobra.Command, args []string) error {
	a, err := openApp("sling")
	if err != nil {
		return err
	}
	defer a.Close()

	var files []string
	if slingFiles != "" {
		files = strings.Split(slingFiles, ",")
	}

	req := lifecycle.SlingRequest{
		BeadID:         args[0],
		Capability:     slingCapability,
		Name:           slingName,
		ParentAgent:    slingParent,
		Depth:          slingDepth,
		SpecPath:       slingSpec,
		Files:          files,
		ForceHierarchy: slingForceHierarchy,
	}

	sess, err := a.engine.Sling(req)
	if err != nil {
		return fmt.Errorf("sling %s: %w", args[0], err)
	}

	if jsonOutput {
		return printJSON(c, sess)
	}
	fmt.Fprintf(c.OutOrStdout(), "slung %s (%s) into %s, worktree %s\n", sess.AgentName, sess.Capability, sess.TmuxSession, sess.WorktreePath)
	return nil
}
