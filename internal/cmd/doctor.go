package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/config"
	"github.com/overstory-run/overstory/internal/doctor"
)

var (
	doctorVerbose  bool
	doctorCategory string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks against the project's control directory",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorVerbose, "verbose", false, "print details for passing checks too")
	doctorCmd.Flags().StringVar(&doctorCategory, "category", "", "report only checks whose name contains this substring")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(c *cobra.Command, args []string) error {
	cfg, err := config.Load(controlDir)
	if err != nil {
		cfg = nil
	}
	ctx := &doctor.Context{ProjectRoot: controlDir, Config: cfg}

	results := make([]*doctor.Result, 0)
	for _, r := range doctor.RunAll(ctx) {
		if doctorCategory != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(doctorCategory)) {
			continue
		}
		results = append(results, r)
	}

	if jsonOutput {
		return printJSON(c, results)
	}

	critical := 0
	for _, r := range results {
		switch r.Status {
		case doctor.StatusCritical:
			critical++
			fmt.Fprintf(c.OutOrStdout(), "✗ %s: %s\n", r.Name, r.Message)
		case doctor.StatusWarning:
			fmt.Fprintf(c.OutOrStdout(), "! %s: %s\n", r.Name, r.Message)
		default:
			if doctorVerbose {
				fmt.Fprintf(c.OutOrStdout(), "✓ %s: %s\n", r.Name, r.Message)
			}
		}
		for _, d := range r.Details {
			fmt.Fprintf(c.OutOrStdout(), "    %s\n", d)
		}
	}

	if critical > 0 {
		return fmt.Errorf("%d check(s) failed", critical)
	}
	return nil
}
