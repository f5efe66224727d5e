package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/overstory-run/overstory/internal/expertise"
	"github.com/overstory-run/overstory/internal/hookintake"
)

var (
	logAgent          string
	logStdin          bool
	logToolName       string
	logTranscriptPath string
)

var logCmd = &cobra.Command{
	Use:    "log <event>",
	Short:  "Hook callback: record a tool-start, tool-end, or session-end event",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   runLog,
}

func init() {
	logCmd.Flags().StringVar(&logAgent, "agent", "", "agent name (required)")
	logCmd.Flags().BoolVar(&logStdin, "stdin", false, "read the full hook payload as JSON from stdin")
	logCmd.Flags().StringVar(&logToolName, "tool-name", "", "tool name, when not passing --stdin")
	logCmd.Flags().StringVar(&logTranscriptPath, "transcript", "", "transcript path, when not passing --stdin")
	rootCmd.AddCommand(logCmd)
}

func runLog(c *cobra.Command, args []string) error {
	a, err := openApp("hook")
	if err != nil {
		return err
	}
	defer a.Close()

	var payload *hookintake.Payload
	if logStdin {
		payload, err = hookintake.ParsePayload(os.Stdin)
		if err != nil {
			return fmt.Errorf("parsing hook payload: %w", err)
		}
	} else {
		var toolInput map[string]any
		payload = &hookintake.Payload{
			ToolName:       logToolName,
			ToolInput:      toolInput,
			TranscriptPath: logTranscriptPath,
		}
	}
	payload.HookEvent = args[0]
	if logAgent != "" {
		payload.AgentName = logAgent
	}
	if payload.AgentName == "" {
		return fmt.Errorf("--agent is required")
	}

	recorder := hookintake.NewAutoRecorder(a.events, expertise.New(), a.mail)
	intake := hookintake.New(a.root, a.sessions, a.events, a.metrics, recorder)
	intake.Handle(payload)

	if jsonOutput {
		enc := json.NewEncoder(c.OutOrStdout())
		return enc.Encode(map[string]any{"ok": true})
	}
	return nil
}
