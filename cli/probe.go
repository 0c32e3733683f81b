package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	acpx "github.com/acpflow/email-orchestrator/workflow/acp"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check connectivity to every configured agent endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadWorkflowConfig()
		client, err := acpx.NewClient(cfg)
		if err != nil {
			return err
		}

		allConnected := true
		for stage, connected := range client.Probe(cmd.Context()) {
			status := "connected"
			if !connected {
				status = "disconnected"
				allConnected = false
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s (%s)\n", stage, status, cfg.AgentEndpoints[stage])
		}

		if !allConnected {
			fmt.Fprintln(cmd.OutOrStdout(), "\nwarning: not all agents are connected, some workflows may fall back")
		}
		return nil
	},
}
