package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
	reportx "github.com/acpflow/email-orchestrator/workflow/report"
)

var singleAuto bool

var singleCmd = &cobra.Command{
	Use:   "single <subject> <content> [sender_name] [sender_email]",
	Short: "Process one email through the workflow",
	Args:  cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := contractx.EmailInput{
			Subject:    args[0],
			Content:    args[1],
			ReceivedAt: time.Now().UTC(),
		}
		if len(args) > 2 {
			email.SenderName = args[2]
		}
		if len(args) > 3 {
			email.SenderEmail = args[3]
		}

		cfg := loadWorkflowConfig()
		orchestrator, err := newOrchestrator(cfg, reviewerFor(!singleAuto))
		if err != nil {
			return err
		}

		st := orchestrator.ProcessEmail(cmd.Context(), email)

		if err := openStore(cmd).Archive(cmd.Context(), st); err != nil {
			return fmt.Errorf("archive run: %w", err)
		}

		printSummaries(cmd.OutOrStdout(), []reportx.Summary{reportx.Summarize(st)})
		printFinalResponse(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	singleCmd.Flags().BoolVar(&singleAuto, "auto", false, "auto-approve instead of prompting for review")
}
