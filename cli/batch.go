package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
	enginex "github.com/acpflow/email-orchestrator/workflow/engine"
	reportx "github.com/acpflow/email-orchestrator/workflow/report"
)

var batchInteractive bool

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the canned sample emails and print a summary table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadWorkflowConfig()
		orchestrator, err := newOrchestrator(cfg, reviewerFor(batchInteractive))
		if err != nil {
			return err
		}

		archive := openStore(cmd)
		summaries := make([]reportx.Summary, 0, len(sampleEmails))

		for _, email := range sampleEmails {
			st := orchestrator.ProcessEmail(cmd.Context(), email)
			if err := archive.Archive(cmd.Context(), st); err != nil {
				log.Warn().Err(err).Str("workflow_id", st.WorkflowID).Msg("failed to archive run")
			}
			summaries = append(summaries, reportx.Summarize(st))
			printFinalResponse(cmd.OutOrStdout(), st)
		}

		printSummaries(cmd.OutOrStdout(), summaries)
		printBatchReport(cmd.OutOrStdout(), reportx.Aggregate(summaries))
		return nil
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchInteractive, "interactive", false, "prompt for review instead of auto-approving")
}

// sampleEmails exercise the three classification paths the demo agents are
// tuned for: a sales inquiry, a support issue, and a complaint.
var sampleEmails = []contractx.EmailInput{
	{
		Subject:     "Enterprise Pricing Inquiry - Urgent",
		Content:     "Hi, I'm the CTO at TechCorp and we need to make a decision by Friday. We're interested in your platform for our team of 500+ developers. Could you send me pricing information and schedule a demo this week? This is time-sensitive as we're evaluating multiple vendors.",
		SenderName:  "John Smith",
		SenderEmail: "john.smith@techcorp.com",
		ReceivedAt:  time.Now().UTC(),
		Metadata:    map[string]any{"company": "TechCorp", "urgency": "high"},
	},
	{
		Subject:     "Cannot access my account",
		Content:     "I've been trying to log into my account for the past hour but keep getting an error message 'Invalid credentials' even though I'm sure my password is correct. I need to access my project files before the deadline tomorrow. Can you help me reset my password or troubleshoot this issue?",
		SenderName:  "Sarah Wilson",
		SenderEmail: "sarah.wilson@example.com",
		ReceivedAt:  time.Now().UTC(),
		Metadata:    map[string]any{"account_type": "premium"},
	},
	{
		Subject:     "Extremely disappointed with service - requesting refund",
		Content:     "This is completely unacceptable. Your software crashed during our important client presentation yesterday and caused us significant embarrassment. We lost a major deal because of this. I want to speak to a manager immediately about compensation for this incident and I'm considering canceling our subscription.",
		SenderName:  "Michael Johnson",
		SenderEmail: "mjohnson@business.com",
		ReceivedAt:  time.Now().UTC(),
		Metadata:    map[string]any{"subscription": "enterprise"},
	},
}

func printSummaries(w io.Writer, summaries []reportx.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKFLOW\tSUBJECT\tFINAL STEP\tTYPE\tSTRATEGY\tREVIEWED\tSECONDS\tSUCCESS")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%.1f\t%t\n",
			shortID(s.WorkflowID), s.EmailSubject, s.FinalStep,
			s.ClassificationType, s.StrategyApplied, s.HumanReviewed,
			s.ProcessingSeconds, s.Success)
	}
	tw.Flush()
}

func printBatchReport(w io.Writer, r reportx.BatchReport) {
	fmt.Fprintf(w, "\nTotal: %d  Succeeded: %d  Success rate: %.1f%%  Avg time: %.1fs  Human reviewed: %d\n",
		r.Total, r.Succeeded, r.SuccessRate*100, r.AvgProcessingSeconds, r.HumanReviewedCount)
	if len(r.ClassificationTypes) > 0 {
		fmt.Fprintf(w, "Classification types: %v\n", r.ClassificationTypes)
	}
	if len(r.StrategiesApplied) > 0 {
		fmt.Fprintf(w, "Strategies applied: %v\n", r.StrategiesApplied)
	}
}

func printFinalResponse(w io.Writer, st *enginex.WorkflowState) {
	final := st.FinalResponse()
	if final == nil {
		fmt.Fprintf(w, "\n[%s] no final response available\n", shortID(st.WorkflowID))
		return
	}

	fmt.Fprintf(w, "\n[%s] FINAL RESPONSE\n", shortID(st.WorkflowID))
	fmt.Fprintf(w, "Subject: %s\n", final.Subject)
	fmt.Fprintf(w, "Tone: %s  Confidence: %.2f", final.Tone, final.ConfidenceScore)
	if final.ModifiedByHuman {
		fmt.Fprint(w, "  (modified by reviewer)")
	}
	fmt.Fprintf(w, "\n\n%s\n", final.Content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
