// Package review provides the two reviewer implementations consumed by the
// workflow engine: an interactive terminal reviewer and an auto-approving
// stub for unattended runs.
package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
)

const displayContentLimit = 200

// InteractiveReviewer collects an approval decision from a terminal
// operator. Input and output streams are injected so the prompt loop is
// testable with scripted input.
type InteractiveReviewer struct {
	in  *bufio.Scanner
	out io.Writer
	now func() time.Time
}

var _ contractx.Reviewer = (*InteractiveReviewer)(nil)

func NewInteractive(in io.Reader, out io.Writer) *InteractiveReviewer {
	return &InteractiveReviewer{
		in:  bufio.NewScanner(in),
		out: out,
		now: time.Now,
	}
}

// RequestReview presents the email, the analysis rationale, and all response
// variants, then walks the operator through approve/reject, variant
// selection, feedback, and an optional replacement body. A "q" at the
// approval prompt cancels the review with approved=false.
func (r *InteractiveReviewer) RequestReview(ctx context.Context, req contractx.ReviewRequest) (contractx.HumanReviewDecision, error) {
	r.displayEmail(req.Email)
	r.displayAnalysis(req.Classification, req.Strategy)
	r.displayVariants(req.Response)

	approved, quit, err := r.promptApproval()
	if err != nil {
		return contractx.HumanReviewDecision{}, err
	}
	if quit {
		return contractx.HumanReviewDecision{
			Approved:   false,
			Feedback:   "Review process cancelled by user",
			Reviewer:   "human-reviewer",
			ReviewedAt: r.now().UTC(),
		}, nil
	}

	selected := req.Response.RecommendedVariant
	if approved && len(req.Response.Variants) > 1 {
		selected, err = r.promptVariant(len(req.Response.Variants), selected)
		if err != nil {
			return contractx.HumanReviewDecision{}, err
		}
	}

	feedback, err := r.promptLine("Any feedback or comments (optional): ")
	if err != nil {
		return contractx.HumanReviewDecision{}, err
	}
	if feedback == "" {
		if approved {
			feedback = "Approved by human reviewer"
		} else {
			feedback = "Rejected by human reviewer"
		}
	}

	modifications := ""
	if approved {
		modifications, err = r.promptModifications()
		if err != nil {
			return contractx.HumanReviewDecision{}, err
		}
	}

	return contractx.HumanReviewDecision{
		Approved:        approved,
		SelectedVariant: &selected,
		Modifications:   modifications,
		Feedback:        feedback,
		Reviewer:        "human-reviewer",
		ReviewedAt:      r.now().UTC(),
	}, nil
}

func (r *InteractiveReviewer) displayEmail(email contractx.EmailInput) {
	fmt.Fprintln(r.out, "ORIGINAL EMAIL")
	fmt.Fprintln(r.out, "--------------")
	from := email.SenderName
	if from == "" {
		from = email.SenderEmail
	}
	if from == "" {
		from = "Unknown"
	}
	fmt.Fprintf(r.out, "From: %s\n", from)
	fmt.Fprintf(r.out, "Subject: %s\n", email.Subject)
	if !email.ReceivedAt.IsZero() {
		fmt.Fprintf(r.out, "Received: %s\n", email.ReceivedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(r.out, "\n%s\n\n", email.Content)
}

func (r *InteractiveReviewer) displayAnalysis(classification contractx.ClassificationResult, strategy contractx.StrategyResult) {
	fmt.Fprintln(r.out, "ANALYSIS RESULTS")
	fmt.Fprintln(r.out, "----------------")
	fmt.Fprintf(r.out, "Classification: %s (%s priority)\n", classification.Type, classification.Priority)
	fmt.Fprintf(r.out, "Confidence: %.2f\n", classification.Confidence)
	fmt.Fprintf(r.out, "Reasoning: %s\n", classification.Reasoning)
	fmt.Fprintf(r.out, "Suggested tone: %s\n\n", classification.SuggestedResponseTone)

	decision := strategy.StrategyDecision
	fmt.Fprintf(r.out, "Strategy: %s\n", decision.ResponseStrategy)
	fmt.Fprintf(r.out, "Approach: %s\n", decision.ResponseApproach)
	fmt.Fprintf(r.out, "Confidence: %.2f\n", decision.ConfidenceScore)
	if decision.EstimatedResponseTime != "" {
		fmt.Fprintf(r.out, "Timing: %s\n", decision.EstimatedResponseTime)
	}
	if strategy.EscalationReason != "" {
		fmt.Fprintf(r.out, "Escalation: %s\n", strategy.EscalationReason)
	}
	fmt.Fprintln(r.out)
}

func (r *InteractiveReviewer) displayVariants(response contractx.ResponseResult) {
	fmt.Fprintln(r.out, "GENERATED RESPONSE OPTIONS")
	fmt.Fprintln(r.out, "--------------------------")

	if len(response.Variants) == 0 {
		fmt.Fprintln(r.out, "No response variants generated")
		return
	}

	for i, variant := range response.Variants {
		fmt.Fprintf(r.out, "Option %d:\n", i+1)
		fmt.Fprintf(r.out, "  Subject: %s\n", variant.Subject)
		fmt.Fprintf(r.out, "  Tone: %s\n", variant.Tone)
		fmt.Fprintf(r.out, "  Confidence: %.2f\n", variant.ConfidenceScore)
		fmt.Fprintf(r.out, "  Content:\n    %s\n\n", truncate(variant.Content, displayContentLimit))
	}

	fmt.Fprintf(r.out, "Recommended: Option %d\n", response.RecommendedVariant+1)
	if response.RequiresHumanReview {
		fmt.Fprintln(r.out, "Human review required:")
		for _, reason := range response.ReviewReasons {
			fmt.Fprintf(r.out, "  - %s\n", reason)
		}
	}
	fmt.Fprintln(r.out)
}

// promptApproval loops until the operator answers y, n, or q.
func (r *InteractiveReviewer) promptApproval() (approved, quit bool, err error) {
	for {
		answer, err := r.promptLine("Do you approve this response? (y/n/q for quit): ")
		if err != nil {
			return false, false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, false, nil
		case "n", "no":
			return false, false, nil
		case "q", "quit":
			fmt.Fprintln(r.out, "Exiting review process...")
			return false, true, nil
		default:
			fmt.Fprintln(r.out, "Please enter 'y' for yes, 'n' for no, or 'q' to quit")
		}
	}
}

// promptVariant loops until a valid 1-based option number or a blank line
// (keep the recommendation).
func (r *InteractiveReviewer) promptVariant(count, recommended int) (int, error) {
	for {
		answer, err := r.promptLine(fmt.Sprintf("Which variant do you want to use? (1-%d, or press Enter for recommended): ", count))
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return recommended, nil
		}
		n, convErr := strconv.Atoi(answer)
		if convErr != nil {
			fmt.Fprintln(r.out, "Please enter a valid number or press Enter for recommended")
			continue
		}
		if n < 1 || n > count {
			fmt.Fprintf(r.out, "Please enter a number between 1 and %d\n", count)
			continue
		}
		return n - 1, nil
	}
}

// promptModifications optionally reads a replacement body, terminated by a
// blank line following at least one content line.
func (r *InteractiveReviewer) promptModifications() (string, error) {
	answer, err := r.promptLine("Do you want to modify the response content? (y/n): ")
	if err != nil {
		return "", err
	}
	if a := strings.ToLower(answer); a != "y" && a != "yes" {
		return "", nil
	}

	fmt.Fprintln(r.out, "Enter your modified response (finish with an empty line):")
	var lines []string
	for {
		line, err := r.readLine()
		if err != nil {
			return "", err
		}
		if line == "" && len(lines) > 0 {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (r *InteractiveReviewer) promptLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	line, err := r.readLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (r *InteractiveReviewer) readLine() (string, error) {
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", contractx.ErrReviewAborted, err)
		}
		return "", fmt.Errorf("%w: input closed", contractx.ErrReviewAborted)
	}
	return r.in.Text(), nil
}

// truncate cuts s at the last rune boundary at or before limit bytes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "..."
}
