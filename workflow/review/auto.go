package review

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
)

const closingSignature = "Best regards,\nCustomer Service Team\nACP Demo Corp"

// AutoApprover approves every response without operator input, for
// unattended batch runs. With AddSignature set it appends a canned closing
// signature to variants that lack one, exercising the modification path.
type AutoApprover struct {
	AddSignature bool

	now func() time.Time
}

var _ contractx.Reviewer = (*AutoApprover)(nil)

func NewAutoApprover(addSignature bool) *AutoApprover {
	return &AutoApprover{
		AddSignature: addSignature,
		now:          time.Now,
	}
}

func (a *AutoApprover) RequestReview(_ context.Context, req contractx.ReviewRequest) (contractx.HumanReviewDecision, error) {
	selected := req.Response.RecommendedVariant
	if selected < 0 || selected >= len(req.Response.Variants) {
		selected = 0
	}

	modifications := ""
	if a.AddSignature && selected < len(req.Response.Variants) {
		modifications = withSignature(req.Response.Variants[selected].Content)
	}

	now := a.now
	if now == nil {
		now = time.Now
	}

	log.Info().
		Int("selected_variant", selected).
		Bool("modified", modifications != "").
		Msg("auto-approving response")

	return contractx.HumanReviewDecision{
		Approved:        true,
		SelectedVariant: &selected,
		Modifications:   modifications,
		Feedback:        "Auto-approved for unattended run",
		Reviewer:        "auto-reviewer",
		ReviewedAt:      now().UTC(),
	}, nil
}

// withSignature appends the canned closing unless the body already carries
// one.
func withSignature(content string) string {
	if strings.Contains(content, "Best regards") || strings.Contains(content, "Sincerely") {
		return ""
	}
	return strings.TrimRight(content, "\n") + "\n\n" + closingSignature
}
