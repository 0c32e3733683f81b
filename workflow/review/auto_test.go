package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAutoApproverApprovesRecommended(t *testing.T) {
	t.Parallel()

	req := reviewFixture()
	req.Response.RecommendedVariant = 1

	decision, err := NewAutoApprover(false).RequestReview(context.Background(), req)
	require.NoError(t, err)
	require.True(t, decision.Approved)
	require.Equal(t, 1, *decision.SelectedVariant)
	require.Empty(t, decision.Modifications)
	require.Equal(t, "auto-reviewer", decision.Reviewer)
	require.Equal(t, "Auto-approved for unattended run", decision.Feedback)
	require.False(t, decision.ReviewedAt.IsZero())
}

func TestAutoApproverClampsBadRecommendation(t *testing.T) {
	t.Parallel()

	req := reviewFixture()
	req.Response.RecommendedVariant = 9

	decision, err := NewAutoApprover(false).RequestReview(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 0, *decision.SelectedVariant)
}

func TestAutoApproverAddsSignature(t *testing.T) {
	t.Parallel()

	decision, err := NewAutoApprover(true).RequestReview(context.Background(), reviewFixture())
	require.NoError(t, err)
	require.Contains(t, decision.Modifications, "Let's reset your password.")
	require.Contains(t, decision.Modifications, "Best regards,\nCustomer Service Team\nACP Demo Corp")
}

func TestAutoApproverSkipsExistingSignature(t *testing.T) {
	t.Parallel()

	req := reviewFixture()
	req.Response.Variants[0].Content = "All set.\n\nBest regards,\nThe Team"

	decision, err := NewAutoApprover(true).RequestReview(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, decision.Modifications)
}

func TestWithSignature(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", withSignature("Thanks!\n\nSincerely,\nSupport"))
	require.Equal(t, "body\n\n"+closingSignature, withSignature("body\n"))
}
