package contract

import "context"

// StageClient is the uniform capability behind the three remote agent
// stages. Implementations absorb transport failures into per-stage fallback
// results; a non-nil error therefore signals an unexpected internal fault,
// not an agent being down.
type StageClient interface {
	ClassifyEmail(ctx context.Context, email EmailInput) (ClassificationResult, error)
	PlanStrategy(ctx context.Context, classification ClassificationResult) (StrategyResult, error)
	GenerateResponse(ctx context.Context, email EmailInput, classification ClassificationResult, strategy StrategyResult) (ResponseResult, error)
}

// Reviewer obtains a human (or simulated) decision on a generated response.
// The workflow engine is agnostic to which implementation is installed.
type Reviewer interface {
	RequestReview(ctx context.Context, req ReviewRequest) (HumanReviewDecision, error)
}
