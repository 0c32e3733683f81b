package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
)

// Orchestrator sequences one email through the pipeline. It holds no
// per-run state; distinct runs may execute concurrently on the same
// Orchestrator as long as each uses its own stage client session.
type Orchestrator struct {
	stages   contractx.StageClient
	reviewer contractx.Reviewer
	config   contractx.WorkflowConfig

	graphRunner compose.Runnable[*WorkflowState, *WorkflowState]

	now func() time.Time
}

func New(stages contractx.StageClient, reviewer contractx.Reviewer, cfg contractx.WorkflowConfig) (*Orchestrator, error) {
	if stages == nil {
		return nil, errors.New("stage client is required")
	}
	if reviewer == nil {
		return nil, errors.New("reviewer is required")
	}
	cfg.Normalize()

	o := &Orchestrator{
		stages:   stages,
		reviewer: reviewer,
		config:   cfg,
		now:      time.Now,
	}

	graphRunner, err := o.compileProcessGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// ProcessEmail runs the full pipeline for one email and returns the terminal
// state, either StepCompleted or StepFailed. Stage communication failures
// never fail a run; they degrade to fallback results upstream. A run fails
// only on an unexpected internal error, e.g. the reviewer aborting.
func (o *Orchestrator) ProcessEmail(ctx context.Context, email contractx.EmailInput) *WorkflowState {
	st := NewState(email, o.config, o.now())

	log.Info().
		Str("workflow_id", st.WorkflowID).
		Str("subject", email.Subject).
		Msg("starting email processing workflow")

	if err := email.Validate(); err != nil {
		st.Fail(err.Error(), o.now())
		st.CompletedAt = o.now().UTC()
		return st
	}

	o.run(ctx, st)

	if st.CurrentStep == StepApproved || st.CurrentStep == StepRejected {
		o.complete(st)
	}
	st.CompletedAt = o.now().UTC()

	log.Info().
		Str("workflow_id", st.WorkflowID).
		Str("final_step", string(st.CurrentStep)).
		Msg("workflow finished")

	return st
}

func (o *Orchestrator) run(ctx context.Context, st *WorkflowState) {
	defer func() {
		if r := recover(); r != nil {
			st.Fail(fmt.Sprintf("panic: %v", r), o.now())
		}
	}()

	if _, err := o.graphRunner.Invoke(ctx, st); err != nil {
		log.Error().
			Str("workflow_id", st.WorkflowID).
			Err(err).
			Msg("workflow failed")
		st.Fail(err.Error(), o.now())
	}
}

func (o *Orchestrator) classifyEmail(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
	st.Advance(StepClassifying, nil, o.now())

	classification, err := o.stages.ClassifyEmail(ctx, st.Email)
	if err != nil {
		// The client wrapper absorbs communication failures; this path
		// only fires on an internal fault.
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	st.Classification = &classification
	st.Advance(StepClassified, map[string]any{
		"type":       classification.Type,
		"priority":   classification.Priority,
		"confidence": classification.Confidence,
	}, o.now())

	log.Info().
		Str("workflow_id", st.WorkflowID).
		Str("type", classification.Type).
		Str("priority", classification.Priority).
		Float64("confidence", classification.Confidence).
		Msg("classification complete")

	return st, nil
}

func (o *Orchestrator) planStrategy(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
	st.Advance(StepPlanningStrategy, nil, o.now())

	strategy, err := o.stages.PlanStrategy(ctx, *st.Classification)
	if err != nil {
		return nil, fmt.Errorf("strategy planning failed: %w", err)
	}

	st.Strategy = &strategy
	st.Advance(StepStrategyPlanned, map[string]any{
		"strategy":   strategy.StrategyDecision.ResponseStrategy,
		"approach":   strategy.StrategyDecision.ResponseApproach,
		"confidence": strategy.StrategyDecision.ConfidenceScore,
	}, o.now())

	evt := log.Info().
		Str("workflow_id", st.WorkflowID).
		Str("strategy", strategy.StrategyDecision.ResponseStrategy).
		Str("approach", strategy.StrategyDecision.ResponseApproach)
	if strategy.EscalationReason != "" {
		evt = evt.Str("escalation_reason", strategy.EscalationReason)
	}
	evt.Msg("strategy planning complete")

	return st, nil
}

func (o *Orchestrator) generateResponse(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
	st.Advance(StepGeneratingResponse, nil, o.now())

	response, err := o.stages.GenerateResponse(ctx, st.Email, *st.Classification, *st.Strategy)
	if err != nil {
		return nil, fmt.Errorf("response generation failed: %w", err)
	}

	st.Response = &response
	st.Advance(StepResponseGenerated, map[string]any{
		"variants_generated":  len(response.Variants),
		"recommended_variant": response.RecommendedVariant,
		"overall_confidence":  response.OverallConfidence,
		"requires_review":     response.RequiresHumanReview,
	}, o.now())

	log.Info().
		Str("workflow_id", st.WorkflowID).
		Int("variants", len(response.Variants)).
		Float64("confidence", response.OverallConfidence).
		Bool("requires_review", response.RequiresHumanReview).
		Msg("response generation complete")

	return st, nil
}

func (o *Orchestrator) humanReview(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
	st.Advance(StepHumanReview, nil, o.now())

	decision, err := o.reviewer.RequestReview(ctx, contractx.ReviewRequest{
		Email:          st.Email,
		Classification: *st.Classification,
		Strategy:       *st.Strategy,
		Response:       *st.Response,
	})
	if err != nil {
		return nil, fmt.Errorf("human review failed: %w", err)
	}

	st.Review = &decision
	if decision.Approved {
		st.Advance(StepApproved, map[string]any{
			"selected_variant":  decision.SelectedVariant,
			"has_modifications": decision.Modifications != "",
		}, o.now())
		log.Info().Str("workflow_id", st.WorkflowID).Msg("response approved by reviewer")
	} else {
		st.Advance(StepRejected, map[string]any{
			"feedback": decision.Feedback,
		}, o.now())
		log.Info().Str("workflow_id", st.WorkflowID).Msg("response rejected by reviewer")
	}

	return st, nil
}

func (o *Orchestrator) autoApprove(_ context.Context, st *WorkflowState) (*WorkflowState, error) {
	st.Advance(StepApproved, map[string]any{"auto_approved": true}, o.now())
	log.Info().Str("workflow_id", st.WorkflowID).Msg("review not required, auto-approved")
	return st, nil
}

// complete transitions an approved or rejected run to StepCompleted.
// Rejection is a valid business outcome, not a failure.
func (o *Orchestrator) complete(st *WorkflowState) {
	st.Advance(StepCompleted, nil, o.now())

	if final := st.FinalResponse(); final != nil {
		log.Info().
			Str("workflow_id", st.WorkflowID).
			Str("subject", final.Subject).
			Str("tone", final.Tone).
			Bool("modified_by_human", final.ModifiedByHuman).
			Msg("final response selected")
	} else {
		log.Warn().
			Str("workflow_id", st.WorkflowID).
			Msg("workflow completed with no final response available")
	}
}
