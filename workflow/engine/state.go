// Package engine drives an email through the five-step processing pipeline:
// classification, strategy planning, response generation, review, completion.
package engine

import (
	"time"

	"github.com/google/uuid"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
)

// Step is the workflow state-machine position.
type Step string

const (
	StepInitialized        Step = "initialized"
	StepClassifying        Step = "classifying"
	StepClassified         Step = "classified"
	StepPlanningStrategy   Step = "planning_strategy"
	StepStrategyPlanned    Step = "strategy_planned"
	StepGeneratingResponse Step = "generating_response"
	StepResponseGenerated  Step = "response_generated"
	StepHumanReview        Step = "human_review"
	StepApproved           Step = "approved"
	StepRejected           Step = "rejected"
	StepCompleted          Step = "completed"
	StepFailed             Step = "failed"
)

// Terminal reports whether the workflow can make no further transitions.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// HistoryEntry is one immutable event in the append-only step log.
type HistoryEntry struct {
	Step      Step           `json:"step"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// WorkflowState is the aggregate root for one run: created once at run
// start, mutated in place by each stage handler, never shared across
// concurrent runs.
type WorkflowState struct {
	WorkflowID  string `json:"workflow_id"`
	CurrentStep Step   `json:"current_step"`

	Email          contractx.EmailInput            `json:"email_input"`
	Classification *contractx.ClassificationResult `json:"classification_result,omitempty"`
	Strategy       *contractx.StrategyResult       `json:"strategy_result,omitempty"`
	Response       *contractx.ResponseResult       `json:"response_result,omitempty"`
	Review         *contractx.HumanReviewDecision  `json:"human_review,omitempty"`

	Config contractx.WorkflowConfig `json:"config"`

	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at,omitzero"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StepHistory  []HistoryEntry `json:"step_history"`
}

// NewState allocates a fresh run at StepInitialized with a unique id.
func NewState(email contractx.EmailInput, cfg contractx.WorkflowConfig, now time.Time) *WorkflowState {
	st := &WorkflowState{
		WorkflowID:  uuid.NewString(),
		CurrentStep: StepInitialized,
		Email:       email,
		Config:      cfg,
		StartedAt:   now.UTC(),
	}
	st.recordStep(StepInitialized, nil, now)
	return st
}

// Advance moves the run to step and appends a history entry.
func (s *WorkflowState) Advance(step Step, details map[string]any, now time.Time) {
	s.CurrentStep = step
	s.recordStep(step, details, now)
}

// Fail moves the run to StepFailed, preserving every result computed so far
// for diagnostics.
func (s *WorkflowState) Fail(errMsg string, now time.Time) {
	s.CurrentStep = StepFailed
	s.ErrorMessage = errMsg
	s.recordStep(StepFailed, map[string]any{"error": errMsg}, now)
}

func (s *WorkflowState) recordStep(step Step, details map[string]any, now time.Time) {
	s.StepHistory = append(s.StepHistory, HistoryEntry{
		Step:      step,
		Timestamp: now.UTC(),
		Details:   details,
	})
}

// FinalResponse derives the selected response variant: the human-selected
// index when present, otherwise the recommended index, otherwise variant 0.
// A human modification replaces the variant body and flags it. Pure: the
// state is not mutated and repeated calls return identical output. Returns
// nil when no variants exist or the chosen index is out of range.
func (s *WorkflowState) FinalResponse() *contractx.ResponseVariant {
	if s.Response == nil || len(s.Response.Variants) == 0 {
		return nil
	}

	index := 0
	if s.Review != nil && s.Review.SelectedVariant != nil {
		index = *s.Review.SelectedVariant
	} else {
		index = s.Response.RecommendedVariant
	}
	if index < 0 || index >= len(s.Response.Variants) {
		return nil
	}

	variant := s.Response.Variants[index]
	if s.Review != nil && s.Review.Modifications != "" {
		variant.Content = s.Review.Modifications
		variant.ModifiedByHuman = true
	}
	return &variant
}
