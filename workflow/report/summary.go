// Package report derives per-run summaries from terminal workflow states and
// aggregate statistics across a batch of runs.
package report

import (
	"sort"

	enginex "github.com/acpflow/email-orchestrator/workflow/engine"
)

// Summary is the condensed outcome of one run. Success reflects "the
// workflow ran to completion", independent of the reviewer's verdict.
type Summary struct {
	WorkflowID         string       `json:"workflow_id"`
	EmailSubject       string       `json:"email_subject"`
	FinalStep          enginex.Step `json:"final_step"`
	ProcessingSeconds  float64      `json:"processing_time_seconds"`
	ClassificationType string       `json:"classification_type,omitempty"`
	StrategyApplied    string       `json:"strategy_applied,omitempty"`
	HumanReviewed      bool         `json:"human_reviewed"`
	Success            bool         `json:"success"`
	ErrorMessage       string       `json:"error_message,omitempty"`
}

// Summarize condenses a completed (or failed) state.
func Summarize(st *enginex.WorkflowState) Summary {
	s := Summary{
		WorkflowID:   st.WorkflowID,
		EmailSubject: st.Email.Subject,
		FinalStep:    st.CurrentStep,
		Success:      st.CurrentStep == enginex.StepCompleted,
		ErrorMessage: st.ErrorMessage,
	}

	if !st.StartedAt.IsZero() && !st.CompletedAt.IsZero() {
		s.ProcessingSeconds = st.CompletedAt.Sub(st.StartedAt).Seconds()
	}
	if st.Classification != nil {
		s.ClassificationType = st.Classification.Type
	}
	if st.Strategy != nil {
		s.StrategyApplied = st.Strategy.StrategyDecision.ResponseStrategy
	}
	s.HumanReviewed = st.Review != nil

	return s
}

// BatchReport aggregates a set of run summaries.
type BatchReport struct {
	Total                int      `json:"total"`
	Succeeded            int      `json:"succeeded"`
	SuccessRate          float64  `json:"success_rate"`
	AvgProcessingSeconds float64  `json:"avg_processing_seconds"`
	ClassificationTypes  []string `json:"classification_types,omitempty"`
	StrategiesApplied    []string `json:"strategies_applied,omitempty"`
	HumanReviewedCount   int      `json:"human_reviewed_count"`
}

// Aggregate computes batch statistics. An empty batch yields zero values.
func Aggregate(summaries []Summary) BatchReport {
	r := BatchReport{Total: len(summaries)}
	if r.Total == 0 {
		return r
	}

	types := map[string]struct{}{}
	strategies := map[string]struct{}{}
	totalSeconds := 0.0

	for _, s := range summaries {
		if s.Success {
			r.Succeeded++
		}
		if s.HumanReviewed {
			r.HumanReviewedCount++
		}
		totalSeconds += s.ProcessingSeconds
		if s.ClassificationType != "" {
			types[s.ClassificationType] = struct{}{}
		}
		if s.StrategyApplied != "" {
			strategies[s.StrategyApplied] = struct{}{}
		}
	}

	r.SuccessRate = float64(r.Succeeded) / float64(r.Total)
	r.AvgProcessingSeconds = totalSeconds / float64(r.Total)
	r.ClassificationTypes = sortedKeys(types)
	r.StrategiesApplied = sortedKeys(strategies)

	return r
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
