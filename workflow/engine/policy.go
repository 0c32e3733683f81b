package engine

import contractx "github.com/acpflow/email-orchestrator/workflow/contract"

// requiresHumanReview decides, once the response is generated, whether a
// reviewer must be consulted. Escalation takes precedence over the
// high-confidence bypass; when neither rule fires, the posture is
// conservative and review is required whenever it is globally enabled.
func requiresHumanReview(cfg contractx.WorkflowConfig, response contractx.ResponseResult) bool {
	if !cfg.EnableHumanReview {
		return false
	}
	if response.RequiresHumanReview && cfg.RequireReviewForEscalation {
		return true
	}
	if cfg.AutoApproveHighConfidence && response.OverallConfidence >= cfg.ConfidenceThreshold {
		return false
	}
	return true
}
