package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
)

var _ contractx.StageClient = (*Client)(nil)

// ClassifyEmail calls the classifier stage. Transport failures and
// agent-declared errors are absorbed into a conservative fallback
// classification; the returned error is always nil.
func (c *Client) ClassifyEmail(ctx context.Context, email contractx.EmailInput) (contractx.ClassificationResult, error) {
	payload := map[string]any{
		"email_content": classifierEmailText(email),
		"email_subject": email.Subject,
		"sender_name":   email.SenderName,
		"sender_email":  email.SenderEmail,
	}

	resp, err := c.Send(ctx, contractx.StageClassifier, payload)
	if err == nil {
		err = stageError(resp)
	}
	if err != nil {
		log.Error().Err(err).Msg("email classification failed, using fallback")
		return classificationFallback(err), nil
	}

	return contractx.ClassificationResult{
		Type:                  stringField(resp, "type", contractx.CategoryUnknown),
		Priority:              stringField(resp, "priority", contractx.PriorityMedium),
		Confidence:            contractx.ClampConfidence(floatField(resp, "confidence", 0.5)),
		Reasoning:             stringField(resp, "reasoning", "No reasoning provided"),
		SuggestedResponseTone: stringField(resp, "suggested_response_tone", "professional"),
		Framework:             stringField(resp, "framework", "CrewAI"),
		Agent:                 stringField(resp, "agent", "email_classifier"),
	}, nil
}

// PlanStrategy calls the strategy stage with the full classification record.
// Same degradation policy as ClassifyEmail.
func (c *Client) PlanStrategy(ctx context.Context, classification contractx.ClassificationResult) (contractx.StrategyResult, error) {
	resp, err := c.Send(ctx, contractx.StageStrategy, classification)
	if err == nil {
		err = stageError(resp)
	}
	if err != nil {
		log.Error().Err(err).Msg("strategy planning failed, using fallback")
		return strategyFallback(err), nil
	}

	var result contractx.StrategyResult
	if decodeErr := decodeInto(resp, &result); decodeErr != nil {
		log.Error().Err(decodeErr).Msg("strategy response malformed, using fallback")
		return strategyFallback(decodeErr), nil
	}

	result.StrategyDecision.ConfidenceScore = contractx.ClampConfidence(result.StrategyDecision.ConfidenceScore)
	if result.Framework == "" {
		result.Framework = "LangGraph"
	}
	if result.Agent == "" {
		result.Agent = "strategy_planner"
	}
	return result, nil
}

// GenerateResponse calls the response-generation stage with the email plus
// the upstream classification and strategy context. Same degradation policy
// as the other wrappers; additionally normalizes the recommended-variant
// index so it is always valid for non-empty variant lists.
func (c *Client) GenerateResponse(
	ctx context.Context,
	email contractx.EmailInput,
	classification contractx.ClassificationResult,
	strategy contractx.StrategyResult,
) (contractx.ResponseResult, error) {
	payload := map[string]any{
		"email_context": map[string]any{
			"subject":        email.Subject,
			"content":        email.Content,
			"sender_name":    email.SenderName,
			"sender_email":   email.SenderEmail,
			"classification": classification,
		},
		"strategy_context": strategy,
	}

	resp, err := c.Send(ctx, contractx.StageResponse, payload)
	if err == nil {
		err = stageError(resp)
	}
	if err != nil {
		log.Error().Err(err).Msg("response generation failed, using fallback")
		return responseFallback(email, err), nil
	}

	var result contractx.ResponseResult
	if decodeErr := decodeInto(resp, &result); decodeErr != nil {
		log.Error().Err(decodeErr).Msg("response payload malformed, using fallback")
		return responseFallback(email, decodeErr), nil
	}

	if _, present := resp["overall_confidence"]; !present {
		result.OverallConfidence = 0.5
	}
	if _, present := resp["requires_human_review"]; !present {
		result.RequiresHumanReview = true
	}
	result.OverallConfidence = contractx.ClampConfidence(result.OverallConfidence)
	for i := range result.Variants {
		result.Variants[i].ConfidenceScore = contractx.ClampConfidence(result.Variants[i].ConfidenceScore)
	}
	if len(result.Variants) > 0 && (result.RecommendedVariant < 0 || result.RecommendedVariant >= len(result.Variants)) {
		log.Warn().
			Int("recommended_variant", result.RecommendedVariant).
			Int("variants", len(result.Variants)).
			Msg("recommended variant out of range, using first variant")
		result.RecommendedVariant = 0
	}
	if result.Framework == "" {
		result.Framework = "OpenAI"
	}
	if result.Agent == "" {
		result.Agent = "response_generator"
	}
	return result, nil
}

// classifierEmailText renders the email the way the classifier expects it:
// optional From line, Subject line, blank line, body.
func classifierEmailText(email contractx.EmailInput) string {
	var b strings.Builder
	if email.SenderName != "" {
		fmt.Fprintf(&b, "From: %s\n", email.SenderName)
	}
	fmt.Fprintf(&b, "Subject: %s\n\n%s", email.Subject, email.Content)
	return b.String()
}

// stageError surfaces an agent-declared failure: an "error" key in an
// otherwise successful (HTTP 200) response.
func stageError(resp map[string]any) error {
	v, ok := resp["error"]
	if !ok {
		return nil
	}
	return fmt.Errorf("agent reported error: %v", v)
}

func decodeInto(resp map[string]any, out any) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func stringField(resp map[string]any, key, fallback string) string {
	if v, ok := resp[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatField(resp map[string]any, key string, fallback float64) float64 {
	switch v := resp[key].(type) {
	case float64:
		return v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fallback
		}
		return f
	default:
		return fallback
	}
}

func classificationFallback(cause error) contractx.ClassificationResult {
	return contractx.ClassificationResult{
		Type:                  contractx.CategoryUnknown,
		Priority:              contractx.PriorityMedium,
		Confidence:            0.3,
		Reasoning:             fmt.Sprintf("Classification failed: %v", cause),
		SuggestedResponseTone: "professional",
		Framework:             "Error",
		Agent:                 "email_classifier",
	}
}

func strategyFallback(cause error) contractx.StrategyResult {
	return contractx.StrategyResult{
		StrategyDecision: contractx.StrategyDecision{
			ResponseStrategy:      contractx.StrategyDelayed,
			ResponseApproach:      "standard",
			ConfidenceScore:       0.3,
			Reasoning:             fmt.Sprintf("Strategy planning failed: %v", cause),
			NextSteps:             []string{"manual_review"},
			EstimatedResponseTime: "within_day",
		},
		Framework: "Error",
		Agent:     "strategy_planner",
	}
}

func responseFallback(email contractx.EmailInput, cause error) contractx.ResponseResult {
	return contractx.ResponseResult{
		Variants: []contractx.ResponseVariant{
			{
				Subject:            "Re: " + email.Subject,
				Content:            "Thank you for your email. We have received your message and will respond as soon as possible.",
				Tone:               "professional",
				ConfidenceScore:    0.3,
				Reasoning:          fmt.Sprintf("Response generation failed: %v", cause),
				EstimatedLength:    "brief",
				KeyPointsAddressed: []string{"acknowledgment"},
			},
		},
		RecommendedVariant:  0,
		OverallConfidence:   0.3,
		RequiresHumanReview: true,
		ReviewReasons:       []string{fmt.Sprintf("Generation error: %v", cause)},
		Framework:           "Error",
		Agent:               "response_generator",
	}
}
