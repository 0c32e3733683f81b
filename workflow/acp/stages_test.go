package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
)

func stageServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
}

func rawEnvelope(t *testing.T, contentJSON string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"output": []any{
			map[string]any{
				"parts": []any{
					map[string]any{"type": "application/json", "content": contentJSON},
				},
			},
		},
	})
	require.NoError(t, err)
	return string(body)
}

var testEmail = contractx.EmailInput{
	Subject:     "Enterprise Pricing Inquiry",
	Content:     "We need a quote for 500 employees and a demo.",
	SenderName:  "John Smith",
	SenderEmail: "john.smith@techcorp.com",
}

func TestClassifyEmailMapsFields(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{
		"type": "sales",
		"priority": "high",
		"confidence": 0.9,
		"reasoning": "pricing request",
		"suggested_response_tone": "professional",
		"framework": "CrewAI",
		"agent": "email_classifier"
	}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.ClassifyEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.Equal(t, contractx.CategorySales, result.Type)
	require.Equal(t, contractx.PriorityHigh, result.Priority)
	require.Equal(t, 0.9, result.Confidence)
	require.Equal(t, "pricing request", result.Reasoning)
}

func TestClassifyEmailDefaultsMissingFields(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{"type": "support"}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.ClassifyEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.Equal(t, contractx.CategorySupport, result.Type)
	require.Equal(t, contractx.PriorityMedium, result.Priority)
	require.Equal(t, 0.5, result.Confidence)
	require.Equal(t, "No reasoning provided", result.Reasoning)
	require.Equal(t, "professional", result.SuggestedResponseTone)
}

func TestClassifyEmailClampsConfidence(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{"type": "spam", "confidence": 1.7}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.ClassifyEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Confidence)
}

func TestClassifyEmailFallbackOnAgentError(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{"error": "model overloaded"}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.ClassifyEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.Equal(t, contractx.CategoryUnknown, result.Type)
	require.Equal(t, contractx.PriorityMedium, result.Priority)
	require.Equal(t, 0.3, result.Confidence)
	require.Contains(t, result.Reasoning, "model overloaded")
	require.Equal(t, "Error", result.Framework)
}

func TestClassifyEmailFallbackOnTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 2)
	result, err := client.ClassifyEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.Equal(t, contractx.CategoryUnknown, result.Type)
	require.Equal(t, 0.3, result.Confidence)
}

func TestClassifierEmailTextIncludesSender(t *testing.T) {
	t.Parallel()

	text := classifierEmailText(testEmail)
	require.Equal(t, "From: John Smith\nSubject: Enterprise Pricing Inquiry\n\nWe need a quote for 500 employees and a demo.", text)

	noSender := testEmail
	noSender.SenderName = ""
	require.Equal(t, "Subject: Enterprise Pricing Inquiry\n\nWe need a quote for 500 employees and a demo.", classifierEmailText(noSender))
}

func TestPlanStrategyMapsDecision(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{
		"strategy_decision": {
			"response_strategy": "immediate",
			"response_approach": "professional",
			"confidence_score": 0.85,
			"reasoning": "high-value sales lead",
			"next_steps": ["send_pricing", "book_demo"],
			"estimated_response_time": "within_hour"
		},
		"response_template": "Dear {name}",
		"escalation_reason": "",
		"framework": "LangGraph",
		"agent": "strategy_planner"
	}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.PlanStrategy(context.Background(), contractx.ClassificationResult{Type: "sales"})
	require.NoError(t, err)
	require.Equal(t, contractx.StrategyImmediate, result.StrategyDecision.ResponseStrategy)
	require.Equal(t, "professional", result.StrategyDecision.ResponseApproach)
	require.Equal(t, 0.85, result.StrategyDecision.ConfidenceScore)
	require.Equal(t, []string{"send_pricing", "book_demo"}, result.StrategyDecision.NextSteps)
	require.Equal(t, "Dear {name}", result.ResponseTemplate)
}

// The strategy mapping must not depend on the order upstream JSON fields
// arrive in.
func TestPlanStrategyFieldOrderIndependence(t *testing.T) {
	t.Parallel()

	ordered := `{"strategy_decision":{"response_strategy":"escalate","confidence_score":0.7},"framework":"LangGraph","agent":"strategy_planner"}`
	shuffled := `{"agent":"strategy_planner","framework":"LangGraph","strategy_decision":{"confidence_score":0.7,"response_strategy":"escalate"}}`

	var results []contractx.StrategyResult
	for _, body := range []string{ordered, shuffled} {
		srv := stageServer(t, rawEnvelope(t, body))
		client, _ := newTestClient(t, srv.URL, 1)
		result, err := client.PlanStrategy(context.Background(), contractx.ClassificationResult{Type: "support"})
		srv.Close()
		require.NoError(t, err)
		results = append(results, result)
	}
	require.Equal(t, results[0], results[1])
}

func TestPlanStrategyFallback(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{"error": "planner crashed"}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.PlanStrategy(context.Background(), contractx.ClassificationResult{Type: "sales"})
	require.NoError(t, err)
	require.Equal(t, contractx.StrategyDelayed, result.StrategyDecision.ResponseStrategy)
	require.Equal(t, "standard", result.StrategyDecision.ResponseApproach)
	require.Equal(t, 0.3, result.StrategyDecision.ConfidenceScore)
	require.Equal(t, []string{"manual_review"}, result.StrategyDecision.NextSteps)
	require.Equal(t, "within_day", result.StrategyDecision.EstimatedResponseTime)
}

func TestGenerateResponseMapsVariants(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{
		"variants": [
			{"subject": "Re: Pricing", "content": "Happy to help.", "tone": "professional", "confidence_score": 0.85},
			{"subject": "Re: Pricing", "content": "Thanks for reaching out!", "tone": "friendly", "confidence_score": 0.8}
		],
		"recommended_variant": 1,
		"overall_confidence": 0.85,
		"requires_human_review": false,
		"review_reasons": []
	}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.GenerateResponse(context.Background(), testEmail, contractx.ClassificationResult{}, contractx.StrategyResult{})
	require.NoError(t, err)
	require.Len(t, result.Variants, 2)
	require.Equal(t, 1, result.RecommendedVariant)
	require.Equal(t, 0.85, result.OverallConfidence)
	require.False(t, result.RequiresHumanReview)
}

func TestGenerateResponseDefaultsAndNormalizes(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{
		"variants": [{"subject": "Re: hi", "content": "ok", "confidence_score": -0.4}],
		"recommended_variant": 7
	}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.GenerateResponse(context.Background(), testEmail, contractx.ClassificationResult{}, contractx.StrategyResult{})
	require.NoError(t, err)
	// missing fields default conservatively
	require.Equal(t, 0.5, result.OverallConfidence)
	require.True(t, result.RequiresHumanReview)
	// out-of-range recommendation is normalized, negative confidence clamped
	require.Equal(t, 0, result.RecommendedVariant)
	require.Equal(t, 0.0, result.Variants[0].ConfidenceScore)
}

func TestGenerateResponseFallback(t *testing.T) {
	t.Parallel()

	srv := stageServer(t, rawEnvelope(t, `{"error": "generator down"}`))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	result, err := client.GenerateResponse(context.Background(), testEmail, contractx.ClassificationResult{}, contractx.StrategyResult{})
	require.NoError(t, err)
	require.Len(t, result.Variants, 1)
	require.Equal(t, "Re: Enterprise Pricing Inquiry", result.Variants[0].Subject)
	require.Equal(t, 0, result.RecommendedVariant)
	require.Equal(t, 0.3, result.OverallConfidence)
	require.True(t, result.RequiresHumanReview)
	require.Contains(t, result.ReviewReasons[0], "generator down")
}

func TestGenerateResponsePayloadShape(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope runRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		require.NoError(t, json.Unmarshal([]byte(envelope.Input[0].Parts[0].Content), &payload))
		fmt.Fprint(w, rawEnvelope(t, `{"variants": [], "recommended_variant": 0}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 1)
	_, err := client.GenerateResponse(context.Background(), testEmail,
		contractx.ClassificationResult{Type: "sales"},
		contractx.StrategyResult{StrategyDecision: contractx.StrategyDecision{ResponseStrategy: "immediate"}},
	)
	require.NoError(t, err)

	emailContext, ok := payload["email_context"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, testEmail.Subject, emailContext["subject"])
	require.Equal(t, testEmail.Content, emailContext["content"])
	require.NotNil(t, emailContext["classification"])

	strategyContext, ok := payload["strategy_context"].(map[string]any)
	require.True(t, ok)
	require.NotNil(t, strategyContext["strategy_decision"])
}
