package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
)

func testConfig(endpoint string) contractx.WorkflowConfig {
	cfg := contractx.DefaultWorkflowConfig()
	cfg.AgentEndpoints = contractx.Endpoints{
		contractx.StageClassifier: endpoint,
		contractx.StageStrategy:   endpoint,
		contractx.StageResponse:   endpoint,
	}
	cfg.Timeout = 2 * time.Second
	return cfg
}

func newTestClient(t *testing.T, endpoint string, maxRetries int) (*Client, *[]time.Duration) {
	t.Helper()

	cfg := testConfig(endpoint)
	cfg.MaxRetries = maxRetries

	var sleeps []time.Duration
	client, err := NewClient(cfg, WithSleeper(func(d time.Duration) {
		sleeps = append(sleeps, d)
	}))
	require.NoError(t, err)
	return client, &sleeps
}

// envelopeBody renders the ACP response envelope around a JSON payload.
func envelopeBody(t *testing.T, key string, payload any) string {
	t.Helper()
	content, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		key: []any{
			map[string]any{
				"parts": []any{
					map[string]any{"type": "application/json", "content": string(content)},
				},
			},
		},
	})
	require.NoError(t, err)
	return string(body)
}

func TestSendUnwrapsOutputEnvelope(t *testing.T) {
	t.Parallel()

	var gotEnvelope runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/runs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEnvelope))
		fmt.Fprint(w, envelopeBody(t, "output", map[string]any{"type": "sales", "confidence": 0.9}))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 3)
	result, err := client.Send(context.Background(), contractx.StageClassifier, map[string]any{"email_subject": "hi"})
	require.NoError(t, err)
	require.Equal(t, "sales", result["type"])
	require.Equal(t, 0.9, result["confidence"])

	require.Equal(t, "email_classifier_agent", gotEnvelope.AgentName)
	require.Equal(t, "sync", gotEnvelope.Mode)
	require.Len(t, gotEnvelope.Input, 1)
	require.Equal(t, "user", gotEnvelope.Input[0].Role)
	require.Len(t, gotEnvelope.Input[0].Parts, 1)
	require.Equal(t, "application/json", gotEnvelope.Input[0].Parts[0].Type)
}

func TestSendFallsBackToMessagesEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopeBody(t, "messages", map[string]any{"type": "support"}))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 3)
	result, err := client.Send(context.Background(), contractx.StageClassifier, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "support", result["type"])
}

func TestSendWrapsNonJSONPart(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"output":[{"parts":[{"type":"text/plain","content":"plain answer"}]}]}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 3)
	result, err := client.Send(context.Background(), contractx.StageClassifier, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "plain answer", result["raw_content"])
}

func TestSendReturnsRawBodyWithoutEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"accepted"}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 3)
	result, err := client.Send(context.Background(), contractx.StageClassifier, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "accepted", result["status"])
}

func TestSendUnknownStageIsNotRetried(t *testing.T) {
	t.Parallel()

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	client, sleeps := newTestClient(t, srv.URL, 3)
	_, err := client.Send(context.Background(), "mystery", map[string]any{})
	require.ErrorIs(t, err, contractx.ErrUnknownStage)
	require.Zero(t, requests)
	require.Empty(t, *sleeps)
}

func TestSendRetriesWithExponentialBackoff(t *testing.T) {
	t.Parallel()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, sleeps := newTestClient(t, srv.URL, 4)
	_, err := client.Send(context.Background(), contractx.StageClassifier, map[string]any{})
	require.ErrorIs(t, err, contractx.ErrStageUnavailable)
	require.Contains(t, err.Error(), "status=500")

	require.Equal(t, 4, attempts)
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, *sleeps)
}

func TestSendSucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, envelopeBody(t, "output", map[string]any{"ok": true}))
	}))
	defer srv.Close()

	client, sleeps := newTestClient(t, srv.URL, 3)
	result, err := client.Send(context.Background(), contractx.StageClassifier, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, true, result["ok"])
	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agents", r.URL.Path)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	cfg := contractx.DefaultWorkflowConfig()
	cfg.AgentEndpoints = contractx.Endpoints{
		contractx.StageClassifier: up.URL,
		contractx.StageStrategy:   down.URL,
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)

	results := client.Probe(context.Background())
	require.True(t, results[contractx.StageClassifier])
	require.False(t, results[contractx.StageStrategy])
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	cfg := contractx.DefaultWorkflowConfig()
	cfg.AgentEndpoints = nil
	_, err := NewClient(cfg)
	require.Error(t, err)

	cfg = contractx.DefaultWorkflowConfig()
	cfg.AgentEndpoints = contractx.Endpoints{contractx.StageClassifier: "  "}
	_, err = NewClient(cfg)
	require.Error(t, err)
}
