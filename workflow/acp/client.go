// Package acp implements the client side of the ACP request/response
// protocol spoken by the three email-processing agents: a JSON envelope
// POSTed to <endpoint>/runs, answered with an output array of message parts.
package acp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
)

const maxResponseSizeBytes = 4 << 20

// agentFunctionNames maps orchestrator stage names to the function names the
// remote agents register under.
var agentFunctionNames = map[string]string{
	contractx.StageClassifier: "email_classifier_agent",
	contractx.StageStrategy:   "strategy_planning_agent",
	contractx.StageResponse:   "response_generation_agent",
}

// Client talks to the configured agent endpoints with bounded retries and
// exponential backoff. One Client may be shared by sequential stage calls of
// a single run; concurrent runs should each construct their own.
type Client struct {
	endpoints  map[string]string
	httpClient *http.Client
	maxRetries int
	sleep      func(time.Duration)
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper replaces the inter-attempt sleep. Tests use this to observe the
// backoff schedule without waiting it out.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func NewClient(cfg contractx.WorkflowConfig, opts ...Option) (*Client, error) {
	if len(cfg.AgentEndpoints) == 0 {
		return nil, errors.New("agent endpoints are required")
	}

	endpoints := make(map[string]string, len(cfg.AgentEndpoints))
	for name, endpoint := range cfg.AgentEndpoints {
		trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if trimmed == "" {
			return nil, fmt.Errorf("endpoint for stage %q is empty", name)
		}
		endpoints[name] = trimmed
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}

	c := &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		sleep:      time.Sleep,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

type messagePart struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type message struct {
	Role  string        `json:"role"`
	Parts []messagePart `json:"parts"`
}

type runRequest struct {
	AgentName string    `json:"agent_name"`
	Input     []message `json:"input"`
	Mode      string    `json:"mode"`
}

// Send posts payload to the named stage and returns the unwrapped JSON
// result. An unknown stage name is a configuration error and is not retried.
// Transient failures are retried up to the configured maximum with 2^attempt
// second gaps; exhaustion yields an error wrapping both ErrStageUnavailable
// and the last underlying cause.
func (c *Client) Send(ctx context.Context, stage string, payload any) (map[string]any, error) {
	endpoint, ok := c.endpoints[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownStage, stage)
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stage payload: %w", err)
	}

	envelope := runRequest{
		AgentName: functionNameFor(stage),
		Input: []message{
			{
				Role: "user",
				Parts: []messagePart{
					{Content: string(content), Type: "application/json"},
				},
			},
		},
		Mode: "sync",
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal acp envelope: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		log.Debug().
			Str("stage", stage).
			Int("attempt", attempt+1).
			Int("max_attempts", c.maxRetries).
			Msg("calling agent")

		result, err := c.doRun(ctx, endpoint, body)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if attempt < c.maxRetries-1 {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			log.Warn().
				Str("stage", stage).
				Dur("backoff", wait).
				Err(err).
				Msg("agent request failed, retrying")
			c.sleep(wait)
		}
	}

	return nil, fmt.Errorf("%w: stage=%s after %d attempts: %w", contractx.ErrStageUnavailable, stage, c.maxRetries, lastErr)
}

func (c *Client) doRun(ctx context.Context, endpoint string, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/runs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute run request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read run response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent http status=%d", resp.StatusCode)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode run response: %w", err)
	}

	return unwrapEnvelope(decoded), nil
}

// unwrapEnvelope extracts the first part of the first output message,
// falling back to the legacy "messages" key and finally the raw decoded
// body.
func unwrapEnvelope(decoded map[string]any) map[string]any {
	for _, key := range []string{"output", "messages"} {
		part, ok := firstPart(decoded, key)
		if !ok {
			continue
		}
		content, _ := part["content"].(string)
		if partType, _ := part["type"].(string); partType == "application/json" {
			var parsed any
			if err := json.Unmarshal([]byte(content), &parsed); err != nil {
				return map[string]any{"raw_content": content}
			}
			if obj, ok := parsed.(map[string]any); ok {
				return obj
			}
			return map[string]any{"raw_content": parsed}
		}
		return map[string]any{"raw_content": content}
	}
	return decoded
}

func firstPart(decoded map[string]any, key string) (map[string]any, bool) {
	entries, ok := decoded[key].([]any)
	if !ok || len(entries) == 0 {
		return nil, false
	}
	msg, ok := entries[0].(map[string]any)
	if !ok {
		return nil, false
	}
	parts, ok := msg["parts"].([]any)
	if !ok || len(parts) == 0 {
		return nil, false
	}
	part, ok := parts[0].(map[string]any)
	return part, ok
}

// Probe checks connectivity to every configured endpoint via GET /agents.
// Any 200 response counts as connected.
func (c *Client) Probe(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(c.endpoints))
	for stage, endpoint := range c.endpoints {
		results[stage] = c.probeOne(ctx, endpoint)
	}
	return results
}

func (c *Client) probeOne(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/agents", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSizeBytes))
	return resp.StatusCode == http.StatusOK
}

func functionNameFor(stage string) string {
	if name, ok := agentFunctionNames[stage]; ok {
		return name
	}
	return stage
}
