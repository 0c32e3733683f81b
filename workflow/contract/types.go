package contract

import (
	"fmt"
	"strings"
	"time"
)

// Stage names understood by the ACP client. Each maps to a configured
// endpoint and a remote agent function name.
const (
	StageClassifier = "classifier"
	StageStrategy   = "strategy"
	StageResponse   = "response"
)

// Email categories produced by the classification stage.
const (
	CategorySales    = "sales"
	CategorySupport  = "support"
	CategorySpam     = "spam"
	CategoryPersonal = "personal"
	CategoryUrgent   = "urgent"
	CategoryUnknown  = "unknown"
)

// Priority levels.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Strategy kinds produced by the strategy stage.
const (
	StrategyImmediate = "immediate"
	StrategyDelayed   = "delayed"
	StrategyEscalate  = "escalate"
	StrategyAutoReply = "auto_reply"
)

// Endpoints maps stage names to agent base URLs. URLs contain colons
// (scheme, port), so the env format "name:url,name:url" must split each
// pair at the first colon only; the stock envconfig map parser splits on
// every colon and rejects any URL value.
type Endpoints map[string]string

// Decode implements envconfig.Decoder.
func (e *Endpoints) Decode(value string) error {
	out := Endpoints{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, endpoint, ok := strings.Cut(pair, ":")
		if !ok {
			return fmt.Errorf("endpoint entry %q is not in name:url form", pair)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(endpoint)
	}
	*e = out
	return nil
}

// EmailInput is the email under processing. Immutable once created; one
// workflow run owns exactly one EmailInput.
type EmailInput struct {
	Subject     string         `json:"subject"`
	Content     string         `json:"content"`
	SenderName  string         `json:"sender_name,omitempty"`
	SenderEmail string         `json:"sender_email,omitempty"`
	Attachments []string       `json:"attachments,omitempty"`
	ReceivedAt  time.Time      `json:"received_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate rejects emails with nothing to process. Sender fields are
// optional; the agents handle anonymous mail.
func (e EmailInput) Validate() error {
	if strings.TrimSpace(e.Subject) == "" && strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("%w: subject and content are both empty", ErrInvalidEmail)
	}
	return nil
}

// ClassificationResult is produced exactly once per run by the classifier
// stage and is read-only afterward.
type ClassificationResult struct {
	Type                  string  `json:"type"`
	Priority              string  `json:"priority"`
	Confidence            float64 `json:"confidence"`
	Reasoning             string  `json:"reasoning"`
	SuggestedResponseTone string  `json:"suggested_response_tone"`
	Framework             string  `json:"framework"`
	Agent                 string  `json:"agent"`
}

// StrategyDecision is the structured core of a strategy stage result.
type StrategyDecision struct {
	ResponseStrategy      string   `json:"response_strategy"`
	ResponseApproach      string   `json:"response_approach"`
	ConfidenceScore       float64  `json:"confidence_score"`
	Reasoning             string   `json:"reasoning"`
	NextSteps             []string `json:"next_steps,omitempty"`
	EstimatedResponseTime string   `json:"estimated_response_time,omitempty"`
}

// StrategyResult is produced after classification and consumed by the
// response stage and the reviewer.
type StrategyResult struct {
	StrategyDecision StrategyDecision `json:"strategy_decision"`
	ResponseTemplate string           `json:"response_template,omitempty"`
	EscalationReason string           `json:"escalation_reason,omitempty"`
	PriorityOverride *bool            `json:"priority_override,omitempty"`
	Framework        string           `json:"framework"`
	Agent            string           `json:"agent"`
}

// ResponseVariant is one candidate reply among several generated for an
// email.
type ResponseVariant struct {
	Subject            string   `json:"subject"`
	Content            string   `json:"content"`
	Tone               string   `json:"tone"`
	ConfidenceScore    float64  `json:"confidence_score"`
	Reasoning          string   `json:"reasoning,omitempty"`
	EstimatedLength    string   `json:"estimated_length,omitempty"`
	KeyPointsAddressed []string `json:"key_points_addressed,omitempty"`
	ModifiedByHuman    bool     `json:"modified_by_human,omitempty"`
}

// ResponseResult carries the generated variants. RecommendedVariant is a
// valid index into Variants whenever Variants is non-empty; downstream code
// ignores it when Variants is empty.
type ResponseResult struct {
	Variants            []ResponseVariant `json:"variants"`
	RecommendedVariant  int               `json:"recommended_variant"`
	OverallConfidence   float64           `json:"overall_confidence"`
	RequiresHumanReview bool              `json:"requires_human_review"`
	ReviewReasons       []string          `json:"review_reasons,omitempty"`
	Framework           string            `json:"framework"`
	Agent               string            `json:"agent"`
}

// HumanReviewDecision is the reviewer's verdict. SelectedVariant, when set,
// overrides the recommended variant; Modifications, when non-empty, replaces
// the chosen variant's body verbatim.
type HumanReviewDecision struct {
	Approved        bool      `json:"approved"`
	SelectedVariant *int      `json:"selected_variant,omitempty"`
	Modifications   string    `json:"modifications,omitempty"`
	Feedback        string    `json:"feedback,omitempty"`
	Reviewer        string    `json:"reviewer"`
	ReviewedAt      time.Time `json:"reviewed_at"`
}

// ReviewRequest bundles everything a reviewer needs to decide.
type ReviewRequest struct {
	Email          EmailInput
	Classification ClassificationResult
	Strategy       StrategyResult
	Response       ResponseResult
}

// WorkflowConfig controls one workflow run. A snapshot is stored on the run
// state at start; later mutation of the source config does not affect
// in-flight runs.
type WorkflowConfig struct {
	EnableHumanReview          bool    `json:"enable_human_review" envconfig:"ENABLE_HUMAN_REVIEW" split_words:"true" default:"true"`
	AutoApproveHighConfidence  bool    `json:"auto_approve_high_confidence" envconfig:"AUTO_APPROVE_HIGH_CONFIDENCE" split_words:"true" default:"false"`
	ConfidenceThreshold        float64 `json:"confidence_threshold" envconfig:"CONFIDENCE_THRESHOLD" split_words:"true" default:"0.8"`
	RequireReviewForEscalation bool    `json:"require_review_for_escalation" envconfig:"REQUIRE_REVIEW_FOR_ESCALATION" split_words:"true" default:"true"`

	AgentEndpoints Endpoints `json:"agent_endpoints" envconfig:"AGENT_ENDPOINTS" split_words:"true" default:"classifier:http://localhost:8003,strategy:http://localhost:8002,response:http://localhost:8004"`

	Timeout    time.Duration `json:"timeout" envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	MaxRetries int           `json:"max_retries" envconfig:"MAX_RETRIES" split_words:"true" default:"3"`
}

// DefaultWorkflowConfig mirrors the envconfig defaults for programmatic use.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		EnableHumanReview:          true,
		AutoApproveHighConfidence:  false,
		ConfidenceThreshold:        0.8,
		RequireReviewForEscalation: true,
		AgentEndpoints: Endpoints{
			StageClassifier: "http://localhost:8003",
			StageStrategy:   "http://localhost:8002",
			StageResponse:   "http://localhost:8004",
		},
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}

// Normalize clamps out-of-range knobs instead of failing; a misconfigured
// threshold should degrade to a conservative posture, not abort runs.
func (c *WorkflowConfig) Normalize() {
	if c.ConfidenceThreshold < 0 {
		c.ConfidenceThreshold = 0
	}
	if c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 3
	}
	for name, endpoint := range c.AgentEndpoints {
		c.AgentEndpoints[name] = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
}

// ClampConfidence bounds a confidence score to [0,1]. Upstream agents are not
// trusted to keep their scores in range.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
