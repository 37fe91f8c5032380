package models

// BillingMode describes how a task's execution is charged.
type BillingMode string

const (
	// BillingSubscription bills against a flat subscription (zero marginal cost).
	BillingSubscription BillingMode = "subscription"
	// BillingAPI bills per token against metered API usage.
	BillingAPI BillingMode = "api"
	// BillingUnavailable indicates no agent could take the task.
	BillingUnavailable BillingMode = "unavailable"
)

// Valid returns true if the billing mode is a known value.
func (b BillingMode) Valid() bool {
	switch b {
	case BillingSubscription, BillingAPI, BillingUnavailable:
		return true
	default:
		return false
	}
}

// ModelPricing contains API pricing per 1M tokens for a model.
type ModelPricing struct {
	// InputPerMillion is the cost per 1M input tokens in USD.
	InputPerMillion float64 `mapstructure:"input_per_million" yaml:"input_per_million"`
	// OutputPerMillion is the cost per 1M output tokens in USD.
	OutputPerMillion float64 `mapstructure:"output_per_million" yaml:"output_per_million"`
}

// Cost returns the API cost in USD for the given token counts.
func (p ModelPricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1_000_000*p.InputPerMillion +
		float64(outputTokens)/1_000_000*p.OutputPerMillion
}

// AgentProfile is the capability record attached to an agent at registration
// time. The routing engine queries these instead of probing adapters at
// runtime.
type AgentProfile struct {
	// ID is the agent identifier (e.g. "claude-code", "codex").
	ID string `mapstructure:"id" yaml:"id"`
	// BillingMode is how dispatches to this agent are charged.
	BillingMode BillingMode `mapstructure:"billing_mode" yaml:"billing_mode"`
	// Model is the underlying model the agent runs, if fixed.
	Model string `mapstructure:"model" yaml:"model"`
	// Pricing is the published API-equivalent per-token rate.
	Pricing ModelPricing `mapstructure:"pricing" yaml:"pricing"`
	// Available indicates whether the agent can currently accept tasks.
	Available bool `mapstructure:"available" yaml:"available"`
}

// RoutingDecision is the immutable outcome of routing one dispatch attempt.
type RoutingDecision struct {
	// TaskID is the task this decision applies to.
	TaskID string `json:"task_id"`
	// Agent is the selected agent ID. Empty when BillingMode is unavailable.
	Agent string `json:"agent,omitempty"`
	// BillingMode is the billing mode of the selected agent.
	BillingMode BillingMode `json:"billing_mode"`
	// Model is the model the selected agent runs, if known.
	Model string `json:"model,omitempty"`
	// Rationale explains why this agent was chosen (e.g. "pinned", "policy").
	Rationale string `json:"rationale"`
	// MonitorInfluenced reports whether a monitor was consulted.
	MonitorInfluenced bool `json:"monitor_influenced"`
	// MonitorRecommendation is attached only when a recommendation exists for
	// the task's type with at least medium confidence. Advisory only; it never
	// overrides the policy-selected agent.
	MonitorRecommendation *Recommendation `json:"monitor_recommendation,omitempty"`
}
