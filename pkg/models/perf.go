package models

import "time"

// PerformanceAggregate holds rolling outcome telemetry for one
// (agent, task type) pair. Counters are monotonically incremented and are
// only ever reduced by an explicit rebuild from the raw telemetry or a prune.
type PerformanceAggregate struct {
	// Agent is the agent these counters describe.
	Agent string `json:"agent"`
	// TaskType is the task category these counters describe.
	TaskType TaskType `json:"task_type"`
	// TotalTasks is the number of recorded task outcomes.
	TotalTasks int64 `json:"total_tasks"`
	// SuccessfulTasks is the number of successful outcomes.
	SuccessfulTasks int64 `json:"successful_tasks"`
	// FailedTasks is the number of failed outcomes.
	FailedTasks int64 `json:"failed_tasks"`
	// TotalInputTokens is the summed input token usage.
	TotalInputTokens int64 `json:"total_input_tokens"`
	// TotalOutputTokens is the summed output token usage.
	TotalOutputTokens int64 `json:"total_output_tokens"`
	// TotalDurationMs is the summed wall-clock duration in milliseconds.
	TotalDurationMs int64 `json:"total_duration_ms"`
	// TotalCost is the summed recorded cost in USD.
	TotalCost float64 `json:"total_cost"`
	// TotalRetries is the summed retry count.
	TotalRetries int64 `json:"total_retries"`
	// LastUpdated is when a counter was last incremented.
	LastUpdated time.Time `json:"last_updated"`
}

// SuccessRate returns the success percentage (0-100) for this aggregate.
func (a PerformanceAggregate) SuccessRate() float64 {
	if a.TotalTasks == 0 {
		return 0
	}
	return float64(a.SuccessfulTasks) / float64(a.TotalTasks) * 100
}

// Confidence expresses how much weight a recommendation carries.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// AtLeast returns true if c is the same or a stronger tier than other.
func (c Confidence) AtLeast(other Confidence) bool {
	rank := func(v Confidence) int {
		switch v {
		case ConfidenceHigh:
			return 2
		case ConfidenceMedium:
			return 1
		default:
			return 0
		}
	}
	return rank(c) >= rank(other)
}

// Recommendation is a statistically derived routing suggestion. It is
// recomputed on demand from PerformanceAggregate rows and never persisted
// as canonical state.
type Recommendation struct {
	// TaskType is the task category the recommendation applies to.
	TaskType TaskType `json:"task_type"`
	// CurrentAgent is the policy-designated agent for the type.
	CurrentAgent string `json:"current_agent"`
	// RecommendedAgent is the better-performing alternative.
	RecommendedAgent string `json:"recommended_agent"`
	// ImprovementPercentage is the success-rate delta in percentage points
	// (recommended minus current), not a relative ratio.
	ImprovementPercentage float64 `json:"improvement_percentage"`
	// Confidence is derived from the smaller of the two sample sizes.
	Confidence Confidence `json:"confidence"`
	// SampleSize is the smaller of the two agents' sample counts.
	SampleSize int64 `json:"sample_size"`
}
