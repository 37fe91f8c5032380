package models

import "time"

// CostEntry is one append-only ledger row recording the cost (or savings)
// of a completed or failed dispatch.
type CostEntry struct {
	// ID is the ledger row identifier.
	ID int64 `json:"id"`
	// TaskID is the task this entry belongs to.
	TaskID string `json:"task_id"`
	// SessionID is the owning session.
	SessionID string `json:"session_id"`
	// Agent is the agent that executed the dispatch.
	Agent string `json:"agent"`
	// BillingMode is how the dispatch was charged.
	BillingMode BillingMode `json:"billing_mode"`
	// TokensInput is the number of input tokens consumed.
	TokensInput int64 `json:"tokens_input"`
	// TokensOutput is the number of output tokens produced.
	TokensOutput int64 `json:"tokens_output"`
	// CostUSD is the metered cost. Zero for subscription billing.
	CostUSD float64 `json:"cost_usd"`
	// SavingsUSD is the hypothetical API-equivalent cost avoided by
	// subscription billing. Zero for API billing.
	SavingsUSD float64 `json:"savings_usd"`
	// CreatedAt is when the entry was recorded.
	CreatedAt time.Time `json:"created_at"`
}
