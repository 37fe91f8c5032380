package models

import "time"

// SessionStatus represents the lifecycle state of an execution session.
type SessionStatus string

const (
	// SessionStatusActive indicates the session is executing tasks.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted indicates all tasks reached a terminal state.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusStopped indicates execution was stopped by budget enforcement.
	SessionStatusStopped SessionStatus = "stopped"
	// SessionStatusCancelled indicates execution was cancelled by the caller.
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusStopped, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// Session represents one execution of a task graph.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// Name is the session name from the graph source.
	Name string `json:"name"`
	// GraphPath is the path of the graph source this session executes.
	GraphPath string `json:"graph_path,omitempty"`
	// Status is the current lifecycle state.
	Status SessionStatus `json:"status"`
	// BudgetUSD is the session-level cost cap. Zero means no cap.
	BudgetUSD float64 `json:"budget_usd,omitempty"`
	// TotalCostUSD is the running total of all recorded task costs.
	TotalCostUSD float64 `json:"total_cost_usd"`
	// PlanningCostUSD is the cost attributed to planning-phase work.
	PlanningCostUSD float64 `json:"planning_cost_usd"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
}
