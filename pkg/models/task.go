package models

import "time"

// TaskStatus represents the current state of a task within a session.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting on dependencies.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates all dependencies are complete.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning indicates the task has been dispatched to a worker.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusComplete indicates the task finished successfully.
	TaskStatusComplete TaskStatus = "complete"
	// TaskStatusFailed indicates the task failed or was cascade-failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before completion.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusComplete, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status never transitions again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusComplete, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskType is a coarse category used to bucket performance telemetry
// and drive routing policy lookups.
type TaskType string

const (
	TaskTypeCoding      TaskType = "coding"
	TaskTypeTesting     TaskType = "testing"
	TaskTypeDocs        TaskType = "docs"
	TaskTypeDebugging   TaskType = "debugging"
	TaskTypeRefactoring TaskType = "refactoring"
)

// Valid returns true if the task type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeCoding, TaskTypeTesting, TaskTypeDocs, TaskTypeDebugging, TaskTypeRefactoring:
		return true
	default:
		return false
	}
}

// TaskTypes lists all known task types.
func TaskTypes() []TaskType {
	return []TaskType{TaskTypeCoding, TaskTypeTesting, TaskTypeDocs, TaskTypeDebugging, TaskTypeRefactoring}
}

// TaskDefinition is the static description of a task loaded from a graph file.
type TaskDefinition struct {
	// ID is the unique identifier for this task within its graph.
	ID string `yaml:"-" json:"id"`
	// Name is the short human-readable name of the task.
	Name string `yaml:"name" json:"name"`
	// Prompt is the instruction passed to the worker agent.
	Prompt string `yaml:"prompt" json:"prompt"`
	// Type is the task category (coding, testing, docs, debugging, refactoring).
	Type TaskType `yaml:"type" json:"type"`
	// DependsOn lists task IDs that must complete before this task runs.
	DependsOn []string `yaml:"depends_on" json:"depends_on,omitempty"`
	// BudgetUSD is an optional per-task cost cap. Zero means no explicit cap.
	BudgetUSD float64 `yaml:"budget_usd" json:"budget_usd,omitempty"`
	// Agent optionally pins this task to a specific agent ID.
	Agent string `yaml:"agent" json:"agent,omitempty"`
	// Order is the zero-based declaration position in the graph source.
	// Ties among simultaneously-ready tasks are broken by this.
	Order int `yaml:"-" json:"-"`
}

// Task is the runtime state of one task within an execution session.
type Task struct {
	// Def is the static definition loaded from the graph source.
	Def TaskDefinition `json:"def"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// AssignedAgent is the agent the task was routed to, once dispatched.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// BillingMode records how the dispatch is billed.
	BillingMode BillingMode `json:"billing_mode,omitempty"`
	// AccumulatedCostUSD is the total recorded cost for this task.
	AccumulatedCostUSD float64 `json:"accumulated_cost_usd"`
	// Error holds the failure message when Status is failed.
	Error string `json:"error,omitempty"`
	// StartedAt is when the task was dispatched, if it was.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it did.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
