package bus

import "github.com/convoy-run/convoy/pkg/models"

// Topic identifies one event stream on the bus.
type Topic string

// The closed set of topics the core emits.
const (
	TopicGraphLoaded           Topic = "graph:loaded"
	TopicGraphComplete         Topic = "graph:complete"
	TopicGraphCancelled        Topic = "graph:cancelled"
	TopicTaskStarted           Topic = "task:started"
	TopicTaskComplete          Topic = "task:complete"
	TopicTaskFailed            Topic = "task:failed"
	TopicTaskCancelled         Topic = "task:cancelled"
	TopicTaskRouted            Topic = "task:routed"
	TopicCostRecorded          Topic = "cost:recorded"
	TopicBudgetWarningTask     Topic = "budget:warning:task"
	TopicBudgetExceededTask    Topic = "budget:exceeded:task"
	TopicSessionBudgetExceeded Topic = "session:budget:exceeded"
	TopicMonitorMetricsRecorded Topic = "monitor:metrics_recorded"
)

// GraphLoadedEvent is published after a graph is loaded and validated.
type GraphLoadedEvent struct {
	SessionID  string
	TaskCount  int
	ReadyCount int
}

// TaskStartedEvent is published when a task is dispatched to a worker.
type TaskStartedEvent struct {
	TaskID   string
	WorkerID string
	Agent    string
}

// TaskResult carries the outcome of a completed dispatch.
type TaskResult struct {
	InputTokens  int64
	OutputTokens int64
	DurationMs   int64
	CostUSD      float64
	Agent        string
	Retries      int64
}

// TotalTokens returns the combined token count for the result.
func (r TaskResult) TotalTokens() int64 {
	return r.InputTokens + r.OutputTokens
}

// TaskCompleteEvent is published when a task finishes successfully.
type TaskCompleteEvent struct {
	TaskID string
	Result TaskResult
}

// TaskError describes why a task failed.
type TaskError struct {
	Message string
	Code    string
}

// TaskFailedEvent is published when a task fails. Result carries any
// tokens consumed before the failure.
type TaskFailedEvent struct {
	TaskID string
	Error  TaskError
	Result TaskResult
}

// TaskCancelledEvent is published when a task is cancelled.
type TaskCancelledEvent struct {
	TaskID string
	Reason string
}

// TaskRoutedEvent is published once per dispatch attempt with the routing
// decision that was made.
type TaskRoutedEvent struct {
	TaskID   string
	Decision models.RoutingDecision
}

// GraphCompleteEvent is published once no task is pending or ready.
type GraphCompleteEvent struct {
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	TotalCostUSD   float64
}

// GraphCancelledEvent is published after cancelAll takes effect.
type GraphCancelledEvent struct {
	CancelledTasks int
}

// CostRecordedEvent is published after a cost entry is written and the
// session and task totals have been incremented.
type CostRecordedEvent struct {
	TaskID      string
	SessionID   string
	CostUSD     float64
	SavingsUSD  float64
	BillingMode models.BillingMode
}

// BudgetWarningTaskEvent is published when a task crosses its budget
// warning threshold.
type BudgetWarningTaskEvent struct {
	TaskID         string
	PercentageUsed float64
}

// BudgetExceededTaskEvent is published when a task exceeds its budget.
type BudgetExceededTaskEvent struct {
	TaskID    string
	BudgetUSD float64
}

// SessionBudgetExceededEvent is published when the session budget is
// exceeded; the executor treats it as a stop-dispatching signal.
type SessionBudgetExceededEvent struct {
	SessionID string
	BudgetUSD float64
}

// MonitorMetricsRecordedEvent is published after the monitor records a
// task outcome.
type MonitorMetricsRecordedEvent struct {
	TaskID   string
	Agent    string
	TaskType models.TaskType
}
