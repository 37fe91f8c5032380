// Package worker defines the pool contract the executor dispatches through
// and the budget enforcer terminates through. Real agent adapters implement
// Pool outside this core; a simulated pool is provided for dry runs and tests.
package worker

import "github.com/convoy-run/convoy/pkg/models"

// ActiveWorker is one running worker and the task it is executing.
type ActiveWorker struct {
	WorkerID string
	TaskID   string
}

// Dispatch describes one unit of work handed to the pool.
type Dispatch struct {
	Task     models.TaskDefinition
	Decision models.RoutingDecision
}

// Pool runs tasks on worker agents. Implementations report completion and
// failure back through the callbacks passed to Start; the pool owns true
// parallelism, the executor only caps how many dispatches are in flight.
type Pool interface {
	// Start hands a task to a worker and returns the worker ID.
	Start(d Dispatch) (string, error)
	// Results returns the channel finished-worker reports arrive on.
	Results() <-chan Result
	// ActiveWorkers returns a snapshot of running workers.
	ActiveWorkers() []ActiveWorker
	// TerminateWorker stops one worker with a reason. Unknown IDs are a no-op.
	TerminateWorker(workerID, reason string)
	// TerminateAll stops every active worker.
	TerminateAll()
}
