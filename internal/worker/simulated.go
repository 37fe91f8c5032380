package worker

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result is reported by a pool when a worker stops, whether it finished,
// failed, or was terminated.
type Result struct {
	WorkerID     string
	TaskID       string
	Failed       bool
	Terminated   bool
	Reason       string
	ErrorMessage string
	ErrorCode    string
	InputTokens  int64
	OutputTokens int64
	DurationMs   int64
	Retries      int64
}

// Outcome scripts what a simulated worker reports for one task.
type Outcome struct {
	Fail         bool
	ErrorMessage string
	ErrorCode    string
	InputTokens  int64
	OutputTokens int64
	DurationMs   int64
	Retries      int64
}

// SimulatedPool is an in-process Pool that completes tasks after a short
// delay with scripted outcomes. Used by dry runs, `run --simulate`, and
// tests; it never talks to a real agent.
type SimulatedPool struct {
	mu       sync.Mutex
	active   map[string]ActiveWorker
	outcomes map[string]Outcome
	fallback Outcome
	latency  time.Duration
	results  chan Result
}

// NewSimulatedPool creates a pool whose workers report the fallback outcome
// after latency unless ScriptOutcome overrides it per task.
func NewSimulatedPool(latency time.Duration, fallback Outcome) *SimulatedPool {
	return &SimulatedPool{
		active:   make(map[string]ActiveWorker),
		outcomes: make(map[string]Outcome),
		fallback: fallback,
		latency:  latency,
		results:  make(chan Result, 64),
	}
}

// ScriptOutcome sets the outcome a simulated worker reports for one task.
func (p *SimulatedPool) ScriptOutcome(taskID string, o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes[taskID] = o
}

// Results returns the channel finished-worker reports are delivered on.
func (p *SimulatedPool) Results() <-chan Result {
	return p.results
}

// Start registers a simulated worker for the dispatch and schedules its
// scripted outcome.
func (p *SimulatedPool) Start(d Dispatch) (string, error) {
	workerID := uuid.New().String()[:8]

	p.mu.Lock()
	p.active[workerID] = ActiveWorker{WorkerID: workerID, TaskID: d.Task.ID}
	outcome, ok := p.outcomes[d.Task.ID]
	if !ok {
		outcome = p.fallback
	}
	p.mu.Unlock()

	go func() {
		time.Sleep(p.latency)

		p.mu.Lock()
		_, stillActive := p.active[workerID]
		delete(p.active, workerID)
		p.mu.Unlock()
		if !stillActive {
			return
		}

		p.results <- Result{
			WorkerID:     workerID,
			TaskID:       d.Task.ID,
			Failed:       outcome.Fail,
			ErrorMessage: outcome.ErrorMessage,
			ErrorCode:    outcome.ErrorCode,
			InputTokens:  outcome.InputTokens,
			OutputTokens: outcome.OutputTokens,
			DurationMs:   outcome.DurationMs,
			Retries:      outcome.Retries,
		}
	}()

	return workerID, nil
}

// ActiveWorkers returns a snapshot of running simulated workers.
func (p *SimulatedPool) ActiveWorkers() []ActiveWorker {
	p.mu.Lock()
	defer p.mu.Unlock()
	workers := make([]ActiveWorker, 0, len(p.active))
	for _, w := range p.active {
		workers = append(workers, w)
	}
	return workers
}

// TerminateWorker stops one simulated worker and reports a terminated
// result for its task.
func (p *SimulatedPool) TerminateWorker(workerID, reason string) {
	p.mu.Lock()
	w, ok := p.active[workerID]
	delete(p.active, workerID)
	p.mu.Unlock()
	if !ok {
		return
	}

	log.Printf("[worker] terminating worker %s (task %s): %s", workerID, w.TaskID, reason)
	// Deliver off the caller's goroutine: terminate is commanded from bus
	// handlers running on the goroutine that drains Results, so a blocking
	// send here would deadlock once the buffer fills.
	go func() {
		p.results <- Result{
			WorkerID:   workerID,
			TaskID:     w.TaskID,
			Failed:     true,
			Terminated: true,
			Reason:     reason,
		}
	}()
}

// TerminateAll stops every active simulated worker.
func (p *SimulatedPool) TerminateAll() {
	p.mu.Lock()
	workers := make([]ActiveWorker, 0, len(p.active))
	for _, w := range p.active {
		workers = append(workers, w)
	}
	p.active = make(map[string]ActiveWorker)
	p.mu.Unlock()

	go func() {
		for _, w := range workers {
			p.results <- Result{
				WorkerID:   w.WorkerID,
				TaskID:     w.TaskID,
				Failed:     true,
				Terminated: true,
				Reason:     "terminate-all",
			}
		}
	}()
}
