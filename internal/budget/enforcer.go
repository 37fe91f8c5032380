// Package budget enforces per-task and session cost caps. The enforcer
// reacts to cost:recorded events: it warns when a task approaches its
// budget, terminates the task's worker when the budget is exceeded, and
// terminates every worker when the session budget is exceeded.
package budget

import (
	"log"
	"sync"

	"github.com/convoy-run/convoy/internal/bus"
	"github.com/convoy-run/convoy/internal/config"
	"github.com/convoy-run/convoy/internal/state"
	"github.com/convoy-run/convoy/internal/worker"
	"github.com/convoy-run/convoy/pkg/models"
)

// Enforcer watches recorded costs for one session and takes termination
// action when budgets are crossed.
type Enforcer struct {
	mu        sync.Mutex
	db        *state.DB
	bus       *bus.Bus
	pool      worker.Pool
	cfg       config.BudgetConfig
	sessionID string

	// Per-task budgets from the graph source. Zero means fall back to the
	// configured default.
	taskBudgets map[string]float64

	warned          map[string]bool
	exceeded        map[string]bool
	sessionExceeded bool
}

// NewEnforcer creates an Enforcer for one session.
func NewEnforcer(db *state.DB, b *bus.Bus, pool worker.Pool, cfg config.BudgetConfig, sessionID string, defs []models.TaskDefinition) *Enforcer {
	budgets := make(map[string]float64, len(defs))
	for _, d := range defs {
		budgets[d.ID] = d.BudgetUSD
	}
	return &Enforcer{
		db:          db,
		bus:         b,
		pool:        pool,
		cfg:         cfg,
		sessionID:   sessionID,
		taskBudgets: budgets,
		warned:      make(map[string]bool),
		exceeded:    make(map[string]bool),
	}
}

// Subscribe registers the enforcer on cost:recorded.
func (e *Enforcer) Subscribe() {
	e.bus.On(bus.TopicCostRecorded, func(payload any) {
		ev, ok := payload.(bus.CostRecordedEvent)
		if !ok {
			return
		}
		e.Check(ev)
	})
}

// SessionExceeded reports whether the session budget has been crossed.
func (e *Enforcer) SessionExceeded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionExceeded
}

// Check runs the task-level then the session-level budget check for one
// cost event. Both run independently; a single event can trip both. Read
// failures are logged and skip the affected check rather than aborting
// dispatch.
func (e *Enforcer) Check(ev bus.CostRecordedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkTask(ev.TaskID)
	e.checkSession()
}

func (e *Enforcer) checkTask(taskID string) {
	budget := e.taskBudgets[taskID]
	if budget == 0 {
		budget = e.cfg.DefaultTaskBudgetUSD
	}
	if budget <= 0 || e.exceeded[taskID] {
		return
	}

	task, err := e.db.GetTask(e.sessionID, taskID)
	if err != nil {
		log.Printf("[budget] reading task %s: %v", taskID, err)
		return
	}

	percentage := task.AccumulatedCostUSD / budget * 100
	if percentage >= 100 {
		e.exceeded[taskID] = true
		log.Printf("[budget] task %s exceeded budget $%.2f (at %.0f%%)", taskID, budget, percentage)
		e.bus.Emit(bus.TopicBudgetExceededTask, bus.BudgetExceededTaskEvent{
			TaskID:    taskID,
			BudgetUSD: budget,
		})
		e.terminateTaskWorker(taskID)
		return
	}

	if percentage >= e.cfg.WarningThreshold*100 && !e.warned[taskID] {
		e.warned[taskID] = true
		log.Printf("[budget] task %s at %.0f%% of budget $%.2f", taskID, percentage, budget)
		e.bus.Emit(bus.TopicBudgetWarningTask, bus.BudgetWarningTaskEvent{
			TaskID:         taskID,
			PercentageUsed: percentage,
		})
	}
}

func (e *Enforcer) checkSession() {
	if e.sessionExceeded {
		return
	}

	session, err := e.db.GetSession(e.sessionID)
	if err != nil {
		log.Printf("[budget] reading session %s: %v", e.sessionID, err)
		return
	}

	budget := session.BudgetUSD
	if budget == 0 {
		budget = e.cfg.SessionBudgetUSD
	}
	if budget <= 0 {
		return
	}

	total := session.TotalCostUSD
	if e.cfg.IncludePlanningCosts {
		total += session.PlanningCostUSD
	}
	if total <= budget {
		return
	}

	e.sessionExceeded = true
	log.Printf("[budget] session %s exceeded budget $%.2f (total $%.2f)", e.sessionID, budget, total)
	e.bus.Emit(bus.TopicSessionBudgetExceeded, bus.SessionBudgetExceededEvent{
		SessionID: e.sessionID,
		BudgetUSD: budget,
	})
	e.pool.TerminateAll()
}

func (e *Enforcer) terminateTaskWorker(taskID string) {
	for _, w := range e.pool.ActiveWorkers() {
		if w.TaskID == taskID {
			e.pool.TerminateWorker(w.WorkerID, "budget exceeded")
			return
		}
	}
}
