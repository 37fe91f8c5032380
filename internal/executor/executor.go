// Package executor drives task graph execution: it loads and validates
// graph sources, creates sessions, and runs the dispatch loop that feeds
// ready tasks through the router to the worker pool under a concurrency cap.
package executor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convoy-run/convoy/internal/budget"
	"github.com/convoy-run/convoy/internal/bus"
	"github.com/convoy-run/convoy/internal/config"
	"github.com/convoy-run/convoy/internal/costs"
	"github.com/convoy-run/convoy/internal/graph"
	"github.com/convoy-run/convoy/internal/monitor"
	"github.com/convoy-run/convoy/internal/router"
	"github.com/convoy-run/convoy/internal/state"
	"github.com/convoy-run/convoy/internal/worker"
	"github.com/convoy-run/convoy/pkg/models"
)

// ErrSessionUnknown indicates the executor has no loaded session with the
// given ID.
var ErrSessionUnknown = fmt.Errorf("unknown session")

// Summary is the final accounting of one execution run.
type Summary struct {
	SessionID      string
	TotalTasks     int
	Completed      int
	Failed         int
	Cancelled      int
	TotalCostUSD   float64
	SavingsUSD     float64
	BudgetExceeded bool
	Interrupted    bool
}

// AllFailed reports whether every task that ran failed and none completed.
func (s Summary) AllFailed() bool {
	return s.Completed == 0 && s.Failed > 0
}

// session is the in-memory execution state for one loaded graph.
type session struct {
	mu       sync.Mutex
	id       string
	bus      *bus.Bus
	graph    *graph.Graph
	pool     worker.Pool
	tracker  *costs.Tracker
	enforcer *budget.Enforcer

	tasks   map[string]*models.Task
	workers map[string]string // taskID -> workerID
	running int

	stopDispatch bool
	cancelled    bool
}

// Executor loads graphs into sessions and executes them. One Executor can
// hold several independent sessions; each gets its own bus, pool, tracker,
// and enforcer.
type Executor struct {
	mu       sync.Mutex
	db       *state.DB
	cfg      *config.Config
	router   *router.Router
	newPool  func() worker.Pool
	sessions map[string]*session
}

// New creates an Executor. newPool is called once per loaded session. The
// router's recommendation source is wired here, once per process, so
// concurrent session loads never swap it.
func New(db *state.DB, cfg *config.Config, r *router.Router, newPool func() worker.Pool) *Executor {
	r.SetMonitor(monitor.New(db, bus.New(), cfg.Monitor, r.PreferredAgent), cfg.Monitor.Enabled)
	return &Executor{
		db:       db,
		cfg:      cfg,
		router:   r,
		newPool:  newPool,
		sessions: make(map[string]*session),
	}
}

// Load parses and validates a graph source and creates an execution
// session for it. It fails with a *graph.ParseError or
// *graph.ValidationError before any session state is created. The optional
// wire callbacks run against the session bus before any event is emitted.
func (e *Executor) Load(path string, wire ...func(sessionID string, b *bus.Bus)) (string, error) {
	f, err := graph.Load(path)
	if err != nil {
		return "", err
	}
	if violations := graph.Validate(f); len(violations) > 0 {
		return "", &graph.ValidationError{Violations: violations}
	}

	g := graph.Build(f)
	sessionID := uuid.New().String()[:8]

	sessionBudget := g.BudgetUSD()
	if sessionBudget == 0 {
		sessionBudget = e.cfg.Budget.SessionBudgetUSD
	}
	if err := e.db.CreateSession(&models.Session{
		ID:        sessionID,
		Name:      g.Name(),
		GraphPath: path,
		Status:    models.SessionStatusActive,
		BudgetUSD: sessionBudget,
		CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	s := &session{
		id:      sessionID,
		bus:     bus.New(),
		graph:   g,
		pool:    e.newPool(),
		tasks:   make(map[string]*models.Task, g.Size()),
		workers: make(map[string]string),
	}
	for _, def := range g.Tasks() {
		task := &models.Task{Def: def, Status: models.TaskStatusPending}
		s.tasks[def.ID] = task
		if err := e.db.SaveTask(sessionID, task); err != nil {
			return "", fmt.Errorf("save task %s: %w", def.ID, err)
		}
	}

	s.tracker = costs.NewTracker(e.db, s.bus, sessionID, e.cfg.Agents)
	s.tracker.Subscribe()
	s.enforcer = budget.NewEnforcer(e.db, s.bus, s.pool, e.cfg.Budget, sessionID, g.Tasks())
	s.enforcer.Subscribe()

	mon := monitor.New(e.db, s.bus, e.cfg.Monitor, e.router.PreferredAgent)
	mon.Subscribe(g.Task)

	s.bus.On(bus.TopicSessionBudgetExceeded, func(any) {
		s.mu.Lock()
		s.stopDispatch = true
		s.mu.Unlock()
	})

	for _, w := range wire {
		w(sessionID, s.bus)
	}

	e.mu.Lock()
	e.sessions[sessionID] = s
	e.mu.Unlock()

	ready := g.Ready()
	log.Printf("[executor] loaded graph %s: session %s, %d tasks, %d ready",
		path, sessionID, g.Size(), len(ready))
	s.bus.Emit(bus.TopicGraphLoaded, bus.GraphLoadedEvent{
		SessionID:  sessionID,
		TaskCount:  g.Size(),
		ReadyCount: len(ready),
	})
	return sessionID, nil
}

// Bus returns the event bus for a loaded session.
func (e *Executor) Bus(sessionID string) (*bus.Bus, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.bus, nil
}

// StartExecution runs the dispatch loop for a loaded session until every
// task is terminal or the context is cancelled. At most maxConcurrency
// tasks run at once; ties among ready tasks are broken by declaration
// order.
func (e *Executor) StartExecution(ctx context.Context, sessionID string, maxConcurrency int) (*Summary, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	if maxConcurrency <= 0 {
		maxConcurrency = e.cfg.Execution.MaxConcurrency
	}

	interrupted := false
	ctxDone := ctx.Done()
	for {
		e.dispatch(s, maxConcurrency)
		if e.drained(s) {
			break
		}

		select {
		case r := <-s.pool.Results():
			e.handleResult(s, r)
		case <-ctxDone:
			ctxDone = nil
			interrupted = true
			e.cancel(s, "interrupted")
		}
	}

	return e.finalize(s, interrupted)
}

// CancelAll cancels every non-terminal task in the session, stops further
// dispatch, and terminates active workers. Safe to call at any time and
// idempotent.
func (e *Executor) CancelAll(sessionID string) error {
	s, err := e.session(sessionID)
	if err != nil {
		return err
	}
	e.cancel(s, "cancelled")
	return nil
}

// GetReadyTasks returns a snapshot of tasks that are currently
// dispatchable, in declaration order.
func (e *Executor) GetReadyTasks(sessionID string) ([]models.TaskDefinition, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var defs []models.TaskDefinition
	for _, id := range s.graph.Ready() {
		if task := s.tasks[id]; task.Status == models.TaskStatusPending || task.Status == models.TaskStatusReady {
			defs = append(defs, task.Def)
		}
	}
	return defs, nil
}

// GetAllTasks returns a snapshot of every task's runtime state, in
// declaration order.
func (e *Executor) GetAllTasks(sessionID string) ([]models.Task, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]models.Task, 0, len(s.tasks))
	for _, def := range s.graph.Tasks() {
		tasks = append(tasks, *s.tasks[def.ID])
	}
	return tasks, nil
}

func (e *Executor) session(sessionID string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionUnknown, sessionID)
	}
	return s, nil
}

// dispatch starts ready tasks until the concurrency cap is reached or no
// task is dispatchable.
func (e *Executor) dispatch(s *session, maxConcurrency int) {
	for {
		s.mu.Lock()
		if s.stopDispatch || s.cancelled || s.running >= maxConcurrency {
			s.mu.Unlock()
			return
		}
		var next *models.Task
		for _, id := range s.graph.Ready() {
			if task := s.tasks[id]; task.Status == models.TaskStatusPending {
				next = task
				break
			}
		}
		if next == nil {
			s.mu.Unlock()
			return
		}
		next.Status = models.TaskStatusReady
		s.mu.Unlock()

		e.dispatchTask(s, next)
	}
}

// dispatchTask routes one ready task and hands it to the pool. A task no
// agent can take fails immediately and cascade-fails its dependents.
func (e *Executor) dispatchTask(s *session, task *models.Task) {
	decision := e.router.RouteTask(task.Def)
	s.bus.Emit(bus.TopicTaskRouted, bus.TaskRoutedEvent{TaskID: task.Def.ID, Decision: decision})

	if decision.BillingMode == models.BillingUnavailable {
		e.failTask(s, task.Def.ID, bus.TaskError{
			Message: decision.Rationale,
			Code:    "routing_unavailable",
		}, bus.TaskResult{})
		return
	}

	workerID, err := s.pool.Start(worker.Dispatch{Task: task.Def, Decision: decision})
	if err != nil {
		e.failTask(s, task.Def.ID, bus.TaskError{
			Message: fmt.Sprintf("dispatch: %v", err),
			Code:    "dispatch_error",
		}, bus.TaskResult{})
		return
	}

	now := time.Now()
	s.mu.Lock()
	task.Status = models.TaskStatusRunning
	task.AssignedAgent = decision.Agent
	task.BillingMode = decision.BillingMode
	task.StartedAt = &now
	s.workers[task.Def.ID] = workerID
	s.running++
	s.mu.Unlock()

	e.persist(s, task)
	log.Printf("[executor] task %s dispatched to %s (worker %s)", task.Def.ID, decision.Agent, workerID)
	s.bus.Emit(bus.TopicTaskStarted, bus.TaskStartedEvent{
		TaskID:   task.Def.ID,
		WorkerID: workerID,
		Agent:    decision.Agent,
	})
}

// handleResult applies one worker report: completion, failure, or
// termination. Events emitted here drive the cost tracker, budget
// enforcer, and monitor inline, so budget reactions are visible before the
// next dispatch round.
func (e *Executor) handleResult(s *session, r worker.Result) {
	s.mu.Lock()
	if s.workers[r.TaskID] == r.WorkerID {
		delete(s.workers, r.TaskID)
		s.running--
	}
	task, ok := s.tasks[r.TaskID]
	if !ok || task.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	agent := task.AssignedAgent
	s.mu.Unlock()

	result := bus.TaskResult{
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		DurationMs:   r.DurationMs,
		Retries:      r.Retries,
		Agent:        agent,
	}

	if r.Terminated {
		e.failTask(s, r.TaskID, bus.TaskError{Message: r.Reason, Code: "terminated"}, result)
		return
	}
	if r.Failed {
		e.failTask(s, r.TaskID, bus.TaskError{Message: r.ErrorMessage, Code: r.ErrorCode}, result)
		return
	}

	now := time.Now()
	s.mu.Lock()
	task.Status = models.TaskStatusComplete
	task.CompletedAt = &now
	s.mu.Unlock()
	s.graph.MarkComplete(r.TaskID)

	e.persist(s, task)
	s.bus.Emit(bus.TopicTaskComplete, bus.TaskCompleteEvent{TaskID: r.TaskID, Result: result})
}

// failTask marks a task failed, emits task:failed, and cascade-fails every
// transitive dependent without dispatching it. The cascade is not an
// executor error.
func (e *Executor) failTask(s *session, taskID string, taskErr bus.TaskError, result bus.TaskResult) {
	now := time.Now()

	s.mu.Lock()
	task := s.tasks[taskID]
	task.Status = models.TaskStatusFailed
	task.Error = taskErr.Message
	task.CompletedAt = &now

	var cascaded []*models.Task
	for _, depID := range s.graph.TransitiveDependents(taskID) {
		dep := s.tasks[depID]
		if dep.Status.Terminal() || dep.Status == models.TaskStatusRunning {
			continue
		}
		dep.Status = models.TaskStatusFailed
		dep.Error = fmt.Sprintf("dependency %s failed", taskID)
		dep.CompletedAt = &now
		cascaded = append(cascaded, dep)
	}
	s.mu.Unlock()

	s.graph.MarkExcluded(taskID)
	for _, dep := range cascaded {
		s.graph.MarkExcluded(dep.Def.ID)
	}

	e.persist(s, task)
	log.Printf("[executor] task %s failed: %s", taskID, taskErr.Message)
	s.bus.Emit(bus.TopicTaskFailed, bus.TaskFailedEvent{TaskID: taskID, Error: taskErr, Result: result})

	for _, dep := range cascaded {
		e.persist(s, dep)
		s.bus.Emit(bus.TopicTaskFailed, bus.TaskFailedEvent{
			TaskID: dep.Def.ID,
			Error:  bus.TaskError{Message: dep.Error, Code: "dependency_failed"},
		})
	}
}

// cancel transitions every non-terminal task to cancelled, stops dispatch,
// and terminates active workers. Idempotent.
func (e *Executor) cancel(s *session, reason string) {
	now := time.Now()

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.stopDispatch = true

	var cancelled []*models.Task
	for _, def := range s.graph.Tasks() {
		task := s.tasks[def.ID]
		if task.Status.Terminal() {
			continue
		}
		task.Status = models.TaskStatusCancelled
		task.CompletedAt = &now
		cancelled = append(cancelled, task)
	}
	s.mu.Unlock()

	for _, task := range cancelled {
		s.graph.MarkExcluded(task.Def.ID)
		e.persist(s, task)
		s.bus.Emit(bus.TopicTaskCancelled, bus.TaskCancelledEvent{TaskID: task.Def.ID, Reason: reason})
	}

	s.pool.TerminateAll()
	log.Printf("[executor] session %s cancelled (%d tasks): %s", s.id, len(cancelled), reason)
	s.bus.Emit(bus.TopicGraphCancelled, bus.GraphCancelledEvent{CancelledTasks: len(cancelled)})
}

// drained reports whether the loop can stop: nothing running and nothing
// left to dispatch. When dispatch was stopped by the budget enforcer, the
// remaining non-terminal tasks are cancelled first.
func (e *Executor) drained(s *session) bool {
	s.mu.Lock()
	stopped := s.stopDispatch && !s.cancelled
	s.mu.Unlock()

	if stopped {
		e.cancelRemaining(s, "session budget exceeded")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running > 0 {
		return false
	}
	for _, task := range s.tasks {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}

// cancelRemaining cancels non-running, non-terminal tasks after a budget
// stop. Running tasks keep their workers until the pool reports back.
func (e *Executor) cancelRemaining(s *session, reason string) {
	now := time.Now()

	s.mu.Lock()
	var cancelled []*models.Task
	for _, def := range s.graph.Tasks() {
		task := s.tasks[def.ID]
		if task.Status.Terminal() || task.Status == models.TaskStatusRunning {
			continue
		}
		task.Status = models.TaskStatusCancelled
		task.CompletedAt = &now
		cancelled = append(cancelled, task)
	}
	s.mu.Unlock()

	for _, task := range cancelled {
		s.graph.MarkExcluded(task.Def.ID)
		e.persist(s, task)
		s.bus.Emit(bus.TopicTaskCancelled, bus.TaskCancelledEvent{TaskID: task.Def.ID, Reason: reason})
	}
}

// finalize computes the summary, persists the session's terminal status,
// and emits graph:complete or graph:cancelled.
func (e *Executor) finalize(s *session, interrupted bool) (*Summary, error) {
	summary := &Summary{SessionID: s.id, Interrupted: interrupted}

	s.mu.Lock()
	summary.TotalTasks = len(s.tasks)
	for _, task := range s.tasks {
		switch task.Status {
		case models.TaskStatusComplete:
			summary.Completed++
		case models.TaskStatusFailed:
			summary.Failed++
		case models.TaskStatusCancelled:
			summary.Cancelled++
		}
	}
	cancelled := s.cancelled
	s.mu.Unlock()
	summary.BudgetExceeded = s.enforcer.SessionExceeded()

	if session, err := e.db.GetSession(s.id); err == nil {
		summary.TotalCostUSD = session.TotalCostUSD
	} else {
		log.Printf("[executor] reading session %s: %v", s.id, err)
	}
	if savings, err := e.db.SessionSavings(s.id); err == nil {
		summary.SavingsUSD = savings
	}

	status := models.SessionStatusCompleted
	switch {
	case interrupted || (cancelled && !summary.BudgetExceeded):
		status = models.SessionStatusCancelled
	case summary.BudgetExceeded:
		status = models.SessionStatusStopped
	}
	if err := e.db.UpdateSessionStatus(s.id, status); err != nil {
		log.Printf("[executor] updating session %s status: %v", s.id, err)
	}

	if !cancelled {
		s.bus.Emit(bus.TopicGraphComplete, bus.GraphCompleteEvent{
			TotalTasks:     summary.TotalTasks,
			CompletedTasks: summary.Completed,
			FailedTasks:    summary.Failed,
			TotalCostUSD:   summary.TotalCostUSD,
		})
	}
	return summary, nil
}

func (e *Executor) persist(s *session, task *models.Task) {
	s.mu.Lock()
	snapshot := *task
	s.mu.Unlock()
	if err := e.db.SaveTask(s.id, &snapshot); err != nil {
		log.Printf("[executor] persisting task %s: %v", snapshot.Def.ID, err)
	}
}
