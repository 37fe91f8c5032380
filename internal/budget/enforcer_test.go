package budget

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/convoy-run/convoy/internal/bus"
	"github.com/convoy-run/convoy/internal/config"
	"github.com/convoy-run/convoy/internal/state"
	"github.com/convoy-run/convoy/internal/worker"
	"github.com/convoy-run/convoy/pkg/models"
)

func testDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	db       *state.DB
	bus      *bus.Bus
	pool     *worker.SimulatedPool
	enforcer *Enforcer
}

func setup(t *testing.T, cfg config.BudgetConfig, sessionBudget float64) *fixture {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	pool := worker.NewSimulatedPool(time.Hour, worker.Outcome{})

	session := &models.Session{
		ID: "sess1", Name: "test", Status: models.SessionStatusActive,
		BudgetUSD: sessionBudget, CreatedAt: time.Now(),
	}
	if err := db.CreateSession(session); err != nil {
		t.Fatal(err)
	}

	defs := []models.TaskDefinition{{ID: "t1", Name: "task", BudgetUSD: 1.0}}
	if err := db.SaveTask("sess1", &models.Task{Def: defs[0], Status: models.TaskStatusRunning}); err != nil {
		t.Fatal(err)
	}

	e := NewEnforcer(db, b, pool, cfg, "sess1", defs)
	e.Subscribe()
	return &fixture{db: db, bus: b, pool: pool, enforcer: e}
}

func TestWarningAtEightyFivePercent(t *testing.T) {
	f := setup(t, config.BudgetConfig{WarningThreshold: 0.80}, 0)

	var warning *bus.BudgetWarningTaskEvent
	f.bus.On(bus.TopicBudgetWarningTask, func(payload any) {
		ev := payload.(bus.BudgetWarningTaskEvent)
		warning = &ev
	})

	if _, err := f.db.AddTaskCost("sess1", "t1", 0.85); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t1", SessionID: "sess1", CostUSD: 0.85})

	if warning == nil {
		t.Fatal("expected budget warning")
	}
	if math.Abs(warning.PercentageUsed-85) > 1e-9 {
		t.Errorf("expected percentageUsed 85, got %f", warning.PercentageUsed)
	}
}

func TestExceededTerminatesWorker(t *testing.T) {
	f := setup(t, config.BudgetConfig{WarningThreshold: 0.80}, 0)

	workerID, err := f.pool.Start(worker.Dispatch{Task: models.TaskDefinition{ID: "t1"}})
	if err != nil {
		t.Fatal(err)
	}

	var warned bool
	var exceeded *bus.BudgetExceededTaskEvent
	f.bus.On(bus.TopicBudgetWarningTask, func(any) { warned = true })
	f.bus.On(bus.TopicBudgetExceededTask, func(payload any) {
		ev := payload.(bus.BudgetExceededTaskEvent)
		exceeded = &ev
	})

	if _, err := f.db.AddTaskCost("sess1", "t1", 1.20); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t1", SessionID: "sess1", CostUSD: 1.20})

	if exceeded == nil {
		t.Fatal("expected budget exceeded event")
	}
	if exceeded.BudgetUSD != 1.0 {
		t.Errorf("expected budget 1.0 in event, got %f", exceeded.BudgetUSD)
	}
	if warned {
		t.Error("exceeded event should replace the warning, not accompany it")
	}

	r := <-f.pool.Results()
	if !r.Terminated || r.WorkerID != workerID {
		t.Errorf("expected termination of worker %s, got %+v", workerID, r)
	}
}

func TestExceededFiresOncePerTask(t *testing.T) {
	f := setup(t, config.BudgetConfig{WarningThreshold: 0.80}, 0)

	count := 0
	f.bus.On(bus.TopicBudgetExceededTask, func(any) { count++ })

	if _, err := f.db.AddTaskCost("sess1", "t1", 1.5); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t1", SessionID: "sess1"})
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t1", SessionID: "sess1"})

	if count != 1 {
		t.Errorf("expected exceeded action to latch, got %d events", count)
	}
}

func TestDefaultTaskBudgetApplies(t *testing.T) {
	f := setup(t, config.BudgetConfig{WarningThreshold: 0.80, DefaultTaskBudgetUSD: 0.5}, 0)

	if err := f.db.SaveTask("sess1", &models.Task{
		Def: models.TaskDefinition{ID: "t2", Name: "uncapped"}, Status: models.TaskStatusRunning,
	}); err != nil {
		t.Fatal(err)
	}
	f.enforcer.taskBudgets["t2"] = 0

	var exceeded bool
	f.bus.On(bus.TopicBudgetExceededTask, func(any) { exceeded = true })

	if _, err := f.db.AddTaskCost("sess1", "t2", 0.6); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t2", SessionID: "sess1"})

	if !exceeded {
		t.Error("expected default budget to trigger exceeded")
	}
}

func TestSessionExceededTerminatesAll(t *testing.T) {
	f := setup(t, config.BudgetConfig{WarningThreshold: 0.80}, 2.0)

	for _, id := range []string{"a", "b"} {
		if _, err := f.pool.Start(worker.Dispatch{Task: models.TaskDefinition{ID: id}}); err != nil {
			t.Fatal(err)
		}
	}

	var sessionEv *bus.SessionBudgetExceededEvent
	f.bus.On(bus.TopicSessionBudgetExceeded, func(payload any) {
		ev := payload.(bus.SessionBudgetExceededEvent)
		sessionEv = &ev
	})

	if _, err := f.db.AddSessionCost("sess1", 2.5); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t1", SessionID: "sess1", CostUSD: 2.5})

	if sessionEv == nil {
		t.Fatal("expected session budget exceeded event")
	}
	if sessionEv.BudgetUSD != 2.0 {
		t.Errorf("expected session budget 2.0, got %f", sessionEv.BudgetUSD)
	}
	if !f.enforcer.SessionExceeded() {
		t.Error("SessionExceeded should report true")
	}
	if len(f.pool.ActiveWorkers()) != 0 {
		t.Error("expected all workers terminated")
	}
}

func TestPlanningCostsCountWhenConfigured(t *testing.T) {
	f := setup(t, config.BudgetConfig{WarningThreshold: 0.80, IncludePlanningCosts: true}, 1.0)

	var exceeded bool
	f.bus.On(bus.TopicSessionBudgetExceeded, func(any) { exceeded = true })

	if err := f.db.AddPlanningCost("sess1", 0.7); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.AddSessionCost("sess1", 0.5); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t1", SessionID: "sess1"})

	if !exceeded {
		t.Error("planning costs should count against the session budget")
	}
}

func TestPlanningCostsIgnoredWhenDisabled(t *testing.T) {
	f := setup(t, config.BudgetConfig{WarningThreshold: 0.80, IncludePlanningCosts: false}, 1.0)

	var exceeded bool
	f.bus.On(bus.TopicSessionBudgetExceeded, func(any) { exceeded = true })

	if err := f.db.AddPlanningCost("sess1", 0.7); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.AddSessionCost("sess1", 0.5); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t1", SessionID: "sess1"})

	if exceeded {
		t.Error("planning costs should be excluded when the flag is off")
	}
}

func TestSingleEventCanTripBothChecks(t *testing.T) {
	f := setup(t, config.BudgetConfig{WarningThreshold: 0.80}, 1.0)

	var taskExceeded, sessionExceeded bool
	f.bus.On(bus.TopicBudgetExceededTask, func(any) { taskExceeded = true })
	f.bus.On(bus.TopicSessionBudgetExceeded, func(any) { sessionExceeded = true })

	if _, err := f.db.AddTaskCost("sess1", "t1", 1.5); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.AddSessionCost("sess1", 1.5); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{TaskID: "t1", SessionID: "sess1", CostUSD: 1.5})

	if !taskExceeded || !sessionExceeded {
		t.Errorf("expected both checks to fire, got task=%v session=%v", taskExceeded, sessionExceeded)
	}
}
