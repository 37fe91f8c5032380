package costs

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/convoy-run/convoy/internal/bus"
	"github.com/convoy-run/convoy/internal/state"
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

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var testAgents = []models.AgentProfile{
	{ID: "claude-code", BillingMode: models.BillingSubscription,
		Pricing: models.ModelPricing{InputPerMillion: 3.0, OutputPerMillion: 15.0}, Available: true},
	{ID: "codex", BillingMode: models.BillingAPI,
		Pricing: models.ModelPricing{InputPerMillion: 2.0, OutputPerMillion: 8.0}, Available: true},
}

func setupTracker(t *testing.T) (*Tracker, *bus.Bus, *state.DB) {
	t.Helper()
	db := testDB(t)
	b := bus.New()

	session := &models.Session{ID: "sess1", Name: "test", Status: models.SessionStatusActive, CreatedAt: time.Now()}
	if err := db.CreateSession(session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	task := &models.Task{Def: models.TaskDefinition{ID: "t1", Name: "task"}, Status: models.TaskStatusRunning}
	if err := db.SaveTask("sess1", task); err != nil {
		t.Fatalf("save task: %v", err)
	}

	tracker := NewTracker(db, b, "sess1", testAgents)
	tracker.Subscribe()
	return tracker, b, db
}

func route(b *bus.Bus, taskID, agent string, mode models.BillingMode) {
	b.Emit(bus.TopicTaskRouted, bus.TaskRoutedEvent{
		TaskID:   taskID,
		Decision: models.RoutingDecision{TaskID: taskID, Agent: agent, BillingMode: mode},
	})
}

func TestSubscriptionTaskZeroCostPositiveSavings(t *testing.T) {
	_, b, db := setupTracker(t)
	route(b, "t1", "claude-code", models.BillingSubscription)

	b.Emit(bus.TopicTaskComplete, bus.TaskCompleteEvent{
		TaskID: "t1",
		Result: bus.TaskResult{InputTokens: 1_000_000, OutputTokens: 500_000},
	})

	entries, err := db.ListCostEntries("sess1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 cost entry, got %d", len(entries))
	}
	e := entries[0]
	if e.CostUSD != 0 {
		t.Errorf("subscription cost should be 0, got %f", e.CostUSD)
	}
	// 1M input at $3/M + 0.5M output at $15/M.
	if !approxEqual(e.SavingsUSD, 10.5) {
		t.Errorf("expected savings 10.5, got %f", e.SavingsUSD)
	}

	session, err := db.GetSession("sess1")
	if err != nil {
		t.Fatal(err)
	}
	if session.TotalCostUSD != 0 {
		t.Errorf("session total should stay 0 for subscription billing, got %f", session.TotalCostUSD)
	}
}

func TestAPITaskPositiveCostZeroSavings(t *testing.T) {
	_, b, db := setupTracker(t)
	route(b, "t1", "codex", models.BillingAPI)

	b.Emit(bus.TopicTaskComplete, bus.TaskCompleteEvent{
		TaskID: "t1",
		Result: bus.TaskResult{InputTokens: 500_000, OutputTokens: 250_000},
	})

	entries, err := db.ListCostEntries("sess1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 cost entry, got %d", len(entries))
	}
	// 0.5M input at $2/M + 0.25M output at $8/M.
	if !approxEqual(entries[0].CostUSD, 3.0) {
		t.Errorf("expected cost 3.0, got %f", entries[0].CostUSD)
	}
	if entries[0].SavingsUSD != 0 {
		t.Errorf("api savings should be 0, got %f", entries[0].SavingsUSD)
	}

	session, err := db.GetSession("sess1")
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(session.TotalCostUSD, 3.0) {
		t.Errorf("session total should be 3.0, got %f", session.TotalCostUSD)
	}

	tasks, err := db.ListSessionTasks("sess1")
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(tasks[0].AccumulatedCostUSD, 3.0) {
		t.Errorf("task accumulated cost should be 3.0, got %f", tasks[0].AccumulatedCostUSD)
	}
}

func TestUnavailableWritesNoEntry(t *testing.T) {
	_, b, db := setupTracker(t)
	route(b, "t1", "", models.BillingUnavailable)

	b.Emit(bus.TopicTaskFailed, bus.TaskFailedEvent{
		TaskID: "t1",
		Error:  bus.TaskError{Message: "no agent available", Code: "routing_unavailable"},
	})

	entries, err := db.ListCostEntries("sess1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no cost entries for unavailable routing, got %d", len(entries))
	}
}

func TestFailureWithZeroTokensWritesNoEntry(t *testing.T) {
	_, b, db := setupTracker(t)
	route(b, "t1", "codex", models.BillingAPI)

	b.Emit(bus.TopicTaskFailed, bus.TaskFailedEvent{
		TaskID: "t1",
		Error:  bus.TaskError{Message: "spawn failed", Code: "spawn_error"},
	})

	entries, err := db.ListCostEntries("sess1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no cost entries for zero-token failure, got %d", len(entries))
	}
}

func TestFailureWithTokensIsCharged(t *testing.T) {
	_, b, db := setupTracker(t)
	route(b, "t1", "codex", models.BillingAPI)

	b.Emit(bus.TopicTaskFailed, bus.TaskFailedEvent{
		TaskID: "t1",
		Error:  bus.TaskError{Message: "worker crashed", Code: "worker_error"},
		Result: bus.TaskResult{InputTokens: 100_000, OutputTokens: 50_000},
	})

	entries, err := db.ListCostEntries("sess1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 cost entry for partial failure, got %d", len(entries))
	}
	if entries[0].CostUSD <= 0 {
		t.Errorf("expected positive cost for tokens consumed before failure, got %f", entries[0].CostUSD)
	}
}

func TestCostRecordedEventEmitted(t *testing.T) {
	_, b, _ := setupTracker(t)

	var got *bus.CostRecordedEvent
	b.On(bus.TopicCostRecorded, func(payload any) {
		ev := payload.(bus.CostRecordedEvent)
		got = &ev
	})

	route(b, "t1", "codex", models.BillingAPI)
	b.Emit(bus.TopicTaskComplete, bus.TaskCompleteEvent{
		TaskID: "t1",
		Result: bus.TaskResult{InputTokens: 1_000_000},
	})

	if got == nil {
		t.Fatal("expected cost:recorded event")
	}
	if got.TaskID != "t1" || got.SessionID != "sess1" {
		t.Errorf("unexpected event ids: %+v", got)
	}
	if !approxEqual(got.CostUSD, 2.0) {
		t.Errorf("expected event cost 2.0, got %f", got.CostUSD)
	}
	if got.BillingMode != models.BillingAPI {
		t.Errorf("expected api billing mode, got %s", got.BillingMode)
	}
}

func TestRecordWithoutDecisionErrors(t *testing.T) {
	tracker, _, _ := setupTracker(t)

	err := tracker.Record("unknown", bus.TaskResult{InputTokens: 100}, false)
	if err == nil {
		t.Error("expected error when no routing decision was recorded")
	}
}
