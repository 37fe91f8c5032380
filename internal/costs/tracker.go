// Package costs records the monetary cost or savings of each finished task
// dispatch. It subscribes to task lifecycle events on the bus, writes ledger
// entries, and bumps the session and task running totals.
package costs

import (
	"fmt"
	"log"
	"sync"

	"github.com/convoy-run/convoy/internal/bus"
	"github.com/convoy-run/convoy/internal/state"
	"github.com/convoy-run/convoy/pkg/models"
)

// Tracker computes and persists cost entries for one session.
type Tracker struct {
	mu        sync.Mutex
	db        *state.DB
	bus       *bus.Bus
	sessionID string
	pricing   map[string]models.ModelPricing
	decisions map[string]models.RoutingDecision
}

// NewTracker creates a Tracker for one session. The agent profiles supply
// the published per-million-token rates used for cost and savings math.
func NewTracker(db *state.DB, b *bus.Bus, sessionID string, agents []models.AgentProfile) *Tracker {
	pricing := make(map[string]models.ModelPricing, len(agents))
	for _, a := range agents {
		pricing[a.ID] = a.Pricing
	}
	return &Tracker{
		db:        db,
		bus:       b,
		sessionID: sessionID,
		pricing:   pricing,
		decisions: make(map[string]models.RoutingDecision),
	}
}

// Subscribe registers the tracker's handlers on the bus. Persistence
// failures inside a handler are logged and do not abort the dispatch path;
// callers needing the error use Record directly.
func (t *Tracker) Subscribe() {
	t.bus.On(bus.TopicTaskRouted, func(payload any) {
		ev, ok := payload.(bus.TaskRoutedEvent)
		if !ok {
			return
		}
		t.mu.Lock()
		t.decisions[ev.TaskID] = ev.Decision
		t.mu.Unlock()
	})

	t.bus.On(bus.TopicTaskComplete, func(payload any) {
		ev, ok := payload.(bus.TaskCompleteEvent)
		if !ok {
			return
		}
		if err := t.Record(ev.TaskID, ev.Result, false); err != nil {
			log.Printf("[costs] recording cost for task %s: %v", ev.TaskID, err)
		}
	})

	t.bus.On(bus.TopicTaskFailed, func(payload any) {
		ev, ok := payload.(bus.TaskFailedEvent)
		if !ok {
			return
		}
		// Cascade-failed tasks were never routed and have no cost.
		if _, ok := t.Decision(ev.TaskID); !ok {
			return
		}
		if err := t.Record(ev.TaskID, ev.Result, true); err != nil {
			log.Printf("[costs] recording cost for failed task %s: %v", ev.TaskID, err)
		}
	})
}

// Record computes cost and savings for one finished dispatch, appends the
// ledger entry, increments the session and task totals, and emits
// cost:recorded. The write + increment + emit sequence runs under one lock
// so no partial state is observable across it.
//
// No entry is written when the routing decision was unavailable, or for a
// failure that consumed zero tokens.
func (t *Tracker) Record(taskID string, result bus.TaskResult, failed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	decision, ok := t.decisions[taskID]
	if !ok {
		return fmt.Errorf("no routing decision recorded for task %s", taskID)
	}
	if decision.BillingMode == models.BillingUnavailable {
		return nil
	}
	if failed && result.TotalTokens() == 0 {
		return nil
	}

	rates := t.pricing[decision.Agent]
	apiEquivalent := rates.Cost(result.InputTokens, result.OutputTokens)

	var costUSD, savingsUSD float64
	switch decision.BillingMode {
	case models.BillingSubscription:
		savingsUSD = apiEquivalent
	case models.BillingAPI:
		costUSD = apiEquivalent
	}

	entry := &models.CostEntry{
		TaskID:       taskID,
		SessionID:    t.sessionID,
		Agent:        decision.Agent,
		BillingMode:  decision.BillingMode,
		TokensInput:  result.InputTokens,
		TokensOutput: result.OutputTokens,
		CostUSD:      costUSD,
		SavingsUSD:   savingsUSD,
	}
	if _, err := t.db.InsertCostEntry(entry); err != nil {
		return fmt.Errorf("insert cost entry: %w", err)
	}
	if _, err := t.db.AddSessionCost(t.sessionID, costUSD); err != nil {
		return fmt.Errorf("add session cost: %w", err)
	}
	if _, err := t.db.AddTaskCost(t.sessionID, taskID, costUSD); err != nil {
		return fmt.Errorf("add task cost: %w", err)
	}

	t.bus.Emit(bus.TopicCostRecorded, bus.CostRecordedEvent{
		TaskID:      taskID,
		SessionID:   t.sessionID,
		CostUSD:     costUSD,
		SavingsUSD:  savingsUSD,
		BillingMode: decision.BillingMode,
	})
	return nil
}

// Decision returns the stored routing decision for a task, if one was seen.
func (t *Tracker) Decision(taskID string) (models.RoutingDecision, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.decisions[taskID]
	return d, ok
}
