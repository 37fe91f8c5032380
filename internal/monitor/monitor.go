// Package monitor aggregates per-(agent, task type) outcome telemetry and
// derives advisory routing recommendations from it. Recording is synchronous
// and purely local; it never calls out to an agent or model API.
package monitor

import (
	"fmt"
	"log"
	"sync"

	"github.com/convoy-run/convoy/internal/bus"
	"github.com/convoy-run/convoy/internal/config"
	"github.com/convoy-run/convoy/internal/state"
	"github.com/convoy-run/convoy/pkg/models"
)

// Task outcome values stored in telemetry rows.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CurrentAgentFunc reports the policy-designated agent for a task type.
// Recommendations compare competitors against this agent, never against
// the best performer.
type CurrentAgentFunc func(models.TaskType) string

// Metrics is the telemetry attached to one task outcome.
type Metrics struct {
	// TaskType is the explicit type, if the task declared one. When empty
	// or unknown the monitor classifies from Title and Description.
	TaskType      models.TaskType
	Title         string
	Description   string
	FailureReason string
	InputTokens   int64
	OutputTokens  int64
	DurationMs    int64
	Retries       int64
	CostUSD       float64
}

// Monitor records task outcomes and serves recommendations.
type Monitor struct {
	mu      sync.Mutex
	db      *state.DB
	bus     *bus.Bus
	cfg     config.MonitorConfig
	current CurrentAgentFunc

	// costs holds per-task cost captured from cost:recorded until the
	// matching lifecycle event consumes it.
	costs map[string]float64
}

// New creates a Monitor. current supplies the policy-designated agent per
// task type, typically the router's first policy choice.
func New(db *state.DB, b *bus.Bus, cfg config.MonitorConfig, current CurrentAgentFunc) *Monitor {
	return &Monitor{db: db, bus: b, cfg: cfg, current: current, costs: make(map[string]float64)}
}

// Subscribe registers the monitor on cost:recorded, task:complete, and
// task:failed. The cost tracker subscribes to the lifecycle topics first
// and publishes cost:recorded inline, so the cost for a task is already
// captured here by the time its lifecycle handler below runs. describe
// resolves a task ID to its definition so outcomes can be classified;
// recording failures are logged and never abort dispatch.
func (m *Monitor) Subscribe(describe func(taskID string) (models.TaskDefinition, bool)) {
	m.bus.On(bus.TopicCostRecorded, func(payload any) {
		ev, ok := payload.(bus.CostRecordedEvent)
		if !ok {
			return
		}
		m.mu.Lock()
		m.costs[ev.TaskID] = ev.CostUSD
		m.mu.Unlock()
	})

	record := func(taskID, agent, outcome, failureReason string, result bus.TaskResult) {
		metrics := Metrics{
			FailureReason: failureReason,
			InputTokens:   result.InputTokens,
			OutputTokens:  result.OutputTokens,
			DurationMs:    result.DurationMs,
			Retries:       result.Retries,
			CostUSD:       result.CostUSD,
		}
		if def, ok := describe(taskID); ok {
			metrics.TaskType = def.Type
			metrics.Title = def.Name
			metrics.Description = def.Prompt
		}
		if err := m.RecordTaskMetrics(taskID, agent, outcome, metrics); err != nil {
			log.Printf("[monitor] recording metrics for task %s: %v", taskID, err)
		}
	}

	m.bus.On(bus.TopicTaskComplete, func(payload any) {
		ev, ok := payload.(bus.TaskCompleteEvent)
		if !ok {
			return
		}
		record(ev.TaskID, ev.Result.Agent, OutcomeSuccess, "", ev.Result)
	})

	m.bus.On(bus.TopicTaskFailed, func(payload any) {
		ev, ok := payload.(bus.TaskFailedEvent)
		if !ok {
			return
		}
		record(ev.TaskID, ev.Result.Agent, OutcomeFailure, ev.Error.Message, ev.Result)
	})
}

// RecordTaskMetrics classifies the task and applies its outcome to the raw
// telemetry and the matching aggregate row, then emits
// monitor:metrics_recorded.
func (m *Monitor) RecordTaskMetrics(taskID, agent, outcome string, metrics Metrics) error {
	if agent == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if metrics.CostUSD == 0 {
		if cost, ok := m.costs[taskID]; ok {
			metrics.CostUSD = cost
		}
	}
	delete(m.costs, taskID)

	taskType := metrics.TaskType
	if !taskType.Valid() {
		taskType = ClassifyTaskType(metrics.Title, metrics.Description)
	}

	metric := &state.TaskMetric{
		TaskID:        taskID,
		Agent:         agent,
		TaskType:      taskType,
		Outcome:       outcome,
		FailureReason: metrics.FailureReason,
		InputTokens:   metrics.InputTokens,
		OutputTokens:  metrics.OutputTokens,
		DurationMs:    metrics.DurationMs,
		Retries:       metrics.Retries,
		CostUSD:       metrics.CostUSD,
	}
	if err := m.db.InsertTaskMetric(metric); err != nil {
		return fmt.Errorf("record task metrics: %w", err)
	}
	if err := m.db.IncrementAggregate(metric); err != nil {
		return fmt.Errorf("record task metrics: %w", err)
	}

	m.bus.Emit(bus.TopicMonitorMetricsRecorded, bus.MonitorMetricsRecordedEvent{
		TaskID:   taskID,
		Agent:    agent,
		TaskType: taskType,
	})
	return nil
}

// GetRecommendation compares agents with enough samples for the type and
// returns a recommendation when a competitor beats the policy-designated
// agent by at least the improvement threshold. Returns nil when fewer than
// two agents qualify or no candidate clears the threshold.
func (m *Monitor) GetRecommendation(taskType models.TaskType) (*models.Recommendation, error) {
	aggs, err := m.db.AggregatesByType(taskType)
	if err != nil {
		return nil, fmt.Errorf("get recommendation: %w", err)
	}

	var qualifying []*models.PerformanceAggregate
	for _, a := range aggs {
		if a.TotalTasks >= m.cfg.MinSampleSize {
			qualifying = append(qualifying, a)
		}
	}
	if len(qualifying) < 2 {
		return nil, nil
	}

	currentAgent := m.current(taskType)
	var current *models.PerformanceAggregate
	for _, a := range qualifying {
		if a.Agent == currentAgent {
			current = a
			break
		}
	}
	if current == nil {
		return nil, nil
	}

	var best *models.PerformanceAggregate
	for _, a := range qualifying {
		if a.Agent == currentAgent {
			continue
		}
		if best == nil || a.SuccessRate() > best.SuccessRate() {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}

	improvement := best.SuccessRate() - current.SuccessRate()
	if improvement < m.cfg.ImprovementThreshold {
		return nil, nil
	}

	sampleSize := current.TotalTasks
	if best.TotalTasks < sampleSize {
		sampleSize = best.TotalTasks
	}

	return &models.Recommendation{
		TaskType:              taskType,
		CurrentAgent:          currentAgent,
		RecommendedAgent:      best.Agent,
		ImprovementPercentage: improvement,
		Confidence:            m.confidence(sampleSize),
		SampleSize:            sampleSize,
	}, nil
}

// confidence maps a sample count onto a tier using the configured
// thresholds.
func (m *Monitor) confidence(samples int64) models.Confidence {
	switch {
	case samples >= m.cfg.HighConfidenceSamples:
		return models.ConfidenceHigh
	case samples >= m.cfg.MediumConfidenceSamples:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// PruneOldData deletes raw telemetry older than the retention window and
// returns the count removed.
func (m *Monitor) PruneOldData(retentionDays int) (int64, error) {
	return m.db.PruneTaskMetrics(retentionDays)
}

// RebuildAggregates recomputes every aggregate row from the remaining raw
// telemetry.
func (m *Monitor) RebuildAggregates() error {
	return m.db.RebuildAggregates()
}

// ResetAllData clears both raw telemetry and aggregates.
func (m *Monitor) ResetAllData() error {
	return m.db.ResetTelemetry()
}
