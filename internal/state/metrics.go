package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/convoy-run/convoy/pkg/models"
)

// TaskMetric is one raw telemetry row recorded per task outcome. Aggregates
// are always derivable from these rows.
type TaskMetric struct {
	ID            int64
	TaskID        string
	Agent         string
	TaskType      models.TaskType
	Outcome       string // "success" or "failure"
	FailureReason string
	InputTokens   int64
	OutputTokens  int64
	DurationMs    int64
	Retries       int64
	CostUSD       float64
	CreatedAt     time.Time
}

// InsertTaskMetric appends one raw telemetry row.
func (db *DB) InsertTaskMetric(m *TaskMetric) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO task_metrics (task_id, agent, task_type, outcome, failure_reason, input_tokens, output_tokens, duration_ms, retries, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.TaskID, m.Agent, string(m.TaskType), m.Outcome, nullString(m.FailureReason),
		m.InputTokens, m.OutputTokens, m.DurationMs, m.Retries, m.CostUSD, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert task metric: %w", err)
	}
	return nil
}

// IncrementAggregate applies one task outcome to the (agent, task type)
// aggregate row, creating it on first use. The whole increment is a single
// UPSERT, so concurrent increments are commutative.
func (db *DB) IncrementAggregate(m *TaskMetric) error {
	success := 0
	failed := 0
	if m.Outcome == "success" {
		success = 1
	} else {
		failed = 1
	}

	_, err := db.Exec(`
		INSERT INTO performance_aggregates
			(agent, task_type, total_tasks, successful_tasks, failed_tasks, total_input_tokens, total_output_tokens, total_duration_ms, total_cost, total_retries, last_updated)
		VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent, task_type) DO UPDATE SET
			total_tasks = total_tasks + 1,
			successful_tasks = successful_tasks + excluded.successful_tasks,
			failed_tasks = failed_tasks + excluded.failed_tasks,
			total_input_tokens = total_input_tokens + excluded.total_input_tokens,
			total_output_tokens = total_output_tokens + excluded.total_output_tokens,
			total_duration_ms = total_duration_ms + excluded.total_duration_ms,
			total_cost = total_cost + excluded.total_cost,
			total_retries = total_retries + excluded.total_retries,
			last_updated = excluded.last_updated
	`, m.Agent, string(m.TaskType), success, failed,
		m.InputTokens, m.OutputTokens, m.DurationMs, m.CostUSD, m.Retries,
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("increment aggregate: %w", err)
	}
	return nil
}

// GetAggregate returns the aggregate row for one (agent, task type) pair,
// or nil if none exists.
func (db *DB) GetAggregate(agent string, taskType models.TaskType) (*models.PerformanceAggregate, error) {
	rows, err := db.Query(aggregateSelect+` WHERE agent = ? AND task_type = ?`, agent, string(taskType))
	if err != nil {
		return nil, fmt.Errorf("get aggregate: %w", err)
	}
	defer rows.Close()

	aggs, err := scanAggregates(rows)
	if err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return nil, nil
	}
	return aggs[0], nil
}

// AggregatesByType returns all aggregate rows for one task type.
func (db *DB) AggregatesByType(taskType models.TaskType) ([]*models.PerformanceAggregate, error) {
	rows, err := db.Query(aggregateSelect+` WHERE task_type = ? ORDER BY agent`, string(taskType))
	if err != nil {
		return nil, fmt.Errorf("aggregates by type: %w", err)
	}
	defer rows.Close()
	return scanAggregates(rows)
}

// AllAggregates returns every aggregate row.
func (db *DB) AllAggregates() ([]*models.PerformanceAggregate, error) {
	rows, err := db.Query(aggregateSelect + ` ORDER BY agent, task_type`)
	if err != nil {
		return nil, fmt.Errorf("all aggregates: %w", err)
	}
	defer rows.Close()
	return scanAggregates(rows)
}

const aggregateSelect = `
	SELECT agent, task_type, total_tasks, successful_tasks, failed_tasks,
		total_input_tokens, total_output_tokens, total_duration_ms, total_cost, total_retries, last_updated
	FROM performance_aggregates`

func scanAggregates(rows *sql.Rows) ([]*models.PerformanceAggregate, error) {
	var aggs []*models.PerformanceAggregate
	for rows.Next() {
		var a models.PerformanceAggregate
		var taskType, lastUpdated string
		if err := rows.Scan(&a.Agent, &taskType, &a.TotalTasks, &a.SuccessfulTasks, &a.FailedTasks,
			&a.TotalInputTokens, &a.TotalOutputTokens, &a.TotalDurationMs, &a.TotalCost, &a.TotalRetries, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		a.TaskType = models.TaskType(taskType)
		if t, err := parseTime(lastUpdated); err == nil {
			a.LastUpdated = t
		}
		aggs = append(aggs, &a)
	}
	return aggs, rows.Err()
}

// PruneTaskMetrics deletes raw telemetry rows older than the retention
// window and returns the count removed. Aggregates are left untouched;
// callers rebuild them afterwards if they want the two in sync.
func (db *DB) PruneTaskMetrics(retentionDays int) (int64, error) {
	cutoff := formatTime(time.Now().AddDate(0, 0, -retentionDays))

	res, err := db.Exec(`DELETE FROM task_metrics WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune task metrics: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune task metrics: %w", err)
	}
	return count, nil
}

// RebuildAggregates recomputes every aggregate row from the remaining raw
// telemetry. The delete and re-insert happen in one transaction, so readers
// never observe an empty aggregate table mid-rebuild.
func (db *DB) RebuildAggregates() error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM performance_aggregates`); err != nil {
			return fmt.Errorf("clear aggregates: %w", err)
		}

		_, err := tx.Exec(`
			INSERT INTO performance_aggregates
				(agent, task_type, total_tasks, successful_tasks, failed_tasks, total_input_tokens, total_output_tokens, total_duration_ms, total_cost, total_retries, last_updated)
			SELECT
				agent,
				task_type,
				COUNT(*),
				SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END),
				SUM(CASE WHEN outcome != 'success' THEN 1 ELSE 0 END),
				SUM(input_tokens),
				SUM(output_tokens),
				SUM(duration_ms),
				SUM(cost_usd),
				SUM(retries),
				?
			FROM task_metrics
			GROUP BY agent, task_type
		`, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("rebuild aggregates: %w", err)
		}
		return nil
	})
}

// ResetTelemetry clears both raw telemetry and aggregates.
func (db *DB) ResetTelemetry() error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM task_metrics`); err != nil {
			return fmt.Errorf("reset task metrics: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM performance_aggregates`); err != nil {
			return fmt.Errorf("reset aggregates: %w", err)
		}
		return nil
	})
}
