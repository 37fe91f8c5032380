package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/convoy-run/convoy/pkg/models"
)

// ErrTaskNotFound indicates the requested task does not exist in the session.
var ErrTaskNotFound = errors.New("task not found")

// SaveTask inserts or replaces a task's runtime state within a session.
func (db *DB) SaveTask(sessionID string, t *models.Task) error {
	var startedAt, completedAt any
	if t.StartedAt != nil {
		startedAt = formatTime(*t.StartedAt)
	}
	if t.CompletedAt != nil {
		completedAt = formatTime(*t.CompletedAt)
	}

	_, err := db.Exec(`
		INSERT INTO session_tasks
			(session_id, task_id, name, task_type, status, assigned_agent, billing_mode, accumulated_cost_usd, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, task_id) DO UPDATE SET
			status = excluded.status,
			assigned_agent = excluded.assigned_agent,
			billing_mode = excluded.billing_mode,
			accumulated_cost_usd = excluded.accumulated_cost_usd,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, sessionID, t.Def.ID, t.Def.Name, string(t.Def.Type), string(t.Status),
		nullString(t.AssignedAgent), nullString(string(t.BillingMode)),
		t.AccumulatedCostUSD, nullString(t.Error), startedAt, completedAt)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.Def.ID, err)
	}
	return nil
}

// UpdateTaskStatus sets a task's status within a session.
func (db *DB) UpdateTaskStatus(sessionID, taskID string, status models.TaskStatus) error {
	_, err := db.Exec(`
		UPDATE session_tasks SET status = ? WHERE session_id = ? AND task_id = ?
	`, string(status), sessionID, taskID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// AddTaskCost atomically increments a task's accumulated cost and returns
// the new total. Like AddSessionCost, this is the only mutation path for
// the counter.
func (db *DB) AddTaskCost(sessionID, taskID string, deltaUSD float64) (float64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		UPDATE session_tasks SET accumulated_cost_usd = accumulated_cost_usd + ?
		WHERE session_id = ? AND task_id = ?
	`, deltaUSD, sessionID, taskID)
	if err != nil {
		return 0, fmt.Errorf("add task cost: %w", err)
	}

	var total float64
	row := db.conn.QueryRow(`
		SELECT accumulated_cost_usd FROM session_tasks WHERE session_id = ? AND task_id = ?
	`, sessionID, taskID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("add task cost: %w", err)
	}
	return total, nil
}

// GetTask returns one task's stored runtime state within a session.
func (db *DB) GetTask(sessionID, taskID string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT task_id, name, task_type, status, assigned_agent, billing_mode, accumulated_cost_usd, error, started_at, completed_at
		FROM session_tasks WHERE session_id = ? AND task_id = ?
	`, sessionID, taskID)

	var t models.Task
	var taskType, status string
	var agent, billing, errMsg, startedAt, completedAt sql.NullString
	if err := row.Scan(&t.Def.ID, &t.Def.Name, &taskType, &status, &agent, &billing,
		&t.AccumulatedCostUSD, &errMsg, &startedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.Def.Type = models.TaskType(taskType)
	t.Status = models.TaskStatus(status)
	t.AssignedAgent = agent.String
	t.BillingMode = models.BillingMode(billing.String)
	t.Error = errMsg.String
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// ListSessionTasks returns the stored runtime state of every task in a
// session, in task ID order.
func (db *DB) ListSessionTasks(sessionID string) ([]*models.Task, error) {
	rows, err := db.Query(`
		SELECT task_id, name, task_type, status, assigned_agent, billing_mode, accumulated_cost_usd, error, started_at, completed_at
		FROM session_tasks WHERE session_id = ? ORDER BY task_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var taskType, status string
		var agent, billing, errMsg, startedAt, completedAt sql.NullString
		if err := rows.Scan(&t.Def.ID, &t.Def.Name, &taskType, &status, &agent, &billing,
			&t.AccumulatedCostUSD, &errMsg, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Def.Type = models.TaskType(taskType)
		t.Status = models.TaskStatus(status)
		t.AssignedAgent = agent.String
		t.BillingMode = models.BillingMode(billing.String)
		t.Error = errMsg.String
		t.StartedAt = parseNullableTime(startedAt)
		t.CompletedAt = parseNullableTime(completedAt)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
