package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/convoy-run/convoy/pkg/models"
)

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a new session row.
func (db *DB) CreateSession(s *models.Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, name, graph_path, status, budget_usd, total_cost_usd, planning_cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Name, nullString(s.GraphPath), string(s.Status), s.BudgetUSD, s.TotalCostUSD, s.PlanningCostUSD, formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*models.Session, error) {
	row := db.QueryRow(`
		SELECT id, name, graph_path, status, budget_usd, total_cost_usd, planning_cost_usd, created_at
		FROM sessions WHERE id = ?
	`, id)

	var s models.Session
	var graphPath sql.NullString
	var status, createdAt string
	if err := row.Scan(&s.ID, &s.Name, &graphPath, &status, &s.BudgetUSD, &s.TotalCostUSD, &s.PlanningCostUSD, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.GraphPath = graphPath.String
	s.Status = models.SessionStatus(status)
	if t, err := parseTime(createdAt); err == nil {
		s.CreatedAt = t
	}
	return &s, nil
}

// UpdateSessionStatus sets the session's lifecycle status.
func (db *DB) UpdateSessionStatus(id string, status models.SessionStatus) error {
	res, err := db.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AddSessionCost atomically increments the session's running cost total and
// returns the new total. This is the single increment-and-persist primitive
// for session cost; callers never read-modify-write the total themselves.
func (db *DB) AddSessionCost(id string, deltaUSD float64) (float64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`
		UPDATE sessions SET total_cost_usd = total_cost_usd + ? WHERE id = ?
	`, deltaUSD, id)
	if err != nil {
		return 0, fmt.Errorf("add session cost: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("add session cost: %w", err)
	}
	if n == 0 {
		return 0, ErrSessionNotFound
	}

	var total float64
	row := db.conn.QueryRow(`SELECT total_cost_usd FROM sessions WHERE id = ?`, id)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("add session cost: %w", err)
	}
	return total, nil
}

// AddPlanningCost atomically increments the session's planning cost.
func (db *DB) AddPlanningCost(id string, deltaUSD float64) error {
	_, err := db.Exec(`
		UPDATE sessions SET planning_cost_usd = planning_cost_usd + ? WHERE id = ?
	`, deltaUSD, id)
	if err != nil {
		return fmt.Errorf("add planning cost: %w", err)
	}
	return nil
}

// ListSessions returns all sessions, newest first.
func (db *DB) ListSessions() ([]*models.Session, error) {
	rows, err := db.Query(`
		SELECT id, name, graph_path, status, budget_usd, total_cost_usd, planning_cost_usd, created_at
		FROM sessions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var s models.Session
		var graphPath sql.NullString
		var status, createdAt string
		if err := rows.Scan(&s.ID, &s.Name, &graphPath, &status, &s.BudgetUSD, &s.TotalCostUSD, &s.PlanningCostUSD, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.GraphPath = graphPath.String
		s.Status = models.SessionStatus(status)
		if t, err := parseTime(createdAt); err == nil {
			s.CreatedAt = t
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// PurgeOldSessions deletes sessions older than the specified duration.
// Returns the number of sessions deleted.
func (db *DB) PurgeOldSessions(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}
