package state

import (
	"fmt"
	"time"

	"github.com/convoy-run/convoy/pkg/models"
)

// InsertCostEntry appends one row to the cost ledger and returns its ID.
func (db *DB) InsertCostEntry(e *models.CostEntry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	res, err := db.Exec(`
		INSERT INTO cost_entries (task_id, session_id, agent, billing_mode, tokens_input, tokens_output, cost_usd, savings_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.TaskID, e.SessionID, e.Agent, string(e.BillingMode),
		e.TokensInput, e.TokensOutput, e.CostUSD, e.SavingsUSD, formatTime(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert cost entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert cost entry: %w", err)
	}
	e.ID = id
	return id, nil
}

// ListCostEntries returns all ledger rows for a session, oldest first.
func (db *DB) ListCostEntries(sessionID string) ([]*models.CostEntry, error) {
	rows, err := db.Query(`
		SELECT id, task_id, session_id, agent, billing_mode, tokens_input, tokens_output, cost_usd, savings_usd, created_at
		FROM cost_entries WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list cost entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.CostEntry
	for rows.Next() {
		var e models.CostEntry
		var billing, createdAt string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.SessionID, &e.Agent, &billing,
			&e.TokensInput, &e.TokensOutput, &e.CostUSD, &e.SavingsUSD, &createdAt); err != nil {
			return nil, fmt.Errorf("scan cost entry: %w", err)
		}
		e.BillingMode = models.BillingMode(billing)
		if t, err := parseTime(createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SessionSavings returns the summed savings for a session.
func (db *DB) SessionSavings(sessionID string) (float64, error) {
	var total float64
	row := db.QueryRow(`
		SELECT COALESCE(SUM(savings_usd), 0) FROM cost_entries WHERE session_id = ?
	`, sessionID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("session savings: %w", err)
	}
	return total, nil
}
