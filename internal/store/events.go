package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/model"
)

var eventMigrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id            TEXT NOT NULL DEFAULT '',
		agent_name        TEXT NOT NULL,
		session_id        TEXT NOT NULL DEFAULT '',
		event_type        TEXT NOT NULL,
		tool_name         TEXT NOT NULL DEFAULT '',
		tool_args         BLOB,
		tool_duration_ms  INTEGER,
		level             TEXT NOT NULL DEFAULT 'info',
		data              BLOB,
		created_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_name)`,
	`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type)`,
}

// EventStore is the append-only log hook intake writes to: tool starts,
// tool ends (correlated back to their start), session ends, and errors.
type EventStore struct {
	db *sql.DB
}

// OpenEventStore opens (or creates) the events database at path.
func OpenEventStore(path string) (*EventStore, error) {
	db, err := Open(path, eventMigrations)
	if err != nil {
		return nil, err
	}
	return &EventStore{db: db}, nil
}

// Close closes the underlying database.
func (e *EventStore) Close() error {
	_, _ = e.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return e.db.Close()
}

// Append writes one event row and returns its assigned ID.
func (e *EventStore) Append(ev *model.Event) (int64, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	res, err := e.db.Exec(`
		INSERT INTO events (run_id, agent_name, session_id, event_type, tool_name,
			tool_args, tool_duration_ms, level, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.RunID, ev.AgentName, ev.SessionID, ev.EventType, ev.ToolName,
		ev.ToolArgs, nullableInt64(ev.ToolDurationMs), ev.Level, ev.Data, formatTime(ev.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("appending event for %q: %w", ev.AgentName, err)
	}
	return res.LastInsertId()
}

// CorrelateToolEnd finds the most recent unclosed tool_start event for the
// same agent and tool, stamps its ToolDurationMs, and appends the tool_end
// event — the pairing that turns two independent hook calls into one
// measured tool invocation.
func (e *EventStore) CorrelateToolEnd(end *model.Event) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning tool_end correlation: %w", err)
	}
	defer tx.Rollback()

	var startID int64
	var startedAt string
	row := tx.QueryRow(`
		SELECT id, created_at FROM events
		WHERE agent_name = ? AND tool_name = ? AND event_type = ?
			AND tool_duration_ms IS NULL
		ORDER BY created_at DESC LIMIT 1
	`, end.AgentName, end.ToolName, constants.EventToolStart)
	if scanErr := row.Scan(&startID, &startedAt); scanErr == nil {
		start := parseTime(startedAt)
		if end.CreatedAt.IsZero() {
			end.CreatedAt = time.Now().UTC()
		}
		durationMs := end.CreatedAt.Sub(start).Milliseconds()
		if _, err := tx.Exec(`UPDATE events SET tool_duration_ms = ? WHERE id = ?`, durationMs, startID); err != nil {
			return fmt.Errorf("stamping tool_start duration: %w", err)
		}
		end.ToolDurationMs = &durationMs
	}
	// No matching tool_start is tolerated: the hook may have missed it
	// (process restart mid-tool), and the tool_end is still worth recording.

	if end.CreatedAt.IsZero() {
		end.CreatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO events (run_id, agent_name, session_id, event_type, tool_name,
			tool_args, tool_duration_ms, level, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, end.RunID, end.AgentName, end.SessionID, end.EventType, end.ToolName,
		end.ToolArgs, nullableInt64(end.ToolDurationMs), end.Level, end.Data, formatTime(end.CreatedAt))
	if err != nil {
		return fmt.Errorf("appending tool_end event for %q: %w", end.AgentName, err)
	}
	return tx.Commit()
}

// ForAgent returns an agent's events, oldest first, optionally filtered to
// a run.
func (e *EventStore) ForAgent(agentName, runID string) ([]*model.Event, error) {
	query := eventSelectCols + ` FROM events WHERE agent_name = ?`
	args := []any{agentName}
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events for %q: %w", agentName, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ToolStats summarizes tool usage for one agent.
type ToolStats struct {
	ToolName      string
	CallCount     int64
	TotalDuration int64
	AvgDuration   float64
}

// GetToolStats aggregates completed (duration-stamped) tool calls per tool
// name for an agent.
func (e *EventStore) GetToolStats(agentName string) ([]ToolStats, error) {
	rows, err := e.db.Query(`
		SELECT tool_name, COUNT(*), COALESCE(SUM(tool_duration_ms), 0), COALESCE(AVG(tool_duration_ms), 0)
		FROM events
		WHERE agent_name = ? AND event_type = ? AND tool_duration_ms IS NOT NULL
		GROUP BY tool_name
		ORDER BY COUNT(*) DESC
	`, agentName, constants.EventToolEnd)
	if err != nil {
		return nil, fmt.Errorf("aggregating tool stats for %q: %w", agentName, err)
	}
	defer rows.Close()

	var out []ToolStats
	for rows.Next() {
		var ts ToolStats
		if err := rows.Scan(&ts.ToolName, &ts.CallCount, &ts.TotalDuration, &ts.AvgDuration); err != nil {
			return nil, fmt.Errorf("scanning tool stats row: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

const eventSelectCols = `SELECT id, run_id, agent_name, session_id, event_type, tool_name,
	tool_args, tool_duration_ms, level, data, created_at`

func scanEvent(row scanner) (*model.Event, error) {
	var ev model.Event
	var duration sql.NullInt64
	var createdAt string
	err := row.Scan(&ev.ID, &ev.RunID, &ev.AgentName, &ev.SessionID, &ev.EventType, &ev.ToolName,
		&ev.ToolArgs, &duration, &ev.Level, &ev.Data, &createdAt)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		d := duration.Int64
		ev.ToolDurationMs = &d
	}
	ev.CreatedAt = parseTime(createdAt)
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var out []*model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
