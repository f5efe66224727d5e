package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/overstory-run/overstory/internal/model"
)

var metricsMigrations = []string{
	`CREATE TABLE IF NOT EXISTS session_metrics (
		agent_name            TEXT NOT NULL,
		bead_id                TEXT NOT NULL,
		run_id                 TEXT NOT NULL DEFAULT '',
		parent_agent           TEXT NOT NULL DEFAULT '',
		input_tokens           INTEGER NOT NULL DEFAULT 0,
		output_tokens          INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens      INTEGER NOT NULL DEFAULT 0,
		cache_creation_tokens  INTEGER NOT NULL DEFAULT 0,
		estimated_cost_usd     REAL,
		model_used             TEXT NOT NULL DEFAULT '',
		duration_ms            INTEGER NOT NULL DEFAULT 0,
		merge_result           TEXT NOT NULL DEFAULT '',
		updated_at             TEXT NOT NULL,
		PRIMARY KEY (agent_name, bead_id)
	)`,
	`CREATE TABLE IF NOT EXISTS token_snapshots (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_name             TEXT NOT NULL,
		bead_id                TEXT NOT NULL DEFAULT '',
		input_tokens           INTEGER NOT NULL DEFAULT 0,
		output_tokens          INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens      INTEGER NOT NULL DEFAULT 0,
		cache_creation_tokens  INTEGER NOT NULL DEFAULT 0,
		estimated_cost_usd     REAL,
		model_used             TEXT NOT NULL DEFAULT '',
		created_at             TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_agent_created ON token_snapshots(agent_name, created_at)`,
}

// MetricsStore holds cumulative per-agent usage (SessionMetrics) and the
// periodic TokenSnapshot history a live cost-usage view reads from.
type MetricsStore struct {
	db *sql.DB
}

// OpenMetricsStore opens (or creates) the metrics database at path.
func OpenMetricsStore(path string) (*MetricsStore, error) {
	db, err := Open(path, metricsMigrations)
	if err != nil {
		return nil, err
	}
	return &MetricsStore{db: db}, nil
}

// Close closes the underlying database.
func (m *MetricsStore) Close() error {
	_, _ = m.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return m.db.Close()
}

// UpsertMetrics replaces the cumulative row for (AgentName, BeadID).
func (m *MetricsStore) UpsertMetrics(sm *model.SessionMetrics) error {
	if sm.UpdatedAt.IsZero() {
		sm.UpdatedAt = time.Now().UTC()
	}
	_, err := m.db.Exec(`
		INSERT INTO session_metrics (agent_name, bead_id, run_id, parent_agent, input_tokens,
			output_tokens, cache_read_tokens, cache_creation_tokens, estimated_cost_usd,
			model_used, duration_ms, merge_result, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_name, bead_id) DO UPDATE SET
			run_id=excluded.run_id, parent_agent=excluded.parent_agent,
			input_tokens=excluded.input_tokens, output_tokens=excluded.output_tokens,
			cache_read_tokens=excluded.cache_read_tokens, cache_creation_tokens=excluded.cache_creation_tokens,
			estimated_cost_usd=excluded.estimated_cost_usd, model_used=excluded.model_used,
			duration_ms=excluded.duration_ms, merge_result=excluded.merge_result, updated_at=excluded.updated_at
	`, sm.AgentName, sm.BeadID, sm.RunID, sm.ParentAgent, sm.InputTokens, sm.OutputTokens,
		sm.CacheReadTokens, sm.CacheCreationTokens, sm.EstimatedCostUsd, sm.ModelUsed,
		sm.DurationMs, sm.MergeResult, formatTime(sm.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting metrics for %q/%q: %w", sm.AgentName, sm.BeadID, err)
	}
	return nil
}

const metricsSelectCols = `SELECT agent_name, bead_id, run_id, parent_agent, input_tokens,
	output_tokens, cache_read_tokens, cache_creation_tokens, estimated_cost_usd,
	model_used, duration_ms, merge_result, updated_at`

// GetMetrics returns the cumulative row for (agentName, beadID), or
// (nil, nil) if none exists.
func (m *MetricsStore) GetMetrics(agentName, beadID string) (*model.SessionMetrics, error) {
	row := m.db.QueryRow(metricsSelectCols+` FROM session_metrics WHERE agent_name = ? AND bead_id = ?`,
		agentName, beadID)
	sm, err := scanMetrics(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting metrics for %q/%q: %w", agentName, beadID, err)
	}
	return sm, nil
}

// MetricsForRun returns every cumulative row tied to a run.
func (m *MetricsStore) MetricsForRun(runID string) ([]*model.SessionMetrics, error) {
	rows, err := m.db.Query(metricsSelectCols+` FROM session_metrics WHERE run_id = ? ORDER BY updated_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing metrics for run %q: %w", runID, err)
	}
	defer rows.Close()

	var out []*model.SessionMetrics
	for rows.Next() {
		sm, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning metrics row: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// RecordSnapshot appends a point-in-time usage observation, the raw
// material the cost-usage dashboard renders from.
func (m *MetricsStore) RecordSnapshot(ts *model.TokenSnapshot) (int64, error) {
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = time.Now().UTC()
	}
	res, err := m.db.Exec(`
		INSERT INTO token_snapshots (agent_name, bead_id, input_tokens, output_tokens,
			cache_read_tokens, cache_creation_tokens, estimated_cost_usd, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ts.AgentName, ts.BeadID, ts.InputTokens, ts.OutputTokens, ts.CacheReadTokens,
		ts.CacheCreationTokens, ts.EstimatedCostUsd, ts.ModelUsed, formatTime(ts.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("recording snapshot for %q: %w", ts.AgentName, err)
	}
	return res.LastInsertId()
}

// perMillionTokenRates gives approximate USD-per-million-token input/output
// pricing for each model the cost-tier overrides can select (see
// internal/config/costtier.go). An unrecognized or empty model name (the
// runner's own default) prices at the sonnet rate.
var perMillionTokenRates = map[string][2]float64{
	"claude-opus-4":   {15.0, 75.0},
	"claude-sonnet-4": {3.0, 15.0},
	"claude-haiku-4":  {0.8, 4.0},
}

const defaultRateModel = "claude-sonnet-4"

// EstimateCostUsd prices a usage observation against the per-model rate
// table. Cache-creation tokens are charged at the input rate; cache-read
// tokens, being far cheaper than a fresh input token, are charged at a
// tenth of it.
func EstimateCostUsd(modelUsed string, inputTokens, outputTokens, cacheReadTokens, cacheCreationTokens int) float64 {
	rates, ok := perMillionTokenRates[modelUsed]
	if !ok {
		rates = perMillionTokenRates[defaultRateModel]
	}
	const perMillion = 1_000_000.0
	inputCost := float64(inputTokens+cacheCreationTokens) / perMillion * rates[0]
	cacheCost := float64(cacheReadTokens) / perMillion * rates[0] * 0.1
	outputCost := float64(outputTokens) / perMillion * rates[1]
	return inputCost + cacheCost + outputCost
}

// CumulativeCostForAgent sums the estimated cost across every bead
// recorded for agentName in session_metrics, the running total a
// cost-usage view reports alongside the agent's latest live TokenSnapshot.
func (m *MetricsStore) CumulativeCostForAgent(agentName string) (float64, error) {
	row := m.db.QueryRow(`SELECT COALESCE(SUM(estimated_cost_usd), 0) FROM session_metrics WHERE agent_name = ?`, agentName)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("summing cost for %q: %w", agentName, err)
	}
	return total, nil
}

// GetLatestSnapshots returns the most recent TokenSnapshot for every agent
// that has one, the feed that powers the live cost-usage view.
func (m *MetricsStore) GetLatestSnapshots() ([]*model.TokenSnapshot, error) {
	rows, err := m.db.Query(`
		SELECT t.id, t.agent_name, t.bead_id, t.input_tokens, t.output_tokens,
			t.cache_read_tokens, t.cache_creation_tokens, t.estimated_cost_usd,
			t.model_used, t.created_at
		FROM token_snapshots t
		WHERE t.id = (
			SELECT t2.id FROM token_snapshots t2
			WHERE t2.agent_name = t.agent_name
			ORDER BY t2.created_at DESC, t2.id DESC
			LIMIT 1
		)
		ORDER BY t.agent_name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing latest snapshots: %w", err)
	}
	defer rows.Close()

	var out []*model.TokenSnapshot
	for rows.Next() {
		var ts model.TokenSnapshot
		var createdAt string
		err := rows.Scan(&ts.ID, &ts.AgentName, &ts.BeadID, &ts.InputTokens, &ts.OutputTokens,
			&ts.CacheReadTokens, &ts.CacheCreationTokens, &ts.EstimatedCostUsd, &ts.ModelUsed, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		ts.CreatedAt = parseTime(createdAt)
		out = append(out, &ts)
	}
	return out, rows.Err()
}

func scanMetrics(row scanner) (*model.SessionMetrics, error) {
	var sm model.SessionMetrics
	var updatedAt string
	err := row.Scan(&sm.AgentName, &sm.BeadID, &sm.RunID, &sm.ParentAgent, &sm.InputTokens,
		&sm.OutputTokens, &sm.CacheReadTokens, &sm.CacheCreationTokens, &sm.EstimatedCostUsd,
		&sm.ModelUsed, &sm.DurationMs, &sm.MergeResult, &updatedAt)
	if err != nil {
		return nil, err
	}
	sm.UpdatedAt = parseTime(updatedAt)
	return &sm, nil
}
