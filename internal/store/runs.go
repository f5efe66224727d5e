package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/model"
)

// CreateRun inserts a new active run and returns it.
func (s *SessionStore) CreateRun(id string) (*model.Run, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, completed_at, agent_count, coordinator_session_id, status)
		VALUES (?, ?, NULL, 0, NULL, ?)
	`, id, formatTime(now), constants.RunActive)
	if err != nil {
		return nil, fmt.Errorf("creating run %q: %w", id, err)
	}
	return &model.Run{ID: id, StartedAt: now, Status: constants.RunActive}, nil
}

// GetRun returns a run by ID, or (nil, nil) if it doesn't exist.
func (s *SessionStore) GetRun(id string) (*model.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, completed_at, agent_count, coordinator_session_id, status
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %q: %w", id, err)
	}
	return run, nil
}

// CompleteRun marks a run finished with the given terminal status
// (completed or aborted) and stamps CompletedAt.
func (s *SessionStore) CompleteRun(id, status string) error {
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, completed_at = ? WHERE id = ?
	`, status, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("completing run %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no run %q", id)
	}
	return nil
}

// IncrementAgentCount bumps a run's AgentCount by one, used each time a new
// agent is slung into the run.
func (s *SessionStore) IncrementAgentCount(id string) error {
	res, err := s.db.Exec(`UPDATE runs SET agent_count = agent_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing agent count for run %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no run %q", id)
	}
	return nil
}

// SetCoordinatorSession records which session ID owns a run's coordinator
// seat.
func (s *SessionStore) SetCoordinatorSession(runID, sessionID string) error {
	res, err := s.db.Exec(`UPDATE runs SET coordinator_session_id = ? WHERE id = ?`, sessionID, runID)
	if err != nil {
		return fmt.Errorf("setting coordinator session for run %q: %w", runID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no run %q", runID)
	}
	return nil
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var completedAt, coordSessionID sql.NullString
	var startedAt string

	err := row.Scan(&run.ID, &startedAt, &completedAt, &run.AgentCount, &coordSessionID, &run.Status)
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		run.CompletedAt = &t
	}
	if coordSessionID.Valid {
		run.CoordinatorSessionID = &coordSessionID.String
	}
	return &run, nil
}
