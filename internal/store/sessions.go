package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/overstory-run/overstory/internal/constants"
	"github.com/overstory-run/overstory/internal/model"
)

var sessionMigrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		agent_name        TEXT PRIMARY KEY,
		id                TEXT NOT NULL,
		capability        TEXT NOT NULL,
		worktree_path     TEXT NOT NULL,
		branch_name       TEXT NOT NULL,
		bead_id           TEXT NOT NULL DEFAULT '',
		tmux_session      TEXT NOT NULL,
		state             TEXT NOT NULL,
		pid               INTEGER,
		parent_agent      TEXT,
		depth             INTEGER NOT NULL DEFAULT 0,
		run_id            TEXT,
		started_at        TEXT NOT NULL,
		last_activity     TEXT NOT NULL,
		stalled_since     TEXT,
		escalation_level  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_run_id ON sessions(run_id)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id                       TEXT PRIMARY KEY,
		started_at               TEXT NOT NULL,
		completed_at             TEXT,
		agent_count              INTEGER NOT NULL DEFAULT 0,
		coordinator_session_id   TEXT,
		status                   TEXT NOT NULL DEFAULT 'active'
	)`,
}

// validCapabilities and validStates enforce the fixed capability and state
// sets. SQLite CHECK constraints are avoided here so a rejected row gets a
// clearer Go error instead of a driver-level constraint message.
var validCapabilities = map[string]bool{
	constants.CapabilityCoordinator: true,
	constants.CapabilityMonitor:     true,
	constants.CapabilityLead:        true,
	constants.CapabilityScout:       true,
	constants.CapabilityBuilder:     true,
	constants.CapabilityReviewer:    true,
	constants.CapabilityMerger:      true,
}

var validStates = map[string]bool{
	constants.StateBooting:   true,
	constants.StateWorking:   true,
	constants.StateStalled:   true,
	constants.StateCompleted: true,
	constants.StateZombie:    true,
}

// SessionStore is the authoritative, concurrently-accessed database of
// live sessions and the runs they belong to.
type SessionStore struct {
	db *sql.DB
}

// OpenSessionStore opens (or creates) the session+run registry at path.
// If the database file did not exist before this call and a legacy JSON
// file is present at legacyPath, its rows are imported, so the import runs
// at most once per database file; migrated reports whether that import ran.
func OpenSessionStore(path, legacyPath string) (store *SessionStore, migrated bool, err error) {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)
	db, err := Open(path, sessionMigrations)
	if err != nil {
		return nil, false, err
	}
	s := &SessionStore{db: db}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		db.Close()
		return nil, false, fmt.Errorf("counting sessions: %w", err)
	}
	if fresh && count == 0 && legacyPath != "" {
		legacy, readErr := readLegacySessions(legacyPath)
		if readErr == nil && len(legacy) > 0 {
			for _, sess := range legacy {
				if err := s.Upsert(sess); err != nil {
					db.Close()
					return nil, false, fmt.Errorf("importing legacy session %q: %w", sess.AgentName, err)
				}
			}
			migrated = true
		}
	}

	return s, migrated, nil
}

// Close checkpoints the WAL and closes the database, best-effort.
func (s *SessionStore) Close() error {
	_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return s.db.Close()
}

// Upsert inserts or replaces a session row keyed on AgentName. All fields
// replace on conflict.
func (s *SessionStore) Upsert(sess *model.AgentSession) error {
	if !validCapabilities[sess.Capability] {
		return fmt.Errorf("invalid capability %q", sess.Capability)
	}
	if !validStates[sess.State] {
		return fmt.Errorf("invalid state %q", sess.State)
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (agent_name, id, capability, worktree_path, branch_name,
			bead_id, tmux_session, state, pid, parent_agent, depth, run_id,
			started_at, last_activity, stalled_since, escalation_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_name) DO UPDATE SET
			id=excluded.id, capability=excluded.capability, worktree_path=excluded.worktree_path,
			branch_name=excluded.branch_name, bead_id=excluded.bead_id, tmux_session=excluded.tmux_session,
			state=excluded.state, pid=excluded.pid, parent_agent=excluded.parent_agent, depth=excluded.depth,
			run_id=excluded.run_id, started_at=excluded.started_at, last_activity=excluded.last_activity,
			stalled_since=excluded.stalled_since, escalation_level=excluded.escalation_level
	`,
		sess.AgentName, sess.ID, sess.Capability, sess.WorktreePath, sess.BranchName,
		sess.BeadID, sess.TmuxSession, sess.State, nullableInt(sess.PID), nullableStr(sess.ParentAgent),
		sess.Depth, nullableStr(sess.RunID), formatTime(sess.StartedAt), formatTime(sess.LastActivity),
		formatTimePtr(sess.StalledSince), sess.EscalationLevel,
	)
	if err != nil {
		return fmt.Errorf("upserting session %q: %w", sess.AgentName, err)
	}
	return nil
}

// GetByName returns the session with the given agent name, or (nil, nil)
// if none exists.
func (s *SessionStore) GetByName(name string) (*model.AgentSession, error) {
	row := s.db.QueryRow(sessionSelectCols+` FROM sessions WHERE agent_name = ?`, name)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %q: %w", name, err)
	}
	return sess, nil
}

// GetAll returns every known session.
func (s *SessionStore) GetAll() ([]*model.AgentSession, error) {
	rows, err := s.db.Query(sessionSelectCols + ` FROM sessions ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetActive returns sessions whose state is booting, working, or stalled,
// ordered by StartedAt.
func (s *SessionStore) GetActive() ([]*model.AgentSession, error) {
	rows, err := s.db.Query(sessionSelectCols+` FROM sessions
		WHERE state IN (?, ?, ?) ORDER BY started_at`,
		constants.StateBooting, constants.StateWorking, constants.StateStalled)
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetByRun returns every session belonging to a run.
func (s *SessionStore) GetByRun(runID string) ([]*model.AgentSession, error) {
	rows, err := s.db.Query(sessionSelectCols+` FROM sessions WHERE run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions for run %q: %w", runID, err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// UpdateState transitions a session to a new state.
func (s *SessionStore) UpdateState(name, state string) error {
	if !validStates[state] {
		return fmt.Errorf("invalid state %q", state)
	}
	res, err := s.db.Exec(`UPDATE sessions SET state = ? WHERE agent_name = ?`, state, name)
	if err != nil {
		return fmt.Errorf("updating state for %q: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

// UpdateLastActivity writes the current time as a session's LastActivity.
func (s *SessionStore) UpdateLastActivity(name string) error {
	res, err := s.db.Exec(`UPDATE sessions SET last_activity = ? WHERE agent_name = ?`,
		formatTime(time.Now().UTC()), name)
	if err != nil {
		return fmt.Errorf("updating last activity for %q: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

// UpdateEscalation sets a session's escalation level and stalled-since
// timestamp (nil clears it).
func (s *SessionStore) UpdateEscalation(name string, level int, stalledSince *time.Time) error {
	res, err := s.db.Exec(`UPDATE sessions SET escalation_level = ?, stalled_since = ? WHERE agent_name = ?`,
		level, formatTimePtr(stalledSince), name)
	if err != nil {
		return fmt.Errorf("updating escalation for %q: %w", name, err)
	}
	return requireRowsAffected(res, name)
}

// Remove deletes a session row.
func (s *SessionStore) Remove(name string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE agent_name = ?`, name)
	if err != nil {
		return fmt.Errorf("removing session %q: %w", name, err)
	}
	return nil
}

// PurgeFilter selects which sessions Purge removes.
type PurgeFilter struct {
	All       bool
	State     string // purge sessions in this state only
	AgentName string // purge a single named session
}

// Purge deletes sessions matching filter and returns the count deleted.
func (s *SessionStore) Purge(filter PurgeFilter) (int, error) {
	var res sql.Result
	var err error
	switch {
	case filter.All:
		res, err = s.db.Exec(`DELETE FROM sessions`)
	case filter.AgentName != "":
		res, err = s.db.Exec(`DELETE FROM sessions WHERE agent_name = ?`, filter.AgentName)
	case filter.State != "":
		res, err = s.db.Exec(`DELETE FROM sessions WHERE state = ?`, filter.State)
	default:
		return 0, fmt.Errorf("purge filter must specify all, state, or agentName")
	}
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const sessionSelectCols = `SELECT agent_name, id, capability, worktree_path, branch_name,
	bead_id, tmux_session, state, pid, parent_agent, depth, run_id,
	started_at, last_activity, stalled_since, escalation_level`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.AgentSession, error) {
	var sess model.AgentSession
	var pid sql.NullInt64
	var parentAgent, runID, stalledSince sql.NullString
	var startedAt, lastActivity string

	err := row.Scan(&sess.AgentName, &sess.ID, &sess.Capability, &sess.WorktreePath, &sess.BranchName,
		&sess.BeadID, &sess.TmuxSession, &sess.State, &pid, &parentAgent, &sess.Depth, &runID,
		&startedAt, &lastActivity, &stalledSince, &sess.EscalationLevel)
	if err != nil {
		return nil, err
	}
	if pid.Valid {
		v := int(pid.Int64)
		sess.PID = &v
	}
	if parentAgent.Valid {
		sess.ParentAgent = &parentAgent.String
	}
	if runID.Valid {
		sess.RunID = &runID.String
	}
	sess.StartedAt = parseTime(startedAt)
	sess.LastActivity = parseTime(lastActivity)
	if stalledSince.Valid {
		t := parseTime(stalledSince.String)
		sess.StalledSince = &t
	}
	return &sess, nil
}

func scanSessions(rows *sql.Rows) ([]*model.AgentSession, error) {
	var out []*model.AgentSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func requireRowsAffected(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no session named %q", name)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02T15:04:05.000Z", s)
	if err != nil {
		// Tolerate plain RFC3339 too, in case of hand-edited legacy data.
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2
		}
		return time.Time{}
	}
	return t
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
