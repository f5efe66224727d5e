package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/overstory-run/overstory/internal/model"
)

var mergeQueueMigrations = []string{
	`CREATE TABLE IF NOT EXISTS merge_queue (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		branch_name     TEXT NOT NULL,
		bead_id         TEXT NOT NULL,
		agent_name      TEXT NOT NULL,
		files_modified  TEXT NOT NULL DEFAULT '[]',
		status          TEXT NOT NULL DEFAULT 'pending',
		enqueued_at     TEXT NOT NULL,
		resolved_tier   INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_merge_queue_status ON merge_queue(status)`,
}

// MergeQueueStore holds branches waiting to merge back, one row per
// completed worker, ordered for serial processing.
type MergeQueueStore struct {
	db *sql.DB
}

// OpenMergeQueueStore opens (or creates) the merge queue database at path.
func OpenMergeQueueStore(path string) (*MergeQueueStore, error) {
	db, err := Open(path, mergeQueueMigrations)
	if err != nil {
		return nil, err
	}
	return &MergeQueueStore{db: db}, nil
}

// Close closes the underlying database.
func (q *MergeQueueStore) Close() error {
	_, _ = q.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return q.db.Close()
}

// Enqueue inserts a pending merge entry and returns its assigned ID.
func (q *MergeQueueStore) Enqueue(entry *model.MergeQueueEntry) (int64, error) {
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = "pending"
	}
	files, err := json.Marshal(entry.FilesModified)
	if err != nil {
		return 0, fmt.Errorf("marshaling files for %q: %w", entry.BranchName, err)
	}
	res, err := q.db.Exec(`
		INSERT INTO merge_queue (branch_name, bead_id, agent_name, files_modified, status, enqueued_at, resolved_tier)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.BranchName, entry.BeadID, entry.AgentName, string(files), entry.Status,
		formatTime(entry.EnqueuedAt), nullableInt(entry.ResolvedTier))
	if err != nil {
		return 0, fmt.Errorf("enqueuing merge entry for %q: %w", entry.BranchName, err)
	}
	return res.LastInsertId()
}

const mergeQueueSelectCols = `SELECT id, branch_name, bead_id, agent_name, files_modified,
	status, enqueued_at, resolved_tier`

// Pending returns queued entries in FIFO order (oldest enqueued first),
// the order merges are actually attempted in.
func (q *MergeQueueStore) Pending() ([]*model.MergeQueueEntry, error) {
	rows, err := q.db.Query(mergeQueueSelectCols+` FROM merge_queue WHERE status = ? ORDER BY enqueued_at ASC`,
		model.MergeStatusPending)
	if err != nil {
		return nil, fmt.Errorf("listing pending merge entries: %w", err)
	}
	defer rows.Close()
	return scanMergeEntries(rows)
}

// Get returns a single entry by ID, or (nil, nil) if it doesn't exist.
func (q *MergeQueueStore) Get(id int64) (*model.MergeQueueEntry, error) {
	row := q.db.QueryRow(mergeQueueSelectCols+` FROM merge_queue WHERE id = ?`, id)
	entry, err := scanMergeEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting merge entry %d: %w", id, err)
	}
	return entry, nil
}

// UpdateStatus transitions an entry's status, optionally recording the
// conflict-resolution tier that handled it.
func (q *MergeQueueStore) UpdateStatus(id int64, status string, resolvedTier *int) error {
	res, err := q.db.Exec(`UPDATE merge_queue SET status = ?, resolved_tier = ? WHERE id = ?`,
		status, nullableInt(resolvedTier), id)
	if err != nil {
		return fmt.Errorf("updating merge entry %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no merge entry %d", id)
	}
	return nil
}

// PurgeResolved deletes merged and rejected entries enqueued before
// cutoff, mirroring the other stores' time-bounded purge.
func (q *MergeQueueStore) PurgeResolved(cutoff time.Time) (int, error) {
	res, err := q.db.Exec(`
		DELETE FROM merge_queue
		WHERE status IN (?, ?) AND enqueued_at < ?
	`, model.MergeStatusMerged, model.MergeStatusRejected, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purging resolved merge entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanMergeEntry(row scanner) (*model.MergeQueueEntry, error) {
	var entry model.MergeQueueEntry
	var filesJSON, enqueuedAt string
	var resolvedTier sql.NullInt64
	err := row.Scan(&entry.ID, &entry.BranchName, &entry.BeadID, &entry.AgentName, &filesJSON,
		&entry.Status, &enqueuedAt, &resolvedTier)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(filesJSON), &entry.FilesModified); err != nil {
		return nil, fmt.Errorf("unmarshaling files for entry %d: %w", entry.ID, err)
	}
	entry.EnqueuedAt = parseTime(enqueuedAt)
	if resolvedTier.Valid {
		v := int(resolvedTier.Int64)
		entry.ResolvedTier = &v
	}
	return &entry, nil
}

func scanMergeEntries(rows *sql.Rows) ([]*model.MergeQueueEntry, error) {
	var out []*model.MergeQueueEntry
	for rows.Next() {
		entry, err := scanMergeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning merge entry row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
