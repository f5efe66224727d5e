package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/overstory-run/overstory/internal/model"
)

var mailMigrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		from_agent  TEXT NOT NULL,
		to_agent    TEXT NOT NULL,
		subject     TEXT NOT NULL DEFAULT '',
		body        TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL,
		priority    TEXT NOT NULL DEFAULT 'normal',
		thread_id   TEXT NOT NULL DEFAULT '',
		payload     BLOB,
		read        INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_to_read ON messages(to_agent, read)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id)`,
}

// MailStore is the append-only inbox every agent reads and writes through.
type MailStore struct {
	db *sql.DB
}

// OpenMailStore opens (or creates) the mail database at path.
func OpenMailStore(path string) (*MailStore, error) {
	db, err := Open(path, mailMigrations)
	if err != nil {
		return nil, err
	}
	return &MailStore{db: db}, nil
}

// Close closes the underlying database.
func (m *MailStore) Close() error {
	_, _ = m.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return m.db.Close()
}

// Send inserts a message addressed to one agent. Delivery beyond the
// database row — a nudge, a tmux send-keys — is the caller's job.
func (m *MailStore) Send(msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := m.db.Exec(`
		INSERT INTO messages (id, from_agent, to_agent, subject, body, type, priority,
			thread_id, payload, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, msg.ID, msg.From, msg.To, msg.Subject, msg.Body, msg.Type, msg.Priority,
		msg.ThreadID, msg.Payload, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("sending message %q: %w", msg.ID, err)
	}
	return nil
}

const messageSelectCols = `SELECT id, from_agent, to_agent, subject, body, type, priority,
	thread_id, payload, read, created_at`

// Inbox returns an agent's messages, newest first. If unreadOnly is true,
// already-read messages are excluded.
func (m *MailStore) Inbox(agentName string, unreadOnly bool) ([]*model.Message, error) {
	query := messageSelectCols + ` FROM messages WHERE to_agent = ?`
	args := []any{agentName}
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inbox for %q: %w", agentName, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Thread returns every message sharing a thread ID, oldest first.
func (m *MailStore) Thread(threadID string) ([]*model.Message, error) {
	rows, err := m.db.Query(messageSelectCols+` FROM messages WHERE thread_id = ? ORDER BY created_at ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("listing thread %q: %w", threadID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Get returns a single message by ID, or (nil, nil) if it doesn't exist.
func (m *MailStore) Get(id string) (*model.Message, error) {
	row := m.db.QueryRow(messageSelectCols+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %q: %w", id, err)
	}
	return msg, nil
}

// MarkRead flips a message's read flag.
func (m *MailStore) MarkRead(id string) error {
	res, err := m.db.Exec(`UPDATE messages SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking message %q read: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no message %q", id)
	}
	return nil
}

// Purge deletes every message older than before, used by periodic cleanup.
func (m *MailStore) Purge(before time.Time) (int, error) {
	res, err := m.db.Exec(`DELETE FROM messages WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purging messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanMessage(row scanner) (*model.Message, error) {
	var msg model.Message
	var createdAt string
	var readInt int
	err := row.Scan(&msg.ID, &msg.From, &msg.To, &msg.Subject, &msg.Body, &msg.Type, &msg.Priority,
		&msg.ThreadID, &msg.Payload, &readInt, &createdAt)
	if err != nil {
		return nil, err
	}
	msg.Read = readInt != 0
	msg.CreatedAt = parseTime(createdAt)
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	var out []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
