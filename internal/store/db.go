// Package store holds the SQLite-backed registries and append-only tables
// that back Overstory's control plane: the session and run registry, the
// mail store, the event store, and the metrics store. Every store opens
// its database in WAL mode with a 5s busy-timeout retry, giving
// multiple-reader/single-writer concurrency without ad-hoc locks.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/overstory-run/overstory/internal/constants"
)

// Open opens (creating if necessary) a SQLite database at path with WAL
// mode and a busy-timeout retry, and applies schema migration statements
// in order. Migrations must be idempotent (CREATE TABLE IF NOT EXISTS,
// additive ALTER TABLE column adds) since Open runs them on every start.
func Open(path string, migrations []string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		path, constants.SQLiteBusyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// SQLite only truly supports one writer at a time; a single open
	// connection avoids SQLITE_BUSY churn from Go's connection pool
	// fighting itself, while WAL mode still lets external readers proceed.
	db.SetMaxOpenConns(1)

	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying migration %d to %s: %w", i, path, err)
		}
	}
	return db, nil
}
