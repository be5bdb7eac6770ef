// Package index provides a SQLite-backed search index over the archive and a
// log of publish attempts. The index is a cache: Sync rebuilds it from the
// archive files at any time.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	path          TEXT PRIMARY KEY,
	date          TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	content_id    TEXT NOT NULL DEFAULT '',
	remote_ids    TEXT NOT NULL DEFAULT '{}',
	checksum      TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL DEFAULT '',
	last_modified DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entries_date ON entries(date);

CREATE TABLE IF NOT EXISTS publishes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	date       TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	target     TEXT NOT NULL,
	status     TEXT NOT NULL,
	remote_id  TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	dry_run    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_publishes_date ON publishes(date);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
