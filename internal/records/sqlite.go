// Package records provides the SQLite-backed file record store: one row per
// tracked vault file, carrying metadata and processing status.
package records

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	path               TEXT PRIMARY KEY,
	kind               TEXT,
	content_hash       TEXT,
	size_bytes         INTEGER,
	modified_at        DATETIME,
	status             TEXT NOT NULL DEFAULT 'unprocessed',
	retry_count        INTEGER NOT NULL DEFAULT 0,
	last_error         TEXT,
	linked_document_id TEXT,
	progress_percent   INTEGER NOT NULL DEFAULT 0,
	started_at         DATETIME,
	completed_at       DATETIME,
	next_retry_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
`

// DB wraps a sql.DB with file-record operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("records: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("records: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("records: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
