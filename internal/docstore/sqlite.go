// Package docstore provides the SQLite-backed dual store: document and
// chunk rows on the relational side, embedding vectors stored per chunk.
package docstore

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/laguz/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	checksum   TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page        INTEGER NOT NULL,
	seq         INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   BLOB,
	PRIMARY KEY (document_id, page, seq)
);
`

// DB wraps a sql.DB with dual-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("docstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// StoreDocument inserts a document with its chunks and vectors in one
// transaction. Idempotent on checksum.
func (db *DB) StoreDocument(path, checksum, title string, chunks []models.ChunkUnit, vectors [][]float32, pageCount int) (*StoreResult, error) {
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("docstore: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	// Dedup lookup outside the insert transaction: same checksum means the
	// identical content is already stored.
	if res, err := db.lookupByChecksum(checksum); err == nil {
		return res, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	id := uuid.NewString()
	_, err = tx.Exec(`
		INSERT INTO documents (id, path, checksum, title, page_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, path, checksum, title, pageCount, time.Now().UTC())
	if err != nil {
		// A concurrent insert of the same checksum wins the race; return it.
		if res, lookupErr := db.lookupByChecksum(checksum); lookupErr == nil {
			return res, nil
		}
		return nil, fmt.Errorf("docstore: insert document: %w", err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO chunks (document_id, page, seq, text, embedding) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return nil, fmt.Errorf("docstore: prepare chunk insert: %w", err)
		}
		defer stmt.Close()
		for i, c := range chunks {
			if _, err := stmt.Exec(id, c.Page, c.Seq, c.Text, encodeVector(vectors[i])); err != nil {
				return nil, fmt.Errorf("docstore: insert chunk %d/%d: %w", c.Page, c.Seq, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("docstore: commit: %w", err)
	}
	return &StoreResult{DocumentID: id, Status: StatusCreated, ChunksStored: len(chunks)}, nil
}

// DeleteDocument removes a document and (via cascade) its chunks.
func (db *DB) DeleteDocument(documentID string) error {
	if _, err := db.conn.Exec(`DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("docstore: delete %s: %w", documentID, err)
	}
	return nil
}

func (db *DB) lookupByChecksum(checksum string) (*StoreResult, error) {
	var id string
	err := db.conn.QueryRow(`SELECT id FROM documents WHERE checksum = ?`, checksum).Scan(&id)
	if err != nil {
		return nil, err
	}
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM chunks WHERE document_id = ?`, id).Scan(&n); err != nil {
		return nil, fmt.Errorf("docstore: count chunks: %w", err)
	}
	return &StoreResult{DocumentID: id, Status: StatusExists, ChunksStored: n}, nil
}

// encodeVector packs a float32 slice as little-endian bytes for BLOB storage.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}
