package docstore

import "github.com/starford/laguz/internal/models"

// StoreStatus tells whether a StoreDocument call inserted a new document or
// found an existing one with the same checksum.
type StoreStatus string

const (
	StatusCreated StoreStatus = "created"
	StatusExists  StoreStatus = "exists"
)

// StoreResult is the outcome of a StoreDocument call.
type StoreResult struct {
	DocumentID   string      `json:"document_id"`
	Status       StoreStatus `json:"status"`
	ChunksStored int         `json:"chunks_stored"`
}

// Store persists extracted documents: chunk rows to the relational side and
// their vectors alongside, de-duplicated by content checksum.
type Store interface {
	// StoreDocument persists a document and its embedded chunks. It is
	// idempotent on checksum: if a document with the same checksum already
	// exists, the existing id and chunk count are returned and nothing is
	// re-inserted. len(vectors) must equal len(chunks).
	StoreDocument(path, checksum, title string, chunks []models.ChunkUnit, vectors [][]float32, pageCount int) (*StoreResult, error)

	// DeleteDocument removes a document and its chunks by id. Unknown ids
	// are a no-op.
	DeleteDocument(documentID string) error

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
