package docstore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/laguz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "laguz-docs-test-*.db")
	require.NoError(t, err)
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := Open(dbFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleChunks() ([]models.ChunkUnit, [][]float32) {
	chunks := []models.ChunkUnit{
		{Text: "first chunk", Page: 1, Seq: 0},
		{Text: "second chunk", Page: 1, Seq: 1},
		{Text: "third chunk", Page: 2, Seq: 0},
	}
	vectors := [][]float32{
		{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6},
	}
	return chunks, vectors
}

func TestStoreDocumentCreates(t *testing.T) {
	db := testDB(t)
	chunks, vectors := sampleChunks()

	res, err := db.StoreDocument("notes/a.md", "hash-1", "Title", chunks, vectors, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, 3, res.ChunksStored)
}

func TestStoreDocumentDedupIdempotent(t *testing.T) {
	db := testDB(t)
	chunks, vectors := sampleChunks()

	first, err := db.StoreDocument("notes/a.md", "hash-1", "Title", chunks, vectors, 2)
	require.NoError(t, err)

	// Same checksum twice: same id, exists status, no duplicated chunks.
	second, err := db.StoreDocument("notes/a.md", "hash-1", "Title", chunks, vectors, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusExists, second.Status)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunksStored, second.ChunksStored)

	third, err := db.StoreDocument("elsewhere/b.md", "hash-1", "Other", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusExists, third.Status)
	assert.Equal(t, first.DocumentID, third.DocumentID)

	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestStoreDocumentVectorMismatch(t *testing.T) {
	db := testDB(t)
	chunks, _ := sampleChunks()
	_, err := db.StoreDocument("a.md", "h", "T", chunks, [][]float32{{0.1}}, 1)
	assert.Error(t, err)
}

func TestStoreEmptyDocument(t *testing.T) {
	db := testDB(t)
	res, err := db.StoreDocument("empty.md", "hash-e", "Empty", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, 0, res.ChunksStored)
}

func TestDeleteDocumentCascades(t *testing.T) {
	db := testDB(t)
	chunks, vectors := sampleChunks()
	res, err := db.StoreDocument("a.md", "hash-1", "T", chunks, vectors, 2)
	require.NoError(t, err)

	require.NoError(t, db.DeleteDocument(res.DocumentID))

	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT COUNT(*) FROM chunks WHERE document_id = ?`, res.DocumentID).Scan(&n))
	assert.Equal(t, 0, n)

	// Unknown id is a no-op.
	assert.NoError(t, db.DeleteDocument("nope"))

	// Same checksum can be stored again after deletion.
	again, err := db.StoreDocument("a.md", "hash-1", "T", chunks, vectors, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, again.Status)
	assert.NotEqual(t, res.DocumentID, again.DocumentID)
}

func TestEncodeVector(t *testing.T) {
	assert.Nil(t, encodeVector(nil))
	assert.Len(t, encodeVector([]float32{1, 2, 3}), 12)
}
