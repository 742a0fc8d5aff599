package records

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "laguz-records-test-*.db")
	require.NoError(t, err)
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := Open(dbFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRecord(path string) models.FileRecord {
	return models.FileRecord{
		Path:        path,
		Kind:        "markdown",
		ContentHash: "abc123",
		SizeBytes:   42,
		ModifiedAt:  time.Now().UTC().Truncate(time.Second),
		Status:      models.StatusUnprocessed,
	}
}

func TestUpsertGetRoundtrip(t *testing.T) {
	db := testDB(t)
	rec := sampleRecord("notes/a.md")
	require.NoError(t, db.Upsert(rec))

	got, err := db.Get("notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, rec.Path, got.Path)
	assert.Equal(t, rec.Kind, got.Kind)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.Equal(t, models.StatusUnprocessed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Nil(t, got.StartedAt)
}

func TestGetUnknownPath(t *testing.T) {
	db := testDB(t)
	_, err := db.Get("missing.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpsertRejectsInvalidStatus(t *testing.T) {
	db := testDB(t)
	rec := sampleRecord("a.md")
	rec.Status = "bogus"
	assert.Error(t, db.Upsert(rec))
}

func TestTransitionCAS(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Upsert(sampleRecord("a.md")))

	// unprocessed -> queued succeeds.
	err := db.Transition("a.md",
		[]models.Status{models.StatusUnprocessed},
		models.StatusQueued, Update{})
	require.NoError(t, err)

	// The same transition again loses the CAS: record is no longer
	// unprocessed.
	err = db.Transition("a.md",
		[]models.Status{models.StatusUnprocessed},
		models.StatusQueued, Update{})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// Unknown path is distinguishable from a lost race.
	err = db.Transition("missing.md",
		[]models.Status{models.StatusUnprocessed},
		models.StatusQueued, Update{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Upsert(sampleRecord("a.md")))

	err := db.Transition("a.md",
		[]models.Status{models.StatusUnprocessed},
		models.StatusProcessed, Update{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrConflict)
}

func TestTransitionAppliesUpdate(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Upsert(sampleRecord("a.md")))
	require.NoError(t, db.Transition("a.md",
		[]models.Status{models.StatusUnprocessed}, models.StatusQueued, Update{}))

	now := time.Now().UTC().Truncate(time.Second)
	zero := 0
	require.NoError(t, db.Transition("a.md",
		[]models.Status{models.StatusQueued}, models.StatusProcessing,
		Update{StartedAt: &now, ProgressPercent: &zero}))

	docID := "doc-1"
	full := 100
	require.NoError(t, db.Transition("a.md",
		[]models.Status{models.StatusProcessing}, models.StatusProcessed,
		Update{LinkedDocumentID: &docID, ProgressPercent: &full, CompletedAt: &now, ClearLastError: true}))

	got, err := db.Get("a.md")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, got.Status)
	assert.Equal(t, "doc-1", got.LinkedDocumentID)
	assert.Equal(t, 100, got.ProgressPercent)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.LastError)
}

func TestListDueSkipsFutureRetries(t *testing.T) {
	db := testDB(t)

	due := sampleRecord("due.md")
	due.Status = models.StatusQueued
	require.NoError(t, db.Upsert(due))

	future := time.Now().UTC().Add(time.Hour)
	delayed := sampleRecord("delayed.md")
	delayed.Status = models.StatusQueued
	delayed.NextRetryAt = &future
	require.NoError(t, db.Upsert(delayed))

	got, err := db.ListDue(models.StatusQueued, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "due.md", got[0].Path)

	// Once the delay passes, the record is due.
	got, err = db.ListDue(models.StatusQueued, future.Add(time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListByStatusOldestFirst(t *testing.T) {
	db := testDB(t)
	older := sampleRecord("old.md")
	older.Status = models.StatusQueued
	older.ModifiedAt = time.Now().UTC().Add(-time.Hour)
	newer := sampleRecord("new.md")
	newer.Status = models.StatusQueued
	require.NoError(t, db.Upsert(newer))
	require.NoError(t, db.Upsert(older))

	got, err := db.ListByStatus(models.StatusQueued, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old.md", got[0].Path)
}

func TestCountByStatus(t *testing.T) {
	db := testDB(t)
	for i, st := range []models.Status{models.StatusQueued, models.StatusQueued, models.StatusError} {
		rec := sampleRecord(string(rune('a'+i)) + ".md")
		rec.Status = st
		require.NoError(t, db.Upsert(rec))
	}
	counts, err := db.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.StatusQueued])
	assert.Equal(t, 1, counts[models.StatusError])
	assert.Equal(t, 0, counts[models.StatusProcessed])
}

func TestUpdateMetaLeavesStatusAlone(t *testing.T) {
	db := testDB(t)
	rec := sampleRecord("a.md")
	rec.Status = models.StatusQueued
	require.NoError(t, db.Upsert(rec))

	newMod := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.UpdateMeta("a.md", "markdown", "newhash", 99, newMod))

	got, err := db.Get("a.md")
	require.NoError(t, err)
	assert.Equal(t, "newhash", got.ContentHash)
	assert.Equal(t, int64(99), got.SizeBytes)
	assert.Equal(t, models.StatusQueued, got.Status)

	assert.ErrorIs(t, db.UpdateMeta("missing.md", "", "h", 0, newMod), apperr.ErrNotFound)
}

func TestResetStale(t *testing.T) {
	db := testDB(t)
	rec := sampleRecord("stuck.md")
	rec.Status = models.StatusProcessing
	require.NoError(t, db.Upsert(rec))

	n, err := db.ResetStale()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.Get("stuck.md")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
}

func TestSetProgressClamps(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Upsert(sampleRecord("a.md")))
	require.NoError(t, db.SetProgress("a.md", 150))
	got, err := db.Get("a.md")
	require.NoError(t, err)
	assert.Equal(t, 100, got.ProgressPercent)
}
