package records

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

const recordColumns = `path, kind, content_hash, size_bytes, modified_at, status,
	retry_count, last_error, linked_document_id, progress_percent,
	started_at, completed_at, next_retry_at`

// Upsert inserts or replaces a file record keyed by path.
func (db *DB) Upsert(rec models.FileRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("records: invalid status %q", rec.Status)
	}
	_, err := db.conn.Exec(`
		INSERT INTO files (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind               = excluded.kind,
			content_hash       = excluded.content_hash,
			size_bytes         = excluded.size_bytes,
			modified_at        = excluded.modified_at,
			status             = excluded.status,
			retry_count        = excluded.retry_count,
			last_error         = excluded.last_error,
			linked_document_id = excluded.linked_document_id,
			progress_percent   = excluded.progress_percent,
			started_at         = excluded.started_at,
			completed_at       = excluded.completed_at,
			next_retry_at      = excluded.next_retry_at
	`, rec.Path, nullStr(rec.Kind), nullStr(rec.ContentHash), rec.SizeBytes,
		rec.ModifiedAt, string(rec.Status), rec.RetryCount, nullStr(rec.LastError),
		nullStr(rec.LinkedDocumentID), rec.ProgressPercent,
		nullTime(rec.StartedAt), nullTime(rec.CompletedAt), nullTime(rec.NextRetryAt))
	if err != nil {
		return fmt.Errorf("records: upsert %s: %w", rec.Path, err)
	}
	return nil
}

// UpdateMeta refreshes scan-owned metadata columns only.
func (db *DB) UpdateMeta(path, kind, contentHash string, sizeBytes int64, modifiedAt time.Time) error {
	res, err := db.conn.Exec(`
		UPDATE files SET kind = ?, content_hash = ?, size_bytes = ?, modified_at = ?
		WHERE path = ?`, nullStr(kind), nullStr(contentHash), sizeBytes, modifiedAt, path)
	if err != nil {
		return fmt.Errorf("records: update meta %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Get returns the record for path, or apperr.ErrNotFound.
func (db *DB) Get(path string) (*models.FileRecord, error) {
	row := db.conn.QueryRow(`SELECT `+recordColumns+` FROM files WHERE path = ?`, path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("records: get %s: %w", path, err)
	}
	return rec, nil
}

// Delete removes the record for path. Deleting an unknown path is a no-op.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("records: delete %s: %w", path, err)
	}
	return nil
}

// All returns every tracked record.
func (db *DB) All() ([]models.FileRecord, error) {
	return db.query(`SELECT ` + recordColumns + ` FROM files`)
}

// ListByStatus returns up to limit records with the given status, oldest
// modification first. limit <= 0 means no limit.
func (db *DB) ListByStatus(status models.Status, limit int) ([]models.FileRecord, error) {
	if limit <= 0 {
		return db.query(`SELECT `+recordColumns+` FROM files WHERE status = ? ORDER BY modified_at`, string(status))
	}
	return db.query(`SELECT `+recordColumns+` FROM files WHERE status = ? ORDER BY modified_at LIMIT ?`, string(status), limit)
}

// ListDue returns up to limit records with the given status whose
// next_retry_at is unset or has passed, oldest modification first.
func (db *DB) ListDue(status models.Status, now time.Time, limit int) ([]models.FileRecord, error) {
	return db.query(`
		SELECT `+recordColumns+` FROM files
		WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY modified_at LIMIT ?`, string(status), now, limit)
}

// CountByStatus returns the number of records per status.
func (db *DB) CountByStatus() (map[models.Status]int, error) {
	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM files GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("records: count by status: %w", err)
	}
	defer rows.Close()
	out := make(map[models.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[models.Status(s)] = n
	}
	return out, rows.Err()
}

// Transition performs a compare-and-set status change: the UPDATE only
// applies while the row is still in one of the expected statuses, so a
// concurrent scan or claim cannot be silently overwritten.
func (db *DB) Transition(path string, from []models.Status, next models.Status, upd Update) error {
	if !next.Valid() {
		return fmt.Errorf("records: invalid status %q", next)
	}
	for _, f := range from {
		if !f.CanTransition(next) {
			return fmt.Errorf("records: illegal transition %s -> %s", f, next)
		}
	}

	sets := []string{"status = ?"}
	args := []any{string(next)}

	if upd.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *upd.LastError)
	} else if upd.ClearLastError {
		sets = append(sets, "last_error = NULL")
	}
	if upd.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *upd.RetryCount)
	}
	if upd.LinkedDocumentID != nil {
		sets = append(sets, "linked_document_id = ?")
		args = append(args, *upd.LinkedDocumentID)
	} else if upd.ClearLinkedDoc {
		sets = append(sets, "linked_document_id = NULL")
	}
	if upd.ProgressPercent != nil {
		sets = append(sets, "progress_percent = ?")
		args = append(args, *upd.ProgressPercent)
	}
	if upd.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *upd.CompletedAt)
	}
	if upd.NextRetryAt != nil {
		sets = append(sets, "next_retry_at = ?")
		args = append(args, *upd.NextRetryAt)
	} else if upd.ClearNextRetry {
		sets = append(sets, "next_retry_at = NULL")
	}

	placeholders := make([]string, len(from))
	args = append(args, path)
	for i, f := range from {
		placeholders[i] = "?"
		args = append(args, string(f))
	}
	query := fmt.Sprintf(`UPDATE files SET %s WHERE path = ? AND status IN (%s)`,
		strings.Join(sets, ", "), strings.Join(placeholders, ", "))

	res, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("records: transition %s -> %s: %w", path, next, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("records: transition %s: %w", path, err)
	}
	if n == 0 {
		// Distinguish a missing row from a lost CAS race.
		if _, getErr := db.Get(path); errors.Is(getErr, apperr.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return apperr.ErrConflict
	}
	return nil
}

// SetProgress updates the progress column only. Best-effort; the caller
// treats failures as non-fatal.
func (db *DB) SetProgress(path string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if _, err := db.conn.Exec(`UPDATE files SET progress_percent = ? WHERE path = ?`, percent, path); err != nil {
		return fmt.Errorf("records: set progress %s: %w", path, err)
	}
	return nil
}

// ResetStale requeues records left in processing by a crashed run.
func (db *DB) ResetStale() (int, error) {
	res, err := db.conn.Exec(`UPDATE files SET status = ? WHERE status = ?`,
		string(models.StatusQueued), string(models.StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("records: reset stale: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (db *DB) query(q string, args ...any) ([]models.FileRecord, error) {
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("records: query: %w", err)
	}
	defer rows.Close()
	var out []models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.FileRecord, error) {
	var rec models.FileRecord
	var kind, hash, lastErr, docID sql.NullString
	var size sql.NullInt64
	var modified, started, completed, nextRetry sql.NullTime
	var status string
	if err := s.Scan(&rec.Path, &kind, &hash, &size, &modified, &status,
		&rec.RetryCount, &lastErr, &docID, &rec.ProgressPercent,
		&started, &completed, &nextRetry); err != nil {
		return nil, err
	}
	rec.Kind = kind.String
	rec.ContentHash = hash.String
	rec.SizeBytes = size.Int64
	if modified.Valid {
		rec.ModifiedAt = modified.Time
	}
	rec.Status = models.Status(status)
	rec.LastError = lastErr.String
	rec.LinkedDocumentID = docID.String
	if started.Valid {
		t := started.Time
		rec.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		rec.NextRetryAt = &t
	}
	return &rec, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
