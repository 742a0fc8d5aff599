package records

import (
	"time"

	"github.com/starford/laguz/internal/models"
)

// Store defines the interface for file record operations. Consumers should
// depend on this interface rather than the concrete *DB type to facilitate
// testing with fakes.
type Store interface {
	Upsert(rec models.FileRecord) error
	// UpdateMeta refreshes the scan-owned metadata columns without touching
	// status, retry, or job fields.
	UpdateMeta(path, kind, contentHash string, sizeBytes int64, modifiedAt time.Time) error
	Get(path string) (*models.FileRecord, error)
	Delete(path string) error
	All() ([]models.FileRecord, error)
	ListByStatus(status models.Status, limit int) ([]models.FileRecord, error)
	ListDue(status models.Status, now time.Time, limit int) ([]models.FileRecord, error)
	CountByStatus() (map[models.Status]int, error)

	// Transition moves a record from one of the expected statuses to next,
	// applying upd to the row in the same statement. It returns
	// apperr.ErrConflict when the record is no longer in an expected status
	// (compare-and-set) and apperr.ErrNotFound when the path is unknown.
	Transition(path string, from []models.Status, next models.Status, upd Update) error

	// SetProgress updates a record's progress percentage without a status
	// transition.
	SetProgress(path string, percent int) error

	// ResetStale moves any record stuck in processing back to queued.
	// Called at startup; a crashed run cannot complete its claims.
	ResetStale() (int, error)

	Close() error
}

// Update carries the optional column updates applied alongside a status
// transition. Nil pointers leave the column untouched.
type Update struct {
	LastError        *string
	ClearLastError   bool
	RetryCount       *int
	LinkedDocumentID *string
	ClearLinkedDoc   bool
	ProgressPercent  *int
	StartedAt        *time.Time
	CompletedAt      *time.Time
	NextRetryAt      *time.Time
	ClearNextRetry   bool
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
