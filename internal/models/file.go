// Package models defines the domain types for Laguz.
package models

import "time"

// Status is the processing state of a tracked vault file.
type Status string

// Valid statuses. Stored as-is in the file record store.
const (
	StatusUnprocessed Status = "unprocessed"
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusProcessed   Status = "processed"
	StatusError       Status = "error"
)

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnprocessed, StatusQueued, StatusProcessing, StatusProcessed, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. The store enforces this exhaustively; there is no string
// comparison fallback.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusUnprocessed:
		return next == StatusQueued
	case StatusQueued:
		return next == StatusProcessing || next == StatusUnprocessed
	case StatusProcessing:
		return next == StatusProcessed || next == StatusError || next == StatusQueued
	case StatusProcessed:
		return next == StatusUnprocessed || next == StatusQueued
	case StatusError:
		return next == StatusQueued || next == StatusUnprocessed
	}
	return false
}

// FileRecord is one row of the file record store: per-file metadata plus
// processing status. The record store is the single source of truth; any
// in-memory job state is a rebuildable cache of it.
type FileRecord struct {
	Path             string     `json:"path"`
	Kind             string     `json:"kind,omitempty"`
	ContentHash      string     `json:"content_hash,omitempty"`
	SizeBytes        int64      `json:"size_bytes"`
	ModifiedAt       time.Time  `json:"modified_at"`
	Status           Status     `json:"status"`
	RetryCount       int        `json:"retry_count"`
	LastError        string     `json:"last_error,omitempty"`
	LinkedDocumentID string     `json:"linked_document_id,omitempty"`
	ProgressPercent  int        `json:"progress_percent"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty"`
}

// FileMetadata is a lightweight representation returned by vault walks.
type FileMetadata struct {
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ScanSummary reports the outcome of one reconciliation pass.
type ScanSummary struct {
	New          int      `json:"new"`
	Modified     int      `json:"modified"`
	Deleted      int      `json:"deleted"`
	TotalScanned int      `json:"total_scanned"`
	Errors       []string `json:"errors,omitempty"`
}

// EnqueueResult reports the per-path outcome of an enqueue request.
type EnqueueResult struct {
	Queued        []string `json:"queued"`
	AlreadyQueued []string `json:"already_queued"`
	NotFound      []string `json:"not_found"`
}

// QueueStatus is a derived, read-only snapshot of the ingestion queue.
// Computed on demand, never stored.
type QueueStatus struct {
	Counts           map[Status]int `json:"counts"`
	WorkerAlive      bool           `json:"worker_alive"`
	ActiveJobs       int            `json:"active_jobs"`
	AvgProcessingSec float64        `json:"avg_processing_sec"`
}
