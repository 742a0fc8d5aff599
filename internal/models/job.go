package models

import "time"

// Stage is one step of the ingestion pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageExtract       Stage = "extract"
	StagePrepare       Stage = "prepare"
	StageEmbedAndStore Stage = "embed_and_store"
)

// PageUnit is one page of extracted content. Produced by Extract, consumed
// and destroyed by Prepare.
type PageUnit struct {
	Number int
	Text   string
	Images []ImageRef
}

// ImageRef is an image embedded in a page: its vault-relative source path
// and the raw bytes, if they could be read.
type ImageRef struct {
	Source string
	Data   []byte
}

// ChunkUnit is one unit ready for embedding: immutable once created.
type ChunkUnit struct {
	Text string
	Page int
	Seq  int
}

// ProcessingJob is the transient, in-memory view of one file's run.
// It is never persisted; the FileRecord is authoritative.
type ProcessingJob struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	Stage       Stage      `json:"stage,omitempty"`
	RetryCount  int        `json:"retry_count"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (j *ProcessingJob) Terminal() bool {
	return j.CompletedAt != nil
}

// ProcessingResult is the outcome of one ProcessFile call.
type ProcessingResult struct {
	Success          bool          `json:"success"`
	LinkedDocumentID string        `json:"linked_document_id,omitempty"`
	ChunksCreated    int           `json:"chunks_created"`
	ImagesProcessed  int           `json:"images_processed"`
	Elapsed          time.Duration `json:"elapsed_ns"`
	Err              error         `json:"-"`
}
