package api

import (
	"context"
	"fmt"

	"github.com/starford/laguz/internal/ingest"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/records"
)

// Service coordinates the ingest components for the API layer. It wraps
// exactly the operations the pipeline core exposes: scan, enqueue, per-job
// status, and the aggregate queue status.
type Service struct {
	syncer *ingest.Syncer
	orch   *ingest.Orchestrator
	worker *ingest.Worker
	store  records.Store
}

// NewService creates a new API service.
func NewService(syncer *ingest.Syncer, orch *ingest.Orchestrator, worker *ingest.Worker, store records.Store) *Service {
	return &Service{syncer: syncer, orch: orch, worker: worker, store: store}
}

// Scan triggers a reconciliation pass over dir (empty for the whole vault).
func (s *Service) Scan(ctx context.Context, dir string, force bool) (*models.ScanSummary, error) {
	return s.syncer.Scan(ctx, dir, force)
}

// Enqueue queues the given vault-relative paths for processing.
func (s *Service) Enqueue(paths []string) (*models.EnqueueResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths given")
	}
	return s.syncer.Enqueue(paths)
}

// Job returns the in-memory view of a running or recently completed job.
func (s *Service) Job(id string) (*models.ProcessingJob, bool) {
	return s.orch.Job(id)
}

// Jobs returns every running and recently completed job.
func (s *Service) Jobs() []*models.ProcessingJob {
	return s.orch.Jobs()
}

// QueueStatus assembles the derived queue snapshot: per-status counts from
// the record store, worker liveness, and the rolling average duration.
func (s *Service) QueueStatus() (*models.QueueStatus, error) {
	counts, err := s.store.CountByStatus()
	if err != nil {
		return nil, err
	}
	return &models.QueueStatus{
		Counts:           counts,
		WorkerAlive:      s.worker.Alive(),
		ActiveJobs:       s.orch.ActiveCount(),
		AvgProcessingSec: s.orch.AvgProcessing().Seconds(),
	}, nil
}

// ListFiles returns tracked records, optionally filtered by status.
func (s *Service) ListFiles(status string) ([]models.FileRecord, error) {
	if status == "" {
		return s.store.All()
	}
	st := models.Status(status)
	if !st.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return s.store.ListByStatus(st, 0)
}
