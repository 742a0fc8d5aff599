package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/records"
	"github.com/starford/laguz/internal/storage"
)

// defaults for the completed-jobs ring.
const (
	defaultRingSize = 128
	defaultRingAge  = time.Hour
)

// Orchestrator owns one file's job lifecycle: claim the record, run the
// pipeline, and record the terminal outcome. Its in-memory job maps exist
// for status polling only; the record store stays authoritative and the
// maps are rebuildable after a restart.
type Orchestrator struct {
	store  records.Store
	vault  storage.Provider
	pipe   *pipeline.Pipeline
	syncer *Syncer
	logger *slog.Logger
	events EventFunc

	mu        sync.Mutex
	active    map[string]*models.ProcessingJob
	completed []*models.ProcessingJob // bounded ring, newest last
	ringSize  int
	ringAge   time.Duration
	durations []time.Duration // rolling window for the average
}

// NewOrchestrator creates a processing orchestrator. The syncer supplies
// the lock that serializes record claims against scans.
func NewOrchestrator(store records.Store, vault storage.Provider, pipe *pipeline.Pipeline, syncer *Syncer, logger *slog.Logger, events EventFunc) *Orchestrator {
	return &Orchestrator{
		store:    store,
		vault:    vault,
		pipe:     pipe,
		syncer:   syncer,
		logger:   logger,
		events:   events,
		active:   make(map[string]*models.ProcessingJob),
		ringSize: defaultRingSize,
		ringAge:  defaultRingAge,
	}
}

// ProcessFile drives one file through the pipeline. It ensures a record
// exists (ad-hoc requests bypass the scan), claims it with a
// compare-and-set transition to processing, and records the terminal
// status. Retry policy belongs to the background worker, not here.
func (o *Orchestrator) ProcessFile(ctx context.Context, path string) *models.ProcessingResult {
	start := time.Now()
	result := &models.ProcessingResult{}

	rec, err := o.ensureRecord(path)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}

	if err := o.claim(path); err != nil {
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}

	job := &models.ProcessingJob{
		ID:         uuid.NewString(),
		Path:       path,
		RetryCount: rec.RetryCount,
		StartedAt:  start,
	}
	o.trackActive(job)
	o.emit("processing", path)
	o.logger.Info("orchestrator: job started",
		slog.String("job_id", job.ID),
		slog.String("path", path),
		slog.Int("retry_count", rec.RetryCount))

	pipeRes, pipeErr := o.runPipeline(ctx, job, rec.ContentHash)

	elapsed := time.Since(start)
	result.Elapsed = elapsed

	if pipeErr != nil {
		o.failJob(job, pipeErr)
		result.Err = pipeErr
		o.emit("failed", path)
		o.logger.Warn("orchestrator: job failed",
			slog.String("job_id", job.ID),
			slog.String("path", path),
			slog.Duration("elapsed", elapsed),
			slog.String("error", pipeErr.Error()))
		return result
	}

	o.completeJob(job, pipeRes)
	result.Success = true
	result.LinkedDocumentID = pipeRes.DocumentID
	result.ChunksCreated = pipeRes.ChunksCreated
	result.ImagesProcessed = pipeRes.ImagesProcessed
	o.emit("processed", path)
	o.logger.Info("orchestrator: job completed",
		slog.String("job_id", job.ID),
		slog.String("path", path),
		slog.Int("chunks", pipeRes.ChunksCreated),
		slog.Int("images", pipeRes.ImagesProcessed),
		slog.Bool("deduplicated", pipeRes.Deduplicated),
		slog.Duration("elapsed", elapsed))
	return result
}

// runPipeline executes the three stages, converting any panic into an
// ordinary job failure so one file's crash never escapes its job.
func (o *Orchestrator) runPipeline(ctx context.Context, job *models.ProcessingJob, contentHash string) (res *pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("ingest: pipeline panic: %v", r)
		}
	}()
	return o.pipe.Run(ctx, job.Path, contentHash, func(stage models.Stage, pct int) {
		o.mu.Lock()
		job.Stage = stage
		o.mu.Unlock()
		if progErr := o.store.SetProgress(job.Path, pct); progErr != nil {
			o.logger.Debug("orchestrator: progress update failed",
				slog.String("path", job.Path), slog.String("error", progErr.Error()))
		}
	})
}

// ensureRecord returns the record for path, creating one when an ad-hoc
// request bypasses the scan.
func (o *Orchestrator) ensureRecord(path string) (*models.FileRecord, error) {
	rec, err := o.store.Get(path)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	meta, statErr := o.vault.Stat(path)
	if statErr != nil {
		return nil, fmt.Errorf("ingest: unknown file %s: %w", path, statErr)
	}
	fresh := models.FileRecord{
		Path:        meta.Path,
		Kind:        o.vault.Kind(meta.Path),
		ContentHash: meta.Checksum,
		SizeBytes:   meta.SizeBytes,
		ModifiedAt:  meta.ModifiedAt,
		Status:      models.StatusUnprocessed,
	}
	if err := o.store.Upsert(fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}

// claim CAS-transitions the record to processing under the syncer's lock,
// so a reconciliation pass can never revert a record mid-claim. A record
// not yet queued (ad-hoc request) passes through queued first.
func (o *Orchestrator) claim(path string) error {
	return o.syncer.Lock(func() error {
		rec, err := o.store.Get(path)
		if err != nil {
			return err
		}
		if rec.Status == models.StatusProcessing {
			return fmt.Errorf("ingest: %s already claimed: %w", path, apperr.ErrConflict)
		}
		if rec.Status != models.StatusQueued {
			fresh := 0
			err = o.store.Transition(path,
				[]models.Status{models.StatusUnprocessed, models.StatusProcessed, models.StatusError},
				models.StatusQueued,
				records.Update{ClearLastError: true, ClearNextRetry: true, RetryCount: &fresh})
			if err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		zero := 0
		return o.store.Transition(path,
			[]models.Status{models.StatusQueued},
			models.StatusProcessing,
			records.Update{StartedAt: &now, ProgressPercent: &zero, ClearNextRetry: true})
	})
}

func (o *Orchestrator) completeJob(job *models.ProcessingJob, res *pipeline.Result) {
	now := time.Now().UTC()
	full := 100
	err := o.store.Transition(job.Path,
		[]models.Status{models.StatusProcessing},
		models.StatusProcessed,
		records.Update{
			LinkedDocumentID: &res.DocumentID,
			ProgressPercent:  &full,
			CompletedAt:      &now,
			ClearLastError:   true,
			ClearNextRetry:   true,
		})
	if err != nil {
		o.logger.Error("orchestrator: record completion failed",
			slog.String("path", job.Path), slog.String("error", err.Error()))
	}
	o.finish(job, true, "")
}

func (o *Orchestrator) failJob(job *models.ProcessingJob, jobErr error) {
	now := time.Now().UTC()
	msg := jobErr.Error()
	err := o.store.Transition(job.Path,
		[]models.Status{models.StatusProcessing},
		models.StatusError,
		records.Update{LastError: &msg, CompletedAt: &now})
	if err != nil {
		o.logger.Error("orchestrator: record failure update failed",
			slog.String("path", job.Path), slog.String("error", err.Error()))
	}
	o.finish(job, false, msg)
}

func (o *Orchestrator) trackActive(job *models.ProcessingJob) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[job.ID] = job
}

// finish moves a job from the active map into the bounded completed ring
// and records its duration for the rolling average.
func (o *Orchestrator) finish(job *models.ProcessingJob, success bool, errMsg string) {
	now := time.Now()
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.active, job.ID)
	job.CompletedAt = &now
	job.Success = success
	job.Error = errMsg

	o.completed = append(o.completed, job)
	o.evictLocked(now)

	o.durations = append(o.durations, now.Sub(job.StartedAt))
	if len(o.durations) > o.ringSize {
		o.durations = o.durations[len(o.durations)-o.ringSize:]
	}
}

// evictLocked drops completed jobs beyond the ring size or older than the
// ring age. Caller holds o.mu.
func (o *Orchestrator) evictLocked(now time.Time) {
	if n := len(o.completed) - o.ringSize; n > 0 {
		o.completed = o.completed[n:]
	}
	cutoff := now.Add(-o.ringAge)
	i := 0
	for i < len(o.completed) && o.completed[i].CompletedAt != nil && o.completed[i].CompletedAt.Before(cutoff) {
		i++
	}
	o.completed = o.completed[i:]
}

// Job returns the in-memory job with the given id, checking active jobs
// first, then the completed ring.
func (o *Orchestrator) Job(id string) (*models.ProcessingJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if j, ok := o.active[id]; ok {
		cp := *j
		return &cp, true
	}
	for _, j := range o.completed {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	return nil, false
}

// Jobs returns copies of every tracked job: active ones first, then the
// completed ring, newest last.
func (o *Orchestrator) Jobs() []*models.ProcessingJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*models.ProcessingJob, 0, len(o.active)+len(o.completed))
	for _, j := range o.active {
		cp := *j
		out = append(out, &cp)
	}
	for _, j := range o.completed {
		cp := *j
		out = append(out, &cp)
	}
	return out
}

// ActiveCount returns the number of jobs currently running.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// AvgProcessing returns the rolling average job duration, or zero when no
// job has completed yet.
func (o *Orchestrator) AvgProcessing() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range o.durations {
		total += d
	}
	return total / time.Duration(len(o.durations))
}

func (o *Orchestrator) emit(kind, path string) {
	if o.events != nil {
		o.events(kind, path)
	}
}
