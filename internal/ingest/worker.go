package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/records"
)

// WorkerConfig parameterizes the polling loop.
type WorkerConfig struct {
	PollInterval      time.Duration
	MaxConcurrentJobs int
	RetryDelays       []time.Duration // ordered backoff schedule, e.g. 60s/300s/900s
	ShutdownTimeout   time.Duration
}

// Worker is the single polling loop that pulls batches of queued records
// and runs them through the orchestrator with bounded concurrency. The
// concurrency cap is the pool size: submissions beyond it block, so the
// pool acts as a counting semaphore over jobs.
type Worker struct {
	syncer *Syncer
	orch   *Orchestrator
	store  records.Store
	cfg    WorkerConfig
	logger *slog.Logger

	alive atomic.Bool
}

// NewWorker creates a background worker.
func NewWorker(syncer *Syncer, orch *Orchestrator, store records.Store, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 2
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Worker{syncer: syncer, orch: orch, store: store, cfg: cfg, logger: logger}
}

// Alive reports whether the polling loop is running.
func (w *Worker) Alive() bool {
	return w.alive.Load()
}

// Run executes poll cycles until ctx is cancelled. Each cycle claims up to
// MaxConcurrentJobs due records, processes them concurrently, and awaits
// the whole batch before sleeping. A failing job is converted into the
// retry path, never propagated to the loop. The stop signal is observed
// between cycles; in-flight jobs get ShutdownTimeout to finish.
func (w *Worker) Run(ctx context.Context) error {
	pool, err := ants.NewPool(w.cfg.MaxConcurrentJobs)
	if err != nil {
		return fmt.Errorf("ingest: worker pool: %w", err)
	}
	defer pool.Release()

	w.alive.Store(true)
	defer w.alive.Store(false)

	w.logger.Info("worker: started",
		slog.Duration("poll_interval", w.cfg.PollInterval),
		slog.Int("max_concurrent", w.cfg.MaxConcurrentJobs),
		slog.Int("retry_budget", len(w.cfg.RetryDelays)))

	for {
		w.runCycle(ctx, pool)

		select {
		case <-ctx.Done():
			w.logger.Info("worker: stopped")
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// runCycle claims one batch and awaits it. Individual job panics and
// errors are contained here.
func (w *Worker) runCycle(ctx context.Context, pool *ants.Pool) {
	if ctx.Err() != nil {
		return
	}
	batch, err := w.syncer.DueQueued(w.cfg.MaxConcurrentJobs)
	if err != nil {
		w.logger.Error("worker: fetch queued failed", slog.String("error", err.Error()))
		return
	}
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, rec := range batch {
		path := rec.Path
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			w.runJob(ctx, path)
		})
		if submitErr != nil {
			wg.Done()
			w.logger.Error("worker: submit failed",
				slog.String("path", path), slog.String("error", submitErr.Error()))
		}
	}

	// Await the whole batch. Once a stop arrives, in-flight jobs get
	// ShutdownTimeout to finish; they are never forcibly killed.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(w.cfg.ShutdownTimeout):
			w.logger.Warn("worker: shutdown timeout; abandoning in-flight jobs")
		}
	}
}

// runJob executes one file's pipeline and applies the retry policy on
// failure. Panics inside a job are converted to the failure path.
func (w *Worker) runJob(ctx context.Context, path string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker: job panic",
				slog.String("path", path), slog.Any("panic", r))
			w.handleFailure(path, fmt.Errorf("ingest: job panic: %v", r))
		}
	}()

	res := w.orch.ProcessFile(ctx, path)
	if res.Success {
		return
	}
	if errors.Is(res.Err, apperr.ErrConflict) || errors.Is(res.Err, apperr.ErrNotFound) {
		// Claimed elsewhere or vanished; nothing to retry.
		w.logger.Debug("worker: job skipped",
			slog.String("path", path), slog.String("reason", res.Err.Error()))
		return
	}
	w.handleFailure(path, res.Err)
}

// handleFailure re-queues a failed file with exponential backoff, or
// leaves it in permanent error once the retry budget is exhausted.
func (w *Worker) handleFailure(path string, jobErr error) {
	rec, err := w.store.Get(path)
	if err != nil {
		w.logger.Warn("worker: failed record lookup",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	budget := len(w.cfg.RetryDelays)
	if rec.RetryCount >= budget {
		w.logger.Warn("worker: retry budget exhausted",
			slog.String("path", path),
			slog.Int("retry_count", rec.RetryCount),
			slog.String("error", jobErr.Error()))
		return
	}

	delay := w.cfg.RetryDelays[rec.RetryCount]
	next := rec.RetryCount + 1
	dueAt := time.Now().UTC().Add(delay)
	msg := fmt.Sprintf("retry %d/%d: %v", next, budget, jobErr)

	err = w.store.Transition(path,
		[]models.Status{models.StatusError},
		models.StatusQueued,
		records.Update{
			RetryCount:  &next,
			LastError:   &msg,
			NextRetryAt: &dueAt,
		})
	if errors.Is(err, apperr.ErrConflict) {
		// The record moved on (rescan or manual action); leave it alone.
		return
	}
	if err != nil {
		w.logger.Error("worker: requeue failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	w.logger.Info("worker: requeued with backoff",
		slog.String("path", path),
		slog.Int("retry", next),
		slog.Duration("delay", delay))
}
