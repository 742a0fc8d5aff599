// Package ingest drives vault files through the processing queue: the
// synchronizer reconciles disk against the record store, the watcher feeds
// it filesystem events, the worker pulls queued records, and the
// orchestrator runs one file's job lifecycle.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/docstore"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/records"
	"github.com/starford/laguz/internal/storage"
)

// DeletePolicy controls what happens to a linked document when its vault
// file disappears.
type DeletePolicy string

const (
	// DeletePolicyDelete removes the linked document outright.
	DeletePolicyDelete DeletePolicy = "delete"
	// DeletePolicyOrphan keeps the document and drops only the file record.
	DeletePolicyOrphan DeletePolicy = "orphan"
)

// EventFunc receives ingest lifecycle notifications.
// kind is one of "queued", "processing", "processed", "failed", "deleted".
type EventFunc func(kind, path string)

// Syncer reconciles the vault tree against the file record store and owns
// the queue transitions into the queued state. All reconciliation and
// queue-claim mutations run under a single mutex so a scan can never
// interleave with a worker claim.
type Syncer struct {
	store  records.Store
	vault  storage.Provider
	docs   docstore.Store
	policy DeletePolicy
	logger *slog.Logger
	events EventFunc

	// mu serializes reconciliation against claim operations. The
	// filesystem walk runs outside the lock to keep scans cheap.
	mu sync.Mutex
}

// NewSyncer creates a queue synchronizer.
func NewSyncer(store records.Store, vault storage.Provider, docs docstore.Store, policy DeletePolicy, logger *slog.Logger, events EventFunc) *Syncer {
	if policy != DeletePolicyOrphan {
		policy = DeletePolicyDelete
	}
	return &Syncer{
		store:  store,
		vault:  vault,
		docs:   docs,
		policy: policy,
		logger: logger,
		events: events,
	}
}

// Scan walks dir (empty string for the whole vault), hashes every supported
// file, and reconciles against the record store: new paths are inserted as
// unprocessed, changed ones have their status reset, and records whose
// files vanished are deleted. Per-file errors are collected, never fatal.
func (s *Syncer) Scan(ctx context.Context, dir string, force bool) (*models.ScanSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Walk and hash outside the lock.
	metas, walkErrs, err := s.vault.List(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: scan walk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot of stored records taken at reconciliation start. A scoped
	// scan only reconciles records under its directory; deletion detection
	// outside the scope needs a full walk.
	stored, err := s.store.All()
	if err != nil {
		return nil, fmt.Errorf("ingest: scan snapshot: %w", err)
	}
	prefix := scanPrefix(dir)
	known := make(map[string]models.FileRecord, len(stored))
	for _, rec := range stored {
		if prefix == "" || strings.HasPrefix(rec.Path, prefix) || rec.Path == strings.TrimSuffix(prefix, "/") {
			known[rec.Path] = rec
		}
	}

	summary := &models.ScanSummary{TotalScanned: len(metas), Errors: walkErrs}
	seen := make(map[string]struct{}, len(metas))

	for _, m := range metas {
		seen[m.Path] = struct{}{}
		rec, exists := known[m.Path]
		if !exists {
			if err := s.insertNew(m); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", m.Path, err))
				continue
			}
			summary.New++
			continue
		}

		hashChanged := rec.ContentHash != m.Checksum
		metaChanged := !rec.ModifiedAt.Equal(m.ModifiedAt) || rec.SizeBytes != m.SizeBytes
		if !hashChanged && !metaChanged && !force {
			continue
		}

		if err := s.store.UpdateMeta(m.Path, s.vault.Kind(m.Path), m.Checksum, m.SizeBytes, m.ModifiedAt); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", m.Path, err))
			continue
		}
		summary.Modified++

		// Only an actual content change resets status and discards the
		// linked-document association.
		if hashChanged {
			s.resetChanged(rec)
		}
	}

	for path, rec := range known {
		if _, ok := seen[path]; ok {
			continue
		}
		if err := s.removeDeleted(rec); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		summary.Deleted++
	}

	s.logger.Info("scan: done",
		slog.String("dir", dir),
		slog.Int("total", summary.TotalScanned),
		slog.Int("new", summary.New),
		slog.Int("modified", summary.Modified),
		slog.Int("deleted", summary.Deleted),
		slog.Int("errors", len(summary.Errors)))
	return summary, nil
}

// Enqueue transitions matching records to queued, clearing any previous
// error. Records already queued or processing are reported, not re-queued.
func (s *Syncer) Enqueue(paths []string) (*models.EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &models.EnqueueResult{}
	for _, path := range paths {
		rec, err := s.store.Get(path)
		if errors.Is(err, apperr.ErrNotFound) {
			out.NotFound = append(out.NotFound, path)
			continue
		}
		if err != nil {
			return nil, err
		}
		switch rec.Status {
		case models.StatusQueued, models.StatusProcessing:
			out.AlreadyQueued = append(out.AlreadyQueued, path)
			continue
		}
		zero := 0
		err = s.store.Transition(path,
			[]models.Status{models.StatusUnprocessed, models.StatusProcessed, models.StatusError},
			models.StatusQueued,
			records.Update{ClearLastError: true, ClearNextRetry: true, RetryCount: &zero})
		if errors.Is(err, apperr.ErrConflict) {
			out.AlreadyQueued = append(out.AlreadyQueued, path)
			continue
		}
		if err != nil {
			return nil, err
		}
		out.Queued = append(out.Queued, path)
		s.emit("queued", path)
	}
	return out, nil
}

// Lock runs fn while holding the reconciliation mutex. The orchestrator
// wraps its claim transition with this so scans and claims never interleave.
func (s *Syncer) Lock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// DueQueued returns up to limit queued records whose retry delay, if any,
// has elapsed, oldest first.
func (s *Syncer) DueQueued(limit int) ([]models.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ListDue(models.StatusQueued, time.Now().UTC(), limit)
}

func (s *Syncer) insertNew(m models.FileMetadata) error {
	rec := models.FileRecord{
		Path:        m.Path,
		Kind:        s.vault.Kind(m.Path),
		ContentHash: m.Checksum,
		SizeBytes:   m.SizeBytes,
		ModifiedAt:  m.ModifiedAt,
		Status:      models.StatusUnprocessed,
	}
	if err := s.store.Upsert(rec); err != nil {
		return err
	}
	s.logger.Debug("scan: discovered", slog.String("path", m.Path))
	return nil
}

// resetChanged moves a content-changed record back to unprocessed,
// clearing its error, retry count and linked-document association. A
// record mid-claim (processing) is left alone; the next scan catches it.
func (s *Syncer) resetChanged(rec models.FileRecord) {
	if rec.Status == models.StatusUnprocessed || rec.Status == models.StatusProcessing {
		return
	}
	zero := 0
	err := s.store.Transition(rec.Path,
		[]models.Status{models.StatusQueued, models.StatusProcessed, models.StatusError},
		models.StatusUnprocessed,
		records.Update{ClearLastError: true, ClearLinkedDoc: true, ClearNextRetry: true, RetryCount: &zero})
	if errors.Is(err, apperr.ErrConflict) {
		s.logger.Debug("scan: skip reset of claimed record", slog.String("path", rec.Path))
		return
	}
	if err != nil {
		s.logger.Warn("scan: reset failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("scan: content changed", slog.String("path", rec.Path))
}

func (s *Syncer) removeDeleted(rec models.FileRecord) error {
	if rec.LinkedDocumentID != "" && s.policy == DeletePolicyDelete {
		if err := s.docs.DeleteDocument(rec.LinkedDocumentID); err != nil {
			return err
		}
	}
	if err := s.store.Delete(rec.Path); err != nil {
		return err
	}
	s.emit("deleted", rec.Path)
	s.logger.Debug("scan: removed stale", slog.String("path", rec.Path))
	return nil
}

func (s *Syncer) emit(kind, path string) {
	if s.events != nil {
		s.events(kind, path)
	}
}

func scanPrefix(dir string) string {
	if dir == "" || dir == "." {
		return ""
	}
	return strings.TrimSuffix(dir, "/") + "/"
}
