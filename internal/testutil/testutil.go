// Package testutil provides shared test helpers for setting up vaults,
// record stores, and fake AI providers.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"github.com/starford/laguz/internal/docstore"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/records"
	"github.com/starford/laguz/internal/storage"
)

// TestLogger returns a logger that only surfaces errors, keeping test
// output readable.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestRecords creates a temporary file record store that is automatically
// cleaned up.
func TestRecords(t *testing.T) *records.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "laguz-records-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := records.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDocs creates a temporary document store that is automatically
// cleaned up.
func TestDocs(t *testing.T) *docstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "laguz-docs-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := docstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// FakeEmbedder is a deterministic Embedder test double. If EmbedFunc is
// set it is called instead of the default behavior.
type FakeEmbedder struct {
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls     atomic.Int64
}

// Embed returns one deterministic 8-dim vector per text.
func (f *FakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.EmbedFunc != nil {
		return f.EmbedFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(text, 8)
	}
	return out, nil
}

// Calls returns the number of Embed invocations.
func (f *FakeEmbedder) Calls() int {
	return int(f.calls.Load())
}

// FakeDescriber is a VisionDescriber test double. If DescribeFunc is set
// it is called instead of the default behavior.
type FakeDescriber struct {
	DescribeFunc func(ctx context.Context, images []models.ImageRef) ([]string, error)
	calls        atomic.Int64
}

// Describe returns "description of <source>" per image.
func (f *FakeDescriber) Describe(ctx context.Context, images []models.ImageRef) ([]string, error) {
	f.calls.Add(1)
	if f.DescribeFunc != nil {
		return f.DescribeFunc(ctx, images)
	}
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = fmt.Sprintf("description of %s", img.Source)
	}
	return out, nil
}

// Calls returns the number of Describe invocations.
func (f *FakeDescriber) Calls() int {
	return int(f.calls.Load())
}

// deterministicVector hashes text into a stable pseudo-embedding.
func deterministicVector(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	out := make([]float32, dim)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(seed%2000)/1000 - 1
	}
	return out
}
