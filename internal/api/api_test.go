package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/laguz/internal/ingest"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/testutil"
)

type apiFixture struct {
	vaultDir string
	syncer   *ingest.Syncer
	orch     *ingest.Orchestrator
	server   *httptest.Server
}

func newAPIFixture(t *testing.T, authEnabled bool, token string) *apiFixture {
	t.Helper()
	vaultDir, vault := testutil.TestVault(t)
	store := testutil.TestRecords(t)
	docs := testutil.TestDocs(t)
	logger := testutil.TestLogger()

	pipe := pipeline.New(vault, docs, &testutil.FakeEmbedder{}, &testutil.FakeDescriber{}, pipeline.Config{}, logger)
	syncer := ingest.NewSyncer(store, vault, docs, ingest.DeletePolicyDelete, logger, nil)
	orch := ingest.NewOrchestrator(store, vault, pipe, syncer, logger, nil)
	worker := ingest.NewWorker(syncer, orch, store, ingest.WorkerConfig{PollInterval: time.Hour}, logger)

	svc := NewService(syncer, orch, worker, store)
	srv := httptest.NewServer(NewRouter(svc, authEnabled, token, nil))
	t.Cleanup(srv.Close)

	return &apiFixture{vaultDir: vaultDir, syncer: syncer, orch: orch, server: srv}
}

func (f *apiFixture) write(t *testing.T, rel, content string) {
	t.Helper()
	full := filepath.Join(f.vaultDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (f *apiFixture) do(t *testing.T, method, path, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestScanEndpoint(t *testing.T) {
	f := newAPIFixture(t, false, "")
	f.write(t, "a.md", "alpha\n")
	f.write(t, "b.md", "beta\n")

	var sum models.ScanSummary
	resp := f.do(t, http.MethodPost, "/scan", "", &sum)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, sum.New)

	// Scoped scan via body.
	f.write(t, "sub/c.md", "gamma\n")
	resp = f.do(t, http.MethodPost, "/scan", `{"dir":"sub"}`, &sum)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sum.New)
}

func TestScanEndpointRejectsBadBody(t *testing.T) {
	f := newAPIFixture(t, false, "")
	resp := f.do(t, http.MethodPost, "/scan", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEnqueueEndpoint(t *testing.T) {
	f := newAPIFixture(t, false, "")
	f.write(t, "a.md", "alpha\n")
	_, err := f.syncer.Scan(context.Background(), "", false)
	require.NoError(t, err)

	var res models.EnqueueResult
	resp := f.do(t, http.MethodPost, "/enqueue", `{"paths":["a.md","ghost.md"]}`, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"a.md"}, res.Queued)
	assert.Equal(t, []string{"ghost.md"}, res.NotFound)

	resp = f.do(t, http.MethodPost, "/enqueue", `{"paths":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobEndpoints(t *testing.T) {
	f := newAPIFixture(t, false, "")
	f.write(t, "a.md", "run me\n")

	res := f.orch.ProcessFile(context.Background(), "a.md")
	require.NoError(t, res.Err)

	var jobs []models.ProcessingJob
	resp := f.do(t, http.MethodGet, "/jobs", "", &jobs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, jobs, 1)

	var job models.ProcessingJob
	resp = f.do(t, http.MethodGet, "/jobs/"+jobs[0].ID, "", &job)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a.md", job.Path)
	assert.True(t, job.Success)

	resp = f.do(t, http.MethodGet, "/jobs/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueueStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t, false, "")
	f.write(t, "a.md", "alpha\n")
	f.write(t, "b.md", "beta\n")
	_, err := f.syncer.Scan(context.Background(), "", false)
	require.NoError(t, err)
	_, err = f.syncer.Enqueue([]string{"a.md"})
	require.NoError(t, err)

	var status models.QueueStatus
	resp := f.do(t, http.MethodGet, "/queue/status", "", &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, status.Counts[models.StatusQueued])
	assert.Equal(t, 1, status.Counts[models.StatusUnprocessed])
	assert.False(t, status.WorkerAlive)
	assert.Zero(t, status.ActiveJobs)
}

func TestListFilesEndpoint(t *testing.T) {
	f := newAPIFixture(t, false, "")
	f.write(t, "a.md", "alpha\n")
	f.write(t, "b.md", "beta\n")
	_, err := f.syncer.Scan(context.Background(), "", false)
	require.NoError(t, err)
	_, err = f.syncer.Enqueue([]string{"a.md"})
	require.NoError(t, err)

	var recs []models.FileRecord
	resp := f.do(t, http.MethodGet, "/files", "", &recs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, recs, 2)

	resp = f.do(t, http.MethodGet, "/files?status=queued", "", &recs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, recs, 1)
	assert.Equal(t, "a.md", recs[0].Path)

	resp = f.do(t, http.MethodGet, "/files?status=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	f := newAPIFixture(t, true, "secret-token")

	// No token.
	resp := f.do(t, http.MethodGet, "/files", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong token.
	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/files", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token.
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
