package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/models"
)

// Handler exposes the ingest operations over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a new API handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// scanRequest is the body of POST /scan.
type scanRequest struct {
	Dir   string `json:"dir,omitempty"`
	Force bool   `json:"force,omitempty"`
}

// Scan triggers a reconciliation pass.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
			return
		}
	}
	summary, err := h.svc.Scan(r.Context(), req.Dir, req.Force)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// enqueueRequest is the body of POST /enqueue.
type enqueueRequest struct {
	Paths []string `json:"paths"`
}

// Enqueue queues files for processing.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	res, err := h.svc.Enqueue(req.Paths)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListJobs returns every running and recently completed job.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.svc.Jobs()
	if jobs == nil {
		jobs = []*models.ProcessingJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob returns the status of one processing job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.svc.Job(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("job not found"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// QueueStatus returns the aggregate queue snapshot.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.QueueStatus()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ListFiles returns tracked file records, optionally filtered by ?status=.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ListFiles(r.URL.Query().Get("status"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if recs == nil {
		recs = []models.FileRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
