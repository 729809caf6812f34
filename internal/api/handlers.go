package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	jobs         *Manager
	marketplaces []string
	logger       *slog.Logger
}

func NewHandlers(jobs *Manager, marketplaces []string, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:         jobs,
		marketplaces: marketplaces,
		logger:       logger,
	}
}

// CreateCrawlResponse represents the crawl job creation response.
type CreateCrawlResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateCrawl handles new crawl job creation.
func (h *Handlers) CreateCrawl(w http.ResponseWriter, r *http.Request) {
	var req CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Marketplace == "" {
		h.respondError(w, http.StatusBadRequest, "marketplace is required")
		return
	}
	if req.ProductName == "" {
		h.respondError(w, http.StatusBadRequest, "product_name is required")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to create crawl job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateCrawlResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Crawl job created successfully",
	})
}

// GetCrawl handles crawl job status retrieval.
func (h *Handlers) GetCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}
	job, ok := h.jobs.GetJob(jobID)
	if !ok {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// ListCrawls handles listing all crawl jobs.
func (h *Handlers) ListCrawls(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

// ListMarketplaces reports which marketplaces the service can crawl.
func (h *Handlers) ListMarketplaces(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string][]string{"marketplaces": h.marketplaces})
}

// GetStats handles statistics retrieval.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.Stats())
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
