package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solver-ai/market-crawler/internal/scraper"
)

// CrawlRequest is one unit of crawl work: a product on a marketplace.
type CrawlRequest struct {
	Marketplace string `json:"marketplace"`
	ProductName string `json:"product_name"`
	BrandName   string `json:"brand_name"`
	SessionID   string `json:"session_id,omitempty"`
	MaxListings int    `json:"max_listings,omitempty"`
	MaxReviews  int    `json:"max_reviews,omitempty"`
}

// Job tracks a crawl request through its lifetime.
type Job struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"` // queued, running, completed, failed
	Request    CrawlRequest    `json:"request"`
	Result     *scraper.Result `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunFunc executes one crawl. Each call owns its own rendering session.
type RunFunc func(ctx context.Context, req CrawlRequest) (*scraper.Result, error)

// Manager queues crawl jobs and runs them one at a time. Crawls are
// browser-bound and slow; serializing them keeps resource usage flat.
// Jobs run on the manager's own context, the server lifetime, never on the
// request that created them.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	order  []string
	run    RunFunc
	slot   chan struct{}
	ctx    context.Context
	logger *slog.Logger
}

func NewManager(ctx context.Context, run RunFunc, logger *slog.Logger) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		run:    run,
		slot:   make(chan struct{}, 1),
		ctx:    ctx,
		logger: logger.With("component", "job_manager"),
	}
}

// CreateJob registers a job and schedules it in the background. The request
// context is only consulted synchronously; the crawl itself outlives the
// request.
func (m *Manager) CreateJob(ctx context.Context, req CrawlRequest) (Job, error) {
	if req.Marketplace == "" || req.ProductName == "" {
		return Job{}, fmt.Errorf("marketplace and product_name are required")
	}
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	job := &Job{
		ID:        uuid.New().String(),
		Status:    "queued",
		Request:   req,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.order = append(m.order, job.ID)
	m.mu.Unlock()

	go m.execute(job.ID)
	return snapshot, nil
}

func (m *Manager) execute(id string) {
	m.slot <- struct{}{}
	defer func() { <-m.slot }()

	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = "running"
	job.StartedAt = &now
	req := job.Request
	m.mu.Unlock()

	m.logger.Info("job started", "job_id", id, "marketplace", req.Marketplace, "product", req.ProductName)
	result, err := m.run(m.ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	done := time.Now()
	job.FinishedAt = &done
	job.Result = result
	if err != nil {
		job.Status = "failed"
		job.Error = err.Error()
		m.logger.Error("job failed", "job_id", id, "error", err)
		return
	}
	job.Status = "completed"
	m.logger.Info("job completed", "job_id", id,
		"listings", len(result.Listings), "reviews", len(result.Reviews))
}

// GetJob returns a snapshot of a job by id. Callers get a copy, not the
// live record the worker goroutine mutates.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// ListJobs returns snapshots of all jobs in creation order.
func (m *Manager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.jobs[id])
	}
	return out
}

// Stats counts jobs by status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int)
	for _, job := range m.jobs {
		stats[job.Status]++
	}
	stats["total"] = len(m.jobs)
	return stats
}
