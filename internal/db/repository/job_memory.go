package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shortforge/trending-pipeline/internal/db"
	"github.com/shortforge/trending-pipeline/internal/models"
)

// MemoryJobRepository is an in-process JobRepository used by tests and by the
// server when no database is configured. Stored records are copied on the way
// in and out so callers never share memory with the store.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*models.ProductionJob
}

// NewMemoryJobRepository creates an empty in-memory job store.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*models.ProductionJob)}
}

func (r *MemoryJobRepository) Create(_ context.Context, job *models.ProductionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.JobID]; exists {
		return fmt.Errorf("create production job: %w", db.ErrDuplicateKey)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	r.jobs[job.JobID] = job.Clone()
	return nil
}

func (r *MemoryJobRepository) Get(_ context.Context, jobID string) (*models.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("get production job: %w", db.ErrNotFound)
	}
	return job.Clone(), nil
}

func (r *MemoryJobRepository) Update(_ context.Context, jobID string, fn JobMutator) (*models.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("lock production job: %w", db.ErrNotFound)
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return stored.Clone(), nil
		}
		return nil, err
	}

	r.jobs[jobID] = working.Clone()
	return working, nil
}

func (r *MemoryJobRepository) ListStale(_ context.Context, before time.Time, limit int) ([]*models.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	var stale []*models.ProductionJob
	for _, job := range r.jobs {
		if job.Status.IsTerminal() {
			continue
		}
		if lastActivity(job).Before(before) {
			stale = append(stale, job.Clone())
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return lastActivity(stale[i]).Before(lastActivity(stale[j]))
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// Len returns the number of stored jobs.
func (r *MemoryJobRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func lastActivity(job *models.ProductionJob) time.Time {
	if job.UpdatedAt != nil {
		return *job.UpdatedAt
	}
	return job.CreatedAt
}
