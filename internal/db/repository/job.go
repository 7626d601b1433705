package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shortforge/trending-pipeline/internal/db"
	"github.com/shortforge/trending-pipeline/internal/models"
)

// ErrSkipUpdate may be returned by a JobMutator to leave the stored record
// untouched. Update then returns the current record and a nil error.
var ErrSkipUpdate = errors.New("skip update")

// JobMutator mutates a job in place inside a per-job critical section.
type JobMutator func(job *models.ProductionJob) error

// JobRepository is the Job Record Store. All mutation goes through
// single-record updates keyed by job ID.
type JobRepository interface {
	// Create inserts a new job. Returns db.ErrDuplicateKey if the ID is taken.
	Create(ctx context.Context, job *models.ProductionJob) error

	// Get retrieves a job by ID. Returns db.ErrNotFound if absent.
	Get(ctx context.Context, jobID string) (*models.ProductionJob, error)

	// Update loads the job, applies fn and persists the result atomically.
	// Concurrent updates for the same job are serialized.
	Update(ctx context.Context, jobID string, fn JobMutator) (*models.ProductionJob, error)

	// ListStale returns non-terminal jobs whose last update is older than before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*models.ProductionJob, error)
}

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new pgx-backed JobRepository.
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepository{pool: pool}
}

const jobColumns = `
	job_id, kind, status, step, progress_pct, payload,
	transcript_url, rewritten_script, output_video_url, output_thumbnail_url,
	tokens_used, tts_seconds, cost_estimate_cents,
	error_message, dispatch_ref, cancel_requested_at,
	created_at, started_at, updated_at, completed_at`

func (r *jobRepository) Create(ctx context.Context, job *models.ProductionJob) error {
	query := `
		INSERT INTO production_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query, jobArgs(job)...)
	if err != nil {
		return db.WrapError(err, "create production job")
	}

	return nil
}

func (r *jobRepository) Get(ctx context.Context, jobID string) (*models.ProductionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM production_jobs WHERE job_id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		return nil, db.WrapError(err, "get production job")
	}

	return job, nil
}

func (r *jobRepository) Update(ctx context.Context, jobID string, fn JobMutator) (*models.ProductionJob, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, db.WrapError(err, "begin job update")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Row lock serializes concurrent callbacks for the same job.
	query := `SELECT ` + jobColumns + ` FROM production_jobs WHERE job_id = $1 FOR UPDATE`
	job, err := scanJob(tx.QueryRow(ctx, query, jobID))
	if err != nil {
		return nil, db.WrapError(err, "lock production job")
	}

	if err := fn(job); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return job, nil
		}
		return nil, err
	}

	update := `
		UPDATE production_jobs
		SET status = $2, step = $3, progress_pct = $4,
		    transcript_url = $5, rewritten_script = $6, output_video_url = $7, output_thumbnail_url = $8,
		    tokens_used = $9, tts_seconds = $10, cost_estimate_cents = $11,
		    error_message = $12, dispatch_ref = $13, cancel_requested_at = $14,
		    started_at = $15, updated_at = $16, completed_at = $17
		WHERE job_id = $1
	`
	tag, err := tx.Exec(ctx, update,
		job.JobID,
		string(job.Status),
		job.Step,
		job.ProgressPct,
		job.Artifacts.TranscriptURL,
		job.Artifacts.RewrittenScript,
		job.Artifacts.OutputVideoURL,
		job.Artifacts.OutputThumbnailURL,
		job.CostMetrics.TokensUsed,
		job.CostMetrics.TTSSeconds,
		job.CostMetrics.CostEstimateCents,
		job.Error,
		job.DispatchRef,
		job.CancelRequestedAt,
		job.StartedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return nil, db.WrapError(err, "update production job")
	}
	if tag.RowsAffected() == 0 {
		return nil, db.WrapError(pgx.ErrNoRows, "update production job")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, db.WrapError(err, "commit job update")
	}

	return job, nil
}

func (r *jobRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.ProductionJob, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + jobColumns + `
		FROM production_jobs
		WHERE status IN ('queued', 'processing')
		  AND COALESCE(updated_at, created_at) < $1
		ORDER BY COALESCE(updated_at, created_at) ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, db.WrapError(err, "list stale jobs")
	}
	defer rows.Close()

	var jobs []*models.ProductionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan production job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate production jobs: %w", err)
	}

	return jobs, nil
}

func jobArgs(job *models.ProductionJob) []any {
	var payload []byte
	if len(job.Payload) > 0 {
		payload = job.Payload
	}

	return []any{
		job.JobID,
		string(job.Kind),
		string(job.Status),
		job.Step,
		job.ProgressPct,
		payload,
		job.Artifacts.TranscriptURL,
		job.Artifacts.RewrittenScript,
		job.Artifacts.OutputVideoURL,
		job.Artifacts.OutputThumbnailURL,
		job.CostMetrics.TokensUsed,
		job.CostMetrics.TTSSeconds,
		job.CostMetrics.CostEstimateCents,
		job.Error,
		job.DispatchRef,
		job.CancelRequestedAt,
		job.CreatedAt,
		job.StartedAt,
		job.UpdatedAt,
		job.CompletedAt,
	}
}

func scanJob(row pgx.Row) (*models.ProductionJob, error) {
	job := &models.ProductionJob{}
	var (
		kind, status string
		payload      []byte
	)

	err := row.Scan(
		&job.JobID, &kind, &status, &job.Step, &job.ProgressPct, &payload,
		&job.Artifacts.TranscriptURL, &job.Artifacts.RewrittenScript,
		&job.Artifacts.OutputVideoURL, &job.Artifacts.OutputThumbnailURL,
		&job.CostMetrics.TokensUsed, &job.CostMetrics.TTSSeconds, &job.CostMetrics.CostEstimateCents,
		&job.Error, &job.DispatchRef, &job.CancelRequestedAt,
		&job.CreatedAt, &job.StartedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = models.JobKind(kind)
	job.Status = models.JobStatus(status)
	if len(payload) > 0 {
		job.Payload = payload
	}

	return job, nil
}
