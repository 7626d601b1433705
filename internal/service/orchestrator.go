// Package service provides the business logic for job orchestration and
// trending catalog discovery.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/db"
	"github.com/shortforge/trending-pipeline/internal/db/repository"
	"github.com/shortforge/trending-pipeline/internal/metrics"
	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

// StepQueued is the step label of a job that has not been picked up yet.
const StepQueued = "queued"

// SubmitRequest is a validated-at-the-edge job submission.
type SubmitRequest struct {
	Kind    models.JobKind
	JobID   string
	Payload json.RawMessage
}

// CallbackResult reports what a callback did to the stored job.
type CallbackResult struct {
	Job     *models.ProductionJob
	Applied bool
}

// JobOrchestrator owns the production job lifecycle: it records submissions,
// hands them to the executor and folds executor callbacks into the record.
type JobOrchestrator struct {
	repo       repository.JobRepository
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewJobOrchestrator creates a new JobOrchestrator. m may be nil.
func NewJobOrchestrator(repo repository.JobRepository, dispatcher Dispatcher, m *metrics.Metrics) *JobOrchestrator {
	return &JobOrchestrator{
		repo:       repo,
		dispatcher: dispatcher,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Intended for tests.
func (o *JobOrchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Submit validates and records a new job, then dispatches it. A dispatch
// rejection is not an error: the job is marked failed and returned with
// Accepted=false, unless the executor already finished it.
func (o *JobOrchestrator) Submit(ctx context.Context, req SubmitRequest) (*models.SubmitJobResponseDTO, error) {
	// Step 1: Validate
	if err := ValidatePayload(req.Kind, req.Payload); err != nil {
		logger.Log.Warn("Job submission rejected",
			zap.Error(err),
			zap.String("kind", string(req.Kind)),
		)
		return nil, err
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	} else if err := ValidateJobID(jobID); err != nil {
		return nil, err
	}

	// Step 2: Record the job as queued before anything can report on it
	now := o.now()
	job := &models.ProductionJob{
		JobID:     jobID,
		Kind:      req.Kind,
		Status:    models.JobStatusQueued,
		Step:      StepQueued,
		Payload:   req.Payload,
		CreatedAt: now,
		UpdatedAt: &now,
	}

	if err := o.repo.Create(ctx, job); err != nil {
		if db.IsDuplicateKey(err) {
			return nil, &ConflictError{JobID: jobID}
		}
		logger.Log.Error("Failed to persist job",
			zap.Error(err),
			zap.String("jobId", jobID),
		)
		return nil, &ProcessingError{Message: "failed to persist job", Cause: err}
	}

	// Step 3: Dispatch
	receipt, err := o.dispatcher.Dispatch(ctx, job.Clone())
	if err != nil {
		return o.failDispatch(ctx, job, err)
	}

	o.metrics.JobSubmitted(string(job.Kind))
	logger.Log.Info("Job dispatched",
		zap.String("jobId", jobID),
		zap.String("kind", string(job.Kind)),
		zap.String("dispatchRef", receipt.Ref),
	)

	if receipt.Ref != "" {
		o.recordDispatchRef(ctx, jobID, receipt.Ref)
	}

	return &models.SubmitJobResponseDTO{
		JobID:    jobID,
		Accepted: true,
		Status:   models.JobStatusQueued,
	}, nil
}

func (o *JobOrchestrator) failDispatch(ctx context.Context, job *models.ProductionJob, cause error) (*models.SubmitJobResponseDTO, error) {
	o.metrics.DispatchFailed(string(job.Kind))
	logger.Log.Error("Job dispatch failed",
		zap.Error(cause),
		zap.String("jobId", job.JobID),
		zap.String("kind", string(job.Kind)),
	)

	msg := fmt.Sprintf("dispatch failed: %v", cause)
	marked := false
	stored, err := o.repo.Update(ctx, job.JobID, func(j *models.ProductionJob) error {
		if j.Status.IsTerminal() {
			return repository.ErrSkipUpdate
		}
		now := o.now()
		j.Status = models.JobStatusFailed
		j.Error = &msg
		j.UpdatedAt = &now
		marked = true
		return nil
	})
	if err != nil {
		logger.Log.Error("Failed to mark job as failed after dispatch error",
			zap.Error(err),
			zap.String("jobId", job.JobID),
		)
		return nil, &ProcessingError{Message: "failed to record dispatch failure", Cause: err}
	}

	// The executor may have reported a terminal state before the dispatch
	// error surfaced; that report stands.
	if !marked {
		logger.Log.Warn("Dispatch error after job already finished",
			zap.String("jobId", job.JobID),
			zap.String("status", string(stored.Status)),
		)
	}

	return &models.SubmitJobResponseDTO{
		JobID:    job.JobID,
		Accepted: !marked,
		Status:   stored.Status,
		Error:    stored.Error,
	}, nil
}

func (o *JobOrchestrator) recordDispatchRef(ctx context.Context, jobID, ref string) {
	_, err := o.repo.Update(ctx, jobID, func(j *models.ProductionJob) error {
		if j.Status.IsTerminal() {
			return repository.ErrSkipUpdate
		}
		j.DispatchRef = &ref
		return nil
	})
	if err != nil {
		logger.Log.Warn("Failed to record dispatch reference",
			zap.Error(err),
			zap.String("jobId", jobID),
		)
	}
}

// ApplyCallback folds an executor report into the job record. Reports for a
// job already in a terminal state are acknowledged without a write.
func (o *JobOrchestrator) ApplyCallback(ctx context.Context, cb *models.JobCallbackDTO) (*CallbackResult, error) {
	if cb == nil || cb.JobID == "" {
		return nil, &ValidationError{Message: "jobId is required"}
	}
	if !cb.Status.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid status: %q", cb.Status)}
	}

	applied := false
	job, err := o.repo.Update(ctx, cb.JobID, func(j *models.ProductionJob) error {
		if j.Status.IsTerminal() {
			return repository.ErrSkipUpdate
		}
		mergeCallback(j, cb, o.now())
		applied = true
		return nil
	})
	if err != nil {
		if db.IsNotFound(err) {
			return nil, &NotFoundError{JobID: cb.JobID}
		}
		logger.Log.Error("Failed to apply callback",
			zap.Error(err),
			zap.String("jobId", cb.JobID),
			zap.String("status", string(cb.Status)),
		)
		return nil, &ProcessingError{Message: "failed to apply callback", Cause: err}
	}

	if !applied {
		o.metrics.CallbackIgnored(string(cb.Status))
		logger.Log.Info("Callback for terminal job ignored",
			zap.String("jobId", cb.JobID),
			zap.String("currentStatus", string(job.Status)),
			zap.String("reportedStatus", string(cb.Status)),
		)
		return &CallbackResult{Job: job, Applied: false}, nil
	}

	o.metrics.CallbackApplied(string(cb.Status))
	logger.Log.Debug("Callback applied",
		zap.String("jobId", cb.JobID),
		zap.String("status", string(job.Status)),
		zap.String("step", job.Step),
		zap.Int("progressPct", job.ProgressPct),
	)

	return &CallbackResult{Job: job, Applied: true}, nil
}

// mergeCallback applies cb to a non-terminal job. Absent fields keep their
// stored values.
func mergeCallback(j *models.ProductionJob, cb *models.JobCallbackDTO, now time.Time) {
	previous := j.Status

	j.Status = cb.Status
	if cb.Step != "" {
		j.Step = cb.Step
	}
	if cb.ProgressPct != nil {
		j.ProgressPct = clampProgress(*cb.ProgressPct)
	}

	mergeString(&j.Artifacts.TranscriptURL, cb.TranscriptURL)
	mergeString(&j.Artifacts.RewrittenScript, cb.RewrittenScript)
	mergeString(&j.Artifacts.OutputVideoURL, cb.OutputVideoURL)
	mergeString(&j.Artifacts.OutputThumbnailURL, cb.OutputThumbnailURL)

	if cb.TokensUsed != nil {
		v := *cb.TokensUsed
		j.CostMetrics.TokensUsed = &v
	}
	if cb.TTSSeconds != nil {
		v := *cb.TTSSeconds
		j.CostMetrics.TTSSeconds = &v
	}
	if cb.CostEstimateCents != nil {
		v := *cb.CostEstimateCents
		j.CostMetrics.CostEstimateCents = &v
	}

	if j.StartedAt == nil && cb.Status == models.JobStatusProcessing &&
		(cb.Step == models.StepInit || previous == models.JobStatusQueued) {
		j.StartedAt = &now
	}

	switch cb.Status {
	case models.JobStatusCompleted:
		j.CompletedAt = &now
		j.ProgressPct = 100
	case models.JobStatusFailed:
		msg := ""
		if cb.Error != nil {
			msg = *cb.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("job failed at step %q", j.Step)
		}
		j.Error = &msg
	}

	j.UpdatedAt = &now
}

func mergeString(dst **string, src *string) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// GetStatus returns the current job record.
func (o *JobOrchestrator) GetStatus(ctx context.Context, jobID string) (*models.ProductionJob, error) {
	job, err := o.repo.Get(ctx, jobID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, &ProcessingError{Message: "failed to load job", Cause: err}
	}
	return job, nil
}

// Cancel records a cancellation request and forwards it to the executor. The
// job stays in its current state until the executor reports back.
func (o *JobOrchestrator) Cancel(ctx context.Context, jobID string) (*models.CancelJobResponseDTO, error) {
	requested := false
	job, err := o.repo.Update(ctx, jobID, func(j *models.ProductionJob) error {
		if j.Status.IsTerminal() {
			return repository.ErrSkipUpdate
		}
		requested = true
		if j.CancelRequestedAt != nil {
			return repository.ErrSkipUpdate
		}
		now := o.now()
		j.CancelRequestedAt = &now
		return nil
	})
	if err != nil {
		if db.IsNotFound(err) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, &ProcessingError{Message: "failed to record cancellation", Cause: err}
	}

	if requested {
		if cancelErr := o.dispatcher.Cancel(ctx, job); cancelErr != nil {
			logger.Log.Warn("Executor cancel request failed",
				zap.Error(cancelErr),
				zap.String("jobId", jobID),
			)
		} else {
			logger.Log.Info("Cancellation requested", zap.String("jobId", jobID))
		}
	}

	return &models.CancelJobResponseDTO{
		JobID:           jobID,
		CancelRequested: requested,
		Status:          job.Status,
	}, nil
}

// FailStale marks jobs with no progress since window ago as failed. It
// returns the number of jobs it failed.
func (o *JobOrchestrator) FailStale(ctx context.Context, window time.Duration, batchSize int) (int, error) {
	cutoff := o.now().Add(-window)
	stale, err := o.repo.ListStale(ctx, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	msg := fmt.Sprintf("timed out after %s without progress", window)
	failed := 0
	for _, candidate := range stale {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}

		timedOut := false
		_, err := o.repo.Update(ctx, candidate.JobID, func(j *models.ProductionJob) error {
			// A callback may have landed between the scan and the lock.
			if j.Status.IsTerminal() || !lastProgress(j).Before(cutoff) {
				return repository.ErrSkipUpdate
			}
			now := o.now()
			j.Status = models.JobStatusFailed
			j.Error = &msg
			j.UpdatedAt = &now
			timedOut = true
			return nil
		})
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			logger.Log.Error("Failed to time out stale job",
				zap.Error(err),
				zap.String("jobId", candidate.JobID),
			)
			continue
		}

		if timedOut {
			failed++
			o.metrics.JobTimedOut()
			logger.Log.Warn("Job timed out",
				zap.String("jobId", candidate.JobID),
				zap.String("step", candidate.Step),
				zap.Duration("window", window),
			)
		}
	}

	return failed, nil
}

func lastProgress(j *models.ProductionJob) time.Time {
	if j.UpdatedAt != nil {
		return *j.UpdatedAt
	}
	return j.CreatedAt
}
