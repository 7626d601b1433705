// Package queue is the asynq dispatch backend: production jobs are enqueued
// as Redis tasks keyed by job ID and cancelled through the asynq inspector.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

const (
	defaultQueue    = "production"
	defaultMaxRetry = 3
	defaultRetain   = 24 * time.Hour
)

// ErrAlreadyEnqueued is returned when a task with the job's ID already exists.
var ErrAlreadyEnqueued = errors.New("job already enqueued")

// Dispatcher enqueues production jobs into asynq. It implements
// service.Dispatcher.
type Dispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	maxRetry  int
	now       func() time.Time
}

// NewDispatcher creates a dispatcher for the given Redis URL and queue name.
func NewDispatcher(redisURL, queueName string) (*Dispatcher, error) {
	// Parse Redis URL to extract connection details (host, password, db, TLS)
	redisOpt, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if queueName == "" {
		queueName = defaultQueue
	}

	return &Dispatcher{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     queueName,
		maxRetry:  defaultMaxRetry,
		now:       time.Now,
	}, nil
}

// Close closes the client and inspector connections.
func (d *Dispatcher) Close() error {
	return errors.Join(d.client.Close(), d.inspector.Close())
}

// Queue returns the asynq queue jobs are enqueued into.
func (d *Dispatcher) Queue() string {
	return d.queue
}

// Dispatch enqueues the job with its job ID as the task ID.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.ProductionJob) (service.DispatchReceipt, error) {
	task, err := NewProductionJobTask(job, d.now())
	if err != nil {
		return service.DispatchReceipt{}, err
	}

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.TaskID(job.JobID),
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Retention(defaultRetain),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return service.DispatchReceipt{}, fmt.Errorf("%w: %s", ErrAlreadyEnqueued, job.JobID)
		}
		return service.DispatchReceipt{}, fmt.Errorf("failed to enqueue job: %w", err)
	}

	logger.Log.Info("Production job enqueued",
		zap.String("jobId", job.JobID),
		zap.String("kind", string(job.Kind)),
		zap.String("taskId", info.ID),
		zap.String("queue", info.Queue),
	)

	return service.DispatchReceipt{Ref: info.ID}, nil
}

// Cancel removes a task that has not started yet, or signals the worker
// running it. Finished or unknown tasks are left alone.
func (d *Dispatcher) Cancel(_ context.Context, job *models.ProductionJob) error {
	taskID := job.JobID
	if job.DispatchRef != nil && *job.DispatchRef != "" {
		taskID = *job.DispatchRef
	}

	info, err := d.inspector.GetTaskInfo(d.queue, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		return fmt.Errorf("failed to inspect task: %w", err)
	}

	switch info.State {
	case asynq.TaskStateActive:
		if err := d.inspector.CancelProcessing(taskID); err != nil {
			return fmt.Errorf("failed to cancel running task: %w", err)
		}
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		if err := d.inspector.DeleteTask(d.queue, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("failed to delete task: %w", err)
		}
	default:
		return nil
	}

	logger.Log.Info("Production job cancel sent",
		zap.String("jobId", job.JobID),
		zap.String("taskId", taskID),
		zap.String("state", info.State.String()),
	)
	return nil
}
