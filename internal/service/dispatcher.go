package service

import (
	"context"

	"github.com/shortforge/trending-pipeline/internal/models"
)

// DispatchReceipt is returned when the executor accepts a job. Ref is the
// executor-side handle (broker message ID or task ID) used for cancellation.
type DispatchReceipt struct {
	Ref string
}

// Dispatcher hands jobs to the out-of-process executor. Dispatch must not wait
// for the job to run: a returned error means the executor did not accept the
// job, and anything that goes wrong later is reported through callbacks.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.ProductionJob) (DispatchReceipt, error)

	// Cancel asks the executor to stop work on the job. It is advisory.
	Cancel(ctx context.Context, job *models.ProductionJob) error
}
