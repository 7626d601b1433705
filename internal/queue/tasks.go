package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service"
)

// Task types
const (
	TypeProductionJob = "production:job"
)

// NewProductionJobTask builds the task the executor consumes. The body is the
// same DispatchMessage the RabbitMQ backend publishes, so executors can share
// one decoder.
func NewProductionJobTask(job *models.ProductionJob, submittedAt time.Time) (*asynq.Task, error) {
	if job == nil || job.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	body, err := json.Marshal(service.DispatchMessage{
		JobID:       job.JobID,
		Kind:        job.Kind,
		Payload:     job.Payload,
		SubmittedAt: submittedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	return asynq.NewTask(TypeProductionJob, body), nil
}

// UnmarshalProductionJobPayload deserializes a task body. It is the decoder
// for executor workers consuming TypeProductionJob from the asynq queue; this
// service only enqueues.
func UnmarshalProductionJobPayload(data []byte) (*service.DispatchMessage, error) {
	var msg service.DispatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &msg, nil
}
