package service

import (
	"fmt"

	"github.com/shortforge/trending-pipeline/internal/models"
)

// ValidationError represents a missing or malformed submission or callback field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError represents an operation on an unknown job.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

// ConflictError represents a submission reusing an existing job ID.
type ConflictError struct {
	JobID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("job %s already exists", e.JobID)
}

// AuthenticationError represents a missing or mismatched webhook credential.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

// UpstreamError represents a platform source failure during a trending fetch.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type UpstreamError struct {
	Platform models.Platform
	Cause    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream error: %v", e.Platform, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// ProcessingError represents an internal failure such as a storage error.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}
