// Package handler provides HTTP request handlers for the application.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}

// handleError maps the service error taxonomy onto HTTP statuses.
func handleError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
		conflictErr   *service.ConflictError
		authErr       *service.AuthenticationError
		upstreamErr   *service.UpstreamError
		processingErr *service.ProcessingError
	)

	path := zap.String("path", c.Request.URL.Path)

	switch {
	case errors.As(err, &validationErr):
		logger.Log.Warn("Validation error", zap.Error(err), path)
		respondError(c, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &notFoundErr):
		logger.Log.Info("Job not found", zap.String("jobId", notFoundErr.JobID), path)
		respondError(c, http.StatusNotFound, "job not found")
	case errors.As(err, &conflictErr):
		logger.Log.Warn("Job conflict", zap.String("jobId", conflictErr.JobID), path)
		respondError(c, http.StatusConflict, conflictErr.Error())
	case errors.As(err, &authErr):
		logger.Log.Warn("Authentication error", zap.Error(err), path)
		respondError(c, http.StatusUnauthorized, "authentication failed")
	case errors.As(err, &upstreamErr):
		logger.Log.Error("Upstream error",
			zap.Error(err),
			zap.String("platform", string(upstreamErr.Platform)),
			path,
		)
		respondError(c, http.StatusBadGateway, upstreamErr.Error())
	case errors.As(err, &processingErr):
		logger.Log.Error("Processing error", zap.Error(err), path)
		respondError(c, http.StatusInternalServerError, processingErr.Message)
	default:
		logger.Log.Error("Unexpected error", zap.Error(err), path)
		respondError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
