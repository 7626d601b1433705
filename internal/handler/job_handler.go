package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

// JobService is the orchestrator surface the job routes use.
type JobService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*models.SubmitJobResponseDTO, error)
	GetStatus(ctx context.Context, jobID string) (*models.ProductionJob, error)
	Cancel(ctx context.Context, jobID string) (*models.CancelJobResponseDTO, error)
}

// JobHandler serves job submission, status and cancellation.
type JobHandler struct {
	jobs JobService
}

// NewJobHandler creates a new JobHandler instance.
func NewJobHandler(jobs JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Register mounts the job routes on rg.
func (h *JobHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/jobs", h.Submit)
	rg.GET("/jobs/:jobId", h.GetStatus)
	rg.POST("/jobs/:jobId/cancel", h.Cancel)
}

// Submit creates and dispatches a job. 202 when the executor accepted it,
// 200 with accepted=false when dispatch failed and the job was recorded as
// failed.
func (h *JobHandler) Submit(c *gin.Context) {
	var req models.SubmitJobDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Invalid job submission", zap.Error(err))
		respondError(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	resp, err := h.jobs.Submit(c.Request.Context(), service.SubmitRequest{
		Kind:    req.Kind,
		JobID:   req.JobID,
		Payload: req.Payload,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusAccepted
	if !resp.Accepted {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// GetStatus returns the current job record.
func (h *JobHandler) GetStatus(c *gin.Context) {
	job, err := h.jobs.GetStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel records a cancellation request and forwards it to the executor.
// A job that already finished answers 200 with cancelRequested=false.
func (h *JobHandler) Cancel(c *gin.Context) {
	resp, err := h.jobs.Cancel(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusAccepted
	if !resp.CancelRequested {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}
