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

// CallbackApplier folds executor callbacks into the job store.
type CallbackApplier interface {
	ApplyCallback(ctx context.Context, cb *models.JobCallbackDTO) (*service.CallbackResult, error)
}

// WebhookHandler handles executor progress callbacks. The shared secret is
// checked by middleware.WebhookSecret before this handler runs.
type WebhookHandler struct {
	callbacks CallbackApplier
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(callbacks CallbackApplier) *WebhookHandler {
	return &WebhookHandler{callbacks: callbacks}
}

// HandleJobCallback applies one executor report.
func (h *WebhookHandler) HandleJobCallback(c *gin.Context) {
	var payload models.JobCallbackDTO
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Log.Warn("Invalid callback payload",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusBadRequest, "Invalid callback payload")
		return
	}

	result, err := h.callbacks.ApplyCallback(c.Request.Context(), &payload)
	if err != nil {
		handleError(c, err)
		return
	}

	logger.Log.Info("Job callback received",
		zap.String("jobId", payload.JobID),
		zap.String("status", string(payload.Status)),
		zap.String("step", payload.Step),
		zap.Bool("applied", result.Applied),
	)

	c.JSON(http.StatusOK, models.CallbackResponseDTO{OK: true})
}
