package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

// HeaderWebhookSecret carries the executor's shared secret.
const HeaderWebhookSecret = "X-Webhook-Secret"

// WebhookSecret rejects callbacks whose X-Webhook-Secret header does not
// match secret. It runs before the body is read, so a rejected request
// never reaches the job store.
func WebhookSecret(secret string) gin.HandlerFunc {
	expected := []byte(secret)

	return func(c *gin.Context) {
		provided := c.GetHeader(HeaderWebhookSecret)
		if provided == "" {
			rejectWebhook(c, &service.AuthenticationError{Reason: "missing webhook credential"})
			return
		}

		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			rejectWebhook(c, &service.AuthenticationError{Reason: "invalid webhook credential"})
			return
		}

		c.Next()
	}
}

// rejectWebhook records err on the context for the request logger and aborts
// with 401. The body carries only the reason, never anything from the payload.
func rejectWebhook(c *gin.Context, err *service.AuthenticationError) {
	logger.Log.Warn("Webhook rejected",
		zap.Error(err),
		zap.String("clientIp", c.ClientIP()),
	)
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:    http.StatusUnauthorized,
		Error:     "Unauthorized",
		Message:   err.Error(),
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}
