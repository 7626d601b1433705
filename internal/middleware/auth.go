// Package middleware holds the gin middleware shared by the HTTP routes.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

const (
	headerAPIKey = "X-API-Key"
	headerAuth   = "Authorization"
	bearerPrefix = "Bearer "
)

// APIKeyAuth provides API key authentication for the /api routes.
type APIKeyAuth struct {
	apiKeys [][]byte
}

// NewAPIKeyAuth creates the middleware. Empty keys are ignored; with no keys
// configured every request is rejected.
func NewAPIKeyAuth(apiKeys []string) *APIKeyAuth {
	keys := make([][]byte, 0, len(apiKeys))
	for _, key := range apiKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, []byte(key))
		}
	}
	return &APIKeyAuth{apiKeys: keys}
}

// Handler returns the gin middleware. It accepts the key from X-API-Key or
// an Authorization: Bearer header.
func (a *APIKeyAuth) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.isValidAPIKey(extractAPIKey(c)) {
			logger.Log.Warn("Unauthorized request - invalid or missing API key",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("clientIp", c.ClientIP()),
			)
			abortUnauthorized(c, "invalid or missing API key")
			return
		}
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if apiKey := c.GetHeader(headerAPIKey); apiKey != "" {
		return apiKey
	}
	if authHeader := c.GetHeader(headerAuth); strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix)
	}
	return ""
}

// isValidAPIKey compares against every configured key in constant time.
func (a *APIKeyAuth) isValidAPIKey(provided string) bool {
	if provided == "" {
		return false
	}
	match := 0
	for _, key := range a.apiKeys {
		match |= subtle.ConstantTimeCompare([]byte(provided), key)
	}
	return match == 1
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:    http.StatusUnauthorized,
		Error:     "Unauthorized",
		Message:   message,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}
