package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/service/quota"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// QuotaReporter exposes today's YouTube quota usage.
type QuotaReporter interface {
	GetQuotaInfo(ctx context.Context) (*quota.Info, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks map[string]HealthCheck
	quota  QuotaReporter
}

// NewHealthHandler creates a new HealthHandler instance. q may be nil.
func NewHealthHandler(q QuotaReporter) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]HealthCheck),
		quota:  q,
	}
}

// AddCheck registers a named dependency check for the readiness probe.
func (h *HealthHandler) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// LivenessProbe checks if the application is running.
func (h *HealthHandler) LivenessProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// ReadinessProbe runs every registered check and reports DOWN with 503 if
// any of them fails.
func (h *HealthHandler) ReadinessProbe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			logger.Log.Error("Health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	body := gin.H{
		"status":       "UP",
		"dependencies": deps,
		"time":         time.Now(),
	}
	if status != http.StatusOK {
		body["status"] = "DOWN"
	}

	if h.quota != nil {
		if info, err := h.quota.GetQuotaInfo(ctx); err == nil {
			body["youtubeQuota"] = info
		} else {
			logger.Log.Warn("Quota info unavailable", zap.Error(err))
		}
	}

	c.JSON(status, body)
}
