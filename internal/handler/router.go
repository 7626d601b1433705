package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shortforge/trending-pipeline/internal/middleware"
)

// RouterConfig wires handlers to routes. Nil handlers leave their routes
// unmounted; an empty APIKeys leaves /api open.
type RouterConfig struct {
	Jobs           *JobHandler
	Webhook        *WebhookHandler
	Trending       *TrendingHandler
	Health         *HealthHandler
	Metrics        http.Handler
	APIKeys        []string
	WebhookSecret  string
	WebhookPath    string
	MaxPayloadSize int64
}

// NewRouter builds the gin engine with recovery and request logging.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	if cfg.Health != nil {
		r.GET("/health", cfg.Health.ReadinessProbe)
		r.GET("/health/live", cfg.Health.LivenessProbe)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	if cfg.Webhook != nil {
		path := cfg.WebhookPath
		if path == "" {
			path = "/webhooks/jobs"
		}
		r.POST(path,
			middleware.WebhookSecret(cfg.WebhookSecret),
			middleware.BodyLimit(cfg.MaxPayloadSize),
			cfg.Webhook.HandleJobCallback,
		)
	}

	api := r.Group("/api/v1")
	if len(cfg.APIKeys) > 0 {
		api.Use(middleware.NewAPIKeyAuth(cfg.APIKeys).Handler())
	}
	api.Use(middleware.BodyLimit(cfg.MaxPayloadSize))
	if cfg.Jobs != nil {
		cfg.Jobs.Register(api)
	}
	if cfg.Trending != nil {
		cfg.Trending.Register(api)
	}

	return r
}
