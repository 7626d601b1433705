package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/cache"
	"github.com/shortforge/trending-pipeline/internal/config"
	"github.com/shortforge/trending-pipeline/internal/db"
	"github.com/shortforge/trending-pipeline/internal/db/repository"
	"github.com/shortforge/trending-pipeline/internal/handler"
	"github.com/shortforge/trending-pipeline/internal/metrics"
	"github.com/shortforge/trending-pipeline/internal/queue"
	"github.com/shortforge/trending-pipeline/internal/service"
	"github.com/shortforge/trending-pipeline/internal/service/apify"
	"github.com/shortforge/trending-pipeline/internal/service/quota"
	"github.com/shortforge/trending-pipeline/internal/service/youtube"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

func main() {
	// Optional .env for local runs
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}

	if err := run(cfg); err != nil {
		logger.Log.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	m := metrics.New()
	health := &healthChecks{}

	// Job store: PostgreSQL, or in-memory when the database is disabled
	var (
		pool    *pgxpool.Pool
		jobRepo repository.JobRepository
		store   service.CatalogStore
	)
	if cfg.Database.Enabled {
		var err error
		pool, err = db.NewPool(ctx, db.FromSettings(cfg.Database))
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.Close(pool)

		logger.Log.Info("Database connection established",
			zap.String("host", cfg.Database.Host),
			zap.Int32("maxConns", pool.Config().MaxConns),
		)
		jobRepo = repository.NewJobRepository(pool)
		store = repository.NewTrendingVideoRepository(pool)
		health.add("database", pool.Ping)
	} else {
		logger.Log.Warn("Database disabled, jobs are kept in memory and catalogs are not persisted")
		jobRepo = repository.NewMemoryJobRepository()
	}

	// Redis: catalog cache and YouTube quota counter
	var (
		redisCache   *cache.RedisCache
		catalogCache service.CatalogCache
		quotaManager *quota.Manager
	)
	if cfg.Redis.URL != "" {
		var err error
		redisCache, err = cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("initialize redis: %w", err)
		}
		defer func() { _ = redisCache.Close() }()

		catalogCache = cache.NewCatalogCache(redisCache)
		quotaManager = quota.NewManager(redisCache, cfg.YouTube.DailyQuota, cfg.YouTube.QuotaThreshold)
		health.add("redis", redisCache.Ping)
	} else {
		logger.Log.Info("Redis not configured, catalog caching and quota accounting are disabled")
	}

	dispatcher, closeDispatcher, err := newDispatcher(cfg, health)
	if err != nil {
		return err
	}
	defer closeDispatcher()

	sources, err := newSources(ctx, cfg, quotaManager)
	if err != nil {
		return err
	}

	orchestrator := service.NewJobOrchestrator(jobRepo, dispatcher, m)
	catalog := service.NewCatalogBuilder(service.CatalogOptions{
		Store:    store,
		Cache:    catalogCache,
		CacheTTL: cfg.Redis.CatalogTTL,
		Metrics:  m,
	}, sources...)

	var quotaReporter handler.QuotaReporter
	if quotaManager != nil {
		quotaReporter = quotaManager
	}
	healthHandler := handler.NewHealthHandler(quotaReporter)
	health.register(healthHandler)

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Log.Warn("No API keys configured (APP_AUTH_APIKEYS), /api/v1 routes are unauthenticated")
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		Jobs:           handler.NewJobHandler(orchestrator),
		Webhook:        handler.NewWebhookHandler(orchestrator),
		Trending:       handler.NewTrendingHandler(catalog),
		Health:         healthHandler,
		Metrics:        m.Handler(),
		APIKeys:        cfg.Auth.APIKeys,
		WebhookSecret:  cfg.Webhook.Secret,
		WebhookPath:    cfg.Webhook.Path,
		MaxPayloadSize: cfg.Webhook.MaxPayloadSize,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.Apify.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("webhookPath", cfg.Webhook.Path),
			zap.String("dispatch", cfg.Dispatch.Backend),
			zap.Any("platforms", catalog.Platforms()),
		)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Log.Info("Server stopped gracefully")
		return nil
	}
}

// newDispatcher connects the configured executor backend.
func newDispatcher(cfg *config.Config, health *healthChecks) (service.Dispatcher, func(), error) {
	switch cfg.Dispatch.Backend {
	case config.DispatchAsynq:
		d, err := queue.NewDispatcher(cfg.Redis.URL, cfg.Dispatch.AsynqQueue)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize asynq dispatcher: %w", err)
		}
		logger.Log.Info("Dispatching jobs through asynq", zap.String("queue", d.Queue()))
		return d, func() { _ = d.Close() }, nil

	default:
		p, err := service.NewMessagePublisher(&cfg.RabbitMQ, cfg.Dispatch.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize rabbitmq publisher: %w", err)
		}
		health.add("rabbitmq", func(context.Context) error {
			if !p.IsHealthy() {
				return errors.New("rabbitmq channel closed")
			}
			return nil
		})
		logger.Log.Info("Dispatching jobs through RabbitMQ",
			zap.String("exchange", cfg.RabbitMQ.Exchange),
			zap.String("routingKey", cfg.RabbitMQ.RoutingKey),
		)
		return p, func() { _ = p.Close() }, nil
	}
}

// newSources builds a catalog source for every platform with credentials.
func newSources(ctx context.Context, cfg *config.Config, quotaManager *quota.Manager) ([]service.Source, error) {
	var sources []service.Source

	if cfg.YouTube.APIKey != "" {
		var guard youtube.QuotaGuard
		if quotaManager != nil {
			guard = quotaManager
		}
		yt, err := youtube.NewClient(ctx, cfg.YouTube.APIKey, guard)
		if err != nil {
			return nil, fmt.Errorf("initialize YouTube client: %w", err)
		}
		sources = append(sources, yt)
	} else {
		logger.Log.Info("YouTube API key not configured (APP_YOUTUBE_APIKEY), youtube catalog disabled")
	}

	if cfg.Apify.Token != "" {
		client, err := apify.NewClient(apify.Config{
			BaseURL: cfg.Apify.BaseURL,
			Token:   cfg.Apify.Token,
			Timeout: cfg.Apify.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize Apify client: %w", err)
		}
		sources = append(sources,
			apify.NewTikTokSource(client, cfg.Apify.TikTokActor),
			apify.NewInstagramSource(client, cfg.Apify.InstagramActor),
		)
	} else {
		logger.Log.Info("Apify token not configured (APP_APIFY_TOKEN), tiktok and instagram catalogs disabled")
	}

	return sources, nil
}

// healthChecks collects readiness checks while dependencies are wired.
type healthChecks struct {
	names  []string
	checks []handler.HealthCheck
}

func (h *healthChecks) add(name string, check handler.HealthCheck) {
	h.names = append(h.names, name)
	h.checks = append(h.checks, check)
}

func (h *healthChecks) register(hh *handler.HealthHandler) {
	for i, name := range h.names {
		hh.AddCheck(name, h.checks[i])
	}
}
