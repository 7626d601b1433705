package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/config"
	"github.com/shortforge/trending-pipeline/internal/db"
	"github.com/shortforge/trending-pipeline/internal/db/repository"
	"github.com/shortforge/trending-pipeline/internal/service"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

func main() {
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

	if !cfg.Database.Enabled {
		logger.Log.Fatal("The sweeper needs the shared job database (APP_DATABASE_ENABLED=true)")
	}
	if cfg.Sweeper.StalenessWindow <= 0 {
		logger.Log.Fatal("sweeper.stalenesswindow must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.FromSettings(cfg.Database))
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close(pool)

	// The sweeper never dispatches or serves /metrics.
	orchestrator := service.NewJobOrchestrator(repository.NewJobRepository(pool), nil, nil)

	sweeper := &Sweeper{
		jobs:      orchestrator,
		window:    cfg.Sweeper.StalenessWindow,
		batchSize: cfg.Sweeper.BatchSize,
		log:       logger.Named("sweeper"),
	}

	sweeper.log.Info("Stale job sweeper starting",
		zap.Duration("interval", cfg.Sweeper.Interval),
		zap.Duration("stalenessWindow", cfg.Sweeper.StalenessWindow),
		zap.Int("batchSize", cfg.Sweeper.BatchSize),
	)

	sweeper.Run(ctx, cfg.Sweeper.Interval)
	sweeper.log.Info("Stale job sweeper stopped gracefully")
}

// StaleJobFailer fails jobs that stopped reporting progress.
type StaleJobFailer interface {
	FailStale(ctx context.Context, window time.Duration, batchSize int) (int, error)
}

// Sweeper periodically fails jobs stuck past the staleness window.
type Sweeper struct {
	jobs      StaleJobFailer
	window    time.Duration
	batchSize int
	log       *zap.Logger
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweep drains stale jobs batch by batch. A short batch means nothing is left.
func (s *Sweeper) sweep(ctx context.Context) int {
	total := 0
	for {
		n, err := s.jobs.FailStale(ctx, s.window, s.batchSize)
		total += n
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.Error("Sweep failed", zap.Error(err), zap.Int("failedSoFar", total))
			}
			return total
		}
		if n == 0 || n < s.batchSize {
			break
		}
	}

	if total > 0 {
		s.log.Info("Timed out stale jobs", zap.Int("count", total))
	} else {
		s.log.Debug("No stale jobs")
	}
	return total
}
