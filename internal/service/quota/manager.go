package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/cache"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

// counterTTL keeps a day's counter around long enough to be read after rollover.
const counterTTL = 48 * time.Hour

// Counter is the slice of the cache the manager needs.
type Counter interface {
	GetInt64(ctx context.Context, key string) (int64, error)
	IncrByWithExpiry(ctx context.Context, key string, n int64, expiry time.Duration) (int64, error)
}

// Info is a snapshot of today's usage.
type Info struct {
	Date           string `json:"date"`
	QuotaUsed      int    `json:"quotaUsed"`
	QuotaLimit     int    `json:"quotaLimit"`
	QuotaRemaining int    `json:"quotaRemaining"`
}

// Manager handles YouTube API quota management
type Manager struct {
	counter          Counter
	api              string
	dailyLimit       int
	thresholdPercent int // Stop processing when this % of quota is used
	location         *time.Location
	now              func() time.Time
}

// NewManager creates a new quota manager
func NewManager(counter Counter, dailyLimit int, thresholdPercent int) *Manager {
	if dailyLimit <= 0 {
		dailyLimit = 10000 // YouTube API v3 default
	}
	if thresholdPercent <= 0 || thresholdPercent > 100 {
		thresholdPercent = 90 // Stop at 90% by default
	}

	// YouTube quota resets at midnight Pacific time.
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.UTC
	}

	return &Manager{
		counter:          counter,
		api:              "youtube",
		dailyLimit:       dailyLimit,
		thresholdPercent: thresholdPercent,
		location:         loc,
		now:              time.Now,
	}
}

func (m *Manager) key() (string, string) {
	day := m.now().In(m.location).Format("2006-01-02")
	return cache.QuotaKey(m.api, day), day
}

func (m *Manager) threshold() int {
	return (m.dailyLimit * m.thresholdPercent) / 100
}

// CheckQuotaAvailable reports whether requiredQuota more units fit under the threshold.
func (m *Manager) CheckQuotaAvailable(ctx context.Context, requiredQuota int) (bool, error) {
	info, err := m.GetQuotaInfo(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get quota info: %w", err)
	}

	thresholdQuota := m.threshold()

	if info.QuotaUsed >= thresholdQuota {
		logger.Log.Warn("Quota threshold reached",
			zap.Int("used", info.QuotaUsed),
			zap.Int("limit", m.dailyLimit),
		)
		return false, nil
	}

	if info.QuotaUsed+requiredQuota > thresholdQuota {
		logger.Log.Warn("Not enough quota for operation",
			zap.Int("required", requiredQuota),
			zap.Int("used", info.QuotaUsed),
			zap.Int("threshold", thresholdQuota),
		)
		return false, nil
	}

	return true, nil
}

// RecordQuotaUsage records API quota usage
func (m *Manager) RecordQuotaUsage(ctx context.Context, quotaCost int, operationType string) error {
	key, _ := m.key()
	used, err := m.counter.IncrByWithExpiry(ctx, key, int64(quotaCost), counterTTL)
	if err != nil {
		return fmt.Errorf("failed to record quota usage: %w", err)
	}

	logger.Log.Debug("Quota used",
		zap.Int64("used", used),
		zap.Int("limit", m.dailyLimit),
		zap.Int("cost", quotaCost),
		zap.String("operation", operationType),
	)

	return nil
}

// GetQuotaInfo returns current quota information
func (m *Manager) GetQuotaInfo(ctx context.Context) (*Info, error) {
	key, day := m.key()
	used, err := m.counter.GetInt64(ctx, key)
	if err != nil {
		return nil, err
	}

	remaining := m.dailyLimit - int(used)
	if remaining < 0 {
		remaining = 0
	}

	return &Info{
		Date:           day,
		QuotaUsed:      int(used),
		QuotaLimit:     m.dailyLimit,
		QuotaRemaining: remaining,
	}, nil
}
