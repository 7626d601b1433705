package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shortforge/trending-pipeline/internal/cache"
	"github.com/shortforge/trending-pipeline/internal/metrics"
	"github.com/shortforge/trending-pipeline/internal/models"
	"github.com/shortforge/trending-pipeline/internal/service/platform"
	"github.com/shortforge/trending-pipeline/pkg/logger"
)

// DefaultMaxResults is used when a fetch does not ask for a size.
const DefaultMaxResults = 20

// Source is a platform-specific discovery backend.
type Source interface {
	Platform() models.Platform
	// MaxResults is the platform's hard per-fetch ceiling.
	MaxResults() int
	Search(ctx context.Context, niche string, maxResults int) ([]platform.Payload, error)
}

// CatalogStore persists fetched batches.
type CatalogStore interface {
	SaveBatch(ctx context.Context, videos []*models.TrendingVideo) error
	ListLatest(ctx context.Context, platform models.Platform, niche string, limit int) ([]*models.TrendingVideo, error)
}

// CatalogCache short-circuits repeated identical fetches.
type CatalogCache interface {
	GetCatalog(ctx context.Context, key string) ([]*models.TrendingVideo, bool, error)
	SetCatalog(ctx context.Context, key string, videos []*models.TrendingVideo, ttl time.Duration) error
}

// CatalogBuilder fetches, normalizes and scores trending videos.
type CatalogBuilder struct {
	sources  map[models.Platform]Source
	store    CatalogStore
	cache    CatalogCache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

// CatalogOptions are the optional collaborators of a CatalogBuilder.
type CatalogOptions struct {
	Store    CatalogStore
	Cache    CatalogCache
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
}

// NewCatalogBuilder creates a builder over the given sources.
func NewCatalogBuilder(opts CatalogOptions, sources ...Source) *CatalogBuilder {
	b := &CatalogBuilder{
		sources:  make(map[models.Platform]Source, len(sources)),
		store:    opts.Store,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, s := range sources {
		b.sources[s.Platform()] = s
	}
	return b
}

// SetClock overrides the time source. Intended for tests.
func (b *CatalogBuilder) SetClock(now func() time.Time) {
	b.now = now
}

// Platforms lists the configured platforms.
func (b *CatalogBuilder) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(b.sources))
	for p := range b.sources {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fetch returns up to maxResults scored videos for niche, highest score first.
// An upstream failure aborts the whole fetch with an *UpstreamError and nothing
// is cached or persisted.
func (b *CatalogBuilder) Fetch(ctx context.Context, p models.Platform, niche string, maxResults int) ([]*models.TrendingVideo, error) {
	niche = strings.TrimSpace(niche)
	if niche == "" {
		return nil, &ValidationError{Message: "niche is required"}
	}
	if !p.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown platform: %q", p)}
	}
	src, ok := b.sources[p]
	if !ok {
		return nil, &ValidationError{Message: fmt.Sprintf("platform %s is not configured", p)}
	}

	maxResults = clampResults(maxResults, src.MaxResults())
	key := cache.CatalogKey(p, niche, maxResults)

	if cached, ok := b.fromCache(ctx, key); ok {
		b.metrics.TrendingFetch(string(p), "cached", 0)
		return cached, nil
	}

	start := time.Now()
	payloads, err := src.Search(ctx, niche, maxResults)
	if err != nil {
		b.metrics.TrendingFetch(string(p), "error", time.Since(start))
		logger.Log.Error("Trending fetch failed",
			zap.Error(err),
			zap.String("platform", string(p)),
			zap.String("niche", niche),
		)
		return nil, &UpstreamError{Platform: p, Cause: err}
	}

	fetchedAt := b.now()
	videos := make([]*models.TrendingVideo, 0, len(payloads))
	for _, raw := range payloads {
		v, err := platform.Normalize(raw, niche, fetchedAt)
		if err != nil {
			b.metrics.TrendingFetch(string(p), "error", time.Since(start))
			return nil, &UpstreamError{Platform: p, Cause: fmt.Errorf("malformed item: %w", err)}
		}
		videos = append(videos, v)
	}

	videos = dedupe(videos)
	if len(videos) > maxResults {
		videos = videos[:maxResults]
	}
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].ViralityScore > videos[j].ViralityScore
	})

	if b.store != nil && len(videos) > 0 {
		if err := b.store.SaveBatch(ctx, videos); err != nil {
			logger.Log.Error("Failed to persist trending batch",
				zap.Error(err),
				zap.String("platform", string(p)),
				zap.Int("count", len(videos)),
			)
			return nil, &ProcessingError{Message: "failed to persist trending batch", Cause: err}
		}
	}

	b.toCache(ctx, key, videos)
	b.metrics.TrendingFetch(string(p), "ok", time.Since(start))

	logger.Log.Info("Trending catalog fetched",
		zap.String("platform", string(p)),
		zap.String("niche", niche),
		zap.Int("count", len(videos)),
	)

	return videos, nil
}

// Top returns the most recently persisted batch for platform and niche.
func (b *CatalogBuilder) Top(ctx context.Context, p models.Platform, niche string, limit int) ([]*models.TrendingVideo, error) {
	if !p.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown platform: %q", p)}
	}
	niche = strings.TrimSpace(niche)
	if niche == "" {
		return nil, &ValidationError{Message: "niche is required"}
	}
	if b.store == nil {
		return []*models.TrendingVideo{}, nil
	}

	videos, err := b.store.ListLatest(ctx, p, niche, clampResults(limit, 100))
	if err != nil {
		return nil, &ProcessingError{Message: "failed to load trending catalog", Cause: err}
	}
	return videos, nil
}

func (b *CatalogBuilder) fromCache(ctx context.Context, key string) ([]*models.TrendingVideo, bool) {
	if b.cache == nil || b.cacheTTL <= 0 {
		return nil, false
	}
	videos, found, err := b.cache.GetCatalog(ctx, key)
	if err != nil {
		logger.Log.Warn("Catalog cache read failed", zap.Error(err), zap.String("key", key))
		return nil, false
	}
	return videos, found
}

func (b *CatalogBuilder) toCache(ctx context.Context, key string, videos []*models.TrendingVideo) {
	if b.cache == nil || b.cacheTTL <= 0 {
		return
	}
	if err := b.cache.SetCatalog(ctx, key, videos, b.cacheTTL); err != nil {
		logger.Log.Warn("Catalog cache write failed", zap.Error(err), zap.String("key", key))
	}
}

func clampResults(n, ceiling int) int {
	if ceiling <= 0 {
		ceiling = DefaultMaxResults
	}
	if n <= 0 {
		n = DefaultMaxResults
	}
	if n > ceiling {
		return ceiling
	}
	return n
}

// dedupe drops repeated source IDs, keeping the first occurrence.
func dedupe(videos []*models.TrendingVideo) []*models.TrendingVideo {
	seen := make(map[string]struct{}, len(videos))
	out := videos[:0]
	for _, v := range videos {
		if _, dup := seen[v.SourceVideoID]; dup {
			continue
		}
		seen[v.SourceVideoID] = struct{}{}
		out = append(out, v)
	}
	return out
}
