package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shortforge/trending-pipeline/internal/cache"
	"github.com/shortforge/trending-pipeline/internal/models"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Ping(ctx))
	require.NoError(t, rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second))

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)

	require.NoError(t, rc.Delete(ctx, "test:key"))
	_, found, err = rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_Counters(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()

	n, err := rc.GetInt64(ctx, "quota:youtube:2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = rc.IncrByWithExpiry(ctx, "quota:youtube:2026-01-01", 100, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)

	n, err = rc.IncrByWithExpiry(ctx, "quota:youtube:2026-01-01", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(101), n)

	n, err = rc.GetInt64(ctx, "quota:youtube:2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(101), n)
}

func TestRedisCache_GetInt64NonNumeric(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "not-a-number", []byte("abc"), time.Minute))
	_, err := rc.GetInt64(ctx, "not-a-number")
	assert.Error(t, err)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryCache) Ping(context.Context) error { return nil }

func (m *memoryCache) GetInt64(context.Context, string) (int64, error) { return 0, nil }

func (m *memoryCache) IncrByWithExpiry(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, nil
}

func TestCatalogCache_Roundtrip(t *testing.T) {
	cc := cache.NewCatalogCache(&memoryCache{data: map[string][]byte{}})
	ctx := context.Background()
	key := cache.CatalogKey(models.PlatformTikTok, "Dance", 10)

	_, found, err := cc.GetCatalog(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	duration := 14
	videos := []*models.TrendingVideo{
		{Platform: models.PlatformTikTok, SourceVideoID: "1", Title: "a", ViralityScore: 3.1, DurationSeconds: &duration},
		{Platform: models.PlatformTikTok, SourceVideoID: "2", Title: "b", ViralityScore: 1.2},
	}
	require.NoError(t, cc.SetCatalog(ctx, key, videos, time.Minute))

	got, found, err := cc.GetCatalog(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].SourceVideoID)
	assert.Equal(t, 14, *got[0].DurationSeconds)
	assert.Nil(t, got[1].DurationSeconds)
}

func TestCatalogCache_CorruptEntry(t *testing.T) {
	mc := &memoryCache{data: map[string][]byte{"k": []byte("{not json")}}
	_, found, err := cache.NewCatalogCache(mc).GetCatalog(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "trending:youtube:cat videos:25", cache.CatalogKey(models.PlatformYouTube, "  Cat Videos ", 25))
	assert.Equal(t, "quota:youtube:2026-03-01", cache.QuotaKey("youtube", "2026-03-01"))
}
