package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	rc, err := cache.NewRedisCache(startRedis(t))
	require.NoError(t, err)
	return rc
}

// setupRedisPair returns a RedisCache and a raw client on the same server.
func setupRedisPair(t *testing.T) (*cache.RedisCache, *redis.Client) {
	t.Helper()
	url := startRedis(t)
	rc, err := cache.NewRedisCache(url)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	raw := redis.NewClient(opts)
	t.Cleanup(func() { raw.Close() })
	return rc, raw
}

func startRedis(t *testing.T) string {
	t.Helper()
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

	return "redis://" + host + ":" + port.Port()
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- Set / Get roundtrip ---

func TestSetGet_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second)
	require.NoError(t, err)

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestGet_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestSet_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "expiry:key", []byte("temp"), 1*time.Second)
	require.NoError(t, err)

	// Immediately should exist
	_, found, err := rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	// Wait for TTL to expire
	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

// --- Delete ---

func TestDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "del:key", []byte("bye"), 10*time.Second))

	err := rc.Delete(ctx, "del:key")
	require.NoError(t, err)

	_, found, err := rc.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_NonExistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	err := rc.Delete(context.Background(), "does:not:exist")
	assert.NoError(t, err)
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:test:" + uuid.NewString()[:8]

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), val)
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:expiry:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	// After expiry, should start from 1 again
	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Cache Key Builders ---

func TestRateLimitKey(t *testing.T) {
	key := cache.RateLimitKey("key:gk_live_")
	assert.Equal(t, "ratelimit:key:gk_live_", key)
}

func TestSimilarityKeys(t *testing.T) {
	assert.Equal(t, "{simcache}:index", cache.SimilarityIndexKey())
	assert.Equal(t, "{simcache}:entry:abc", cache.SimilarityEntryKey("abc"))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	keys := map[string]bool{
		cache.RateLimitKey("ip:192.0.2.1"):         true,
		cache.SimilarityIndexKey():                 true,
		cache.SimilarityEntryKey(uuid.NewString()): true,
	}
	assert.Len(t, keys, 3, "all keys should be unique")
}

// --- Redis similarity cache ---

func TestRedisSimilarity_InsertThenLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	sc := cache.NewRedisSimilarityCache(rc, cache.SimilarityOptions{})
	ctx := context.Background()

	require.NoError(t, sc.Insert(ctx, "SindicatoX", "Excluir boletos  duplicados", "doc"))

	m, err := sc.Lookup(ctx, "SindicatoX", "  excluir BOLETOS duplicados ")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "doc", m.Content)
	assert.Equal(t, 1.0, m.Score)

	m, err = sc.Lookup(ctx, "OutroSindicato", "excluir boletos duplicados")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRedisSimilarity_EntriesAreJSONValuesWithTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc, raw := setupRedisPair(t)
	sc := cache.NewRedisSimilarityCache(rc, cache.SimilarityOptions{TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, sc.Insert(ctx, "SindicatoX", "Excluir boletos duplicados", "doc"))

	ids, err := raw.ZRange(ctx, cache.SimilarityIndexKey(), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, ids, 1)

	data, ok, err := rc.Get(ctx, cache.SimilarityEntryKey(ids[0]))
	require.NoError(t, err)
	require.True(t, ok)
	var e cache.Entry
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, "SindicatoX", e.Scope)
	assert.Equal(t, "excluir boletos duplicados", e.NormalizedText)
	assert.Equal(t, "doc", e.Content)

	ttl, err := raw.TTL(ctx, cache.SimilarityEntryKey(ids[0])).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestRedisSimilarity_EvictedEntriesAreDeleted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc, raw := setupRedisPair(t)
	sc := cache.NewRedisSimilarityCache(rc, cache.SimilarityOptions{Capacity: 1})
	ctx := context.Background()

	require.NoError(t, sc.Insert(ctx, "s", "first request text", "1"))
	ids, err := raw.ZRange(ctx, cache.SimilarityIndexKey(), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, sc.Insert(ctx, "s", "second request text", "2"))

	_, ok, err := rc.Get(ctx, cache.SimilarityEntryKey(ids[0]))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSimilarity_EvictsOldest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	sc := cache.NewRedisSimilarityCache(rc, cache.SimilarityOptions{Capacity: 2})
	ctx := context.Background()

	require.NoError(t, sc.Insert(ctx, "s", "first request text", "1"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, sc.Insert(ctx, "s", "second request text", "2"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, sc.Insert(ctx, "s", "third request text", "3"))

	m, err := sc.Lookup(ctx, "s", "first request text")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = sc.Lookup(ctx, "s", "third request text")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "3", m.Content)
}

func TestRedisSimilarity_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	sc := cache.NewRedisSimilarityCache(rc, cache.SimilarityOptions{TTL: time.Second})
	ctx := context.Background()

	require.NoError(t, sc.Insert(ctx, "s", "short lived entry", "x"))
	time.Sleep(1500 * time.Millisecond)

	m, err := sc.Lookup(ctx, "s", "short lived entry")
	require.NoError(t, err)
	assert.Nil(t, m)
}
