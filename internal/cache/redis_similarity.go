package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSimilarityCache stores entries in Redis so that several server
// instances share one cache. Entries are JSON values written through Cache
// with the TTL attached; a sorted set ordered by creation time indexes them.
// All keys share the {simcache} hash tag, so the cache also works on Redis
// Cluster.
type RedisSimilarityCache struct {
	kv     Cache
	client *redis.Client
	opts   SimilarityOptions
	now    func() time.Time
}

// NewRedisSimilarityCache creates a similarity cache on the connection held by rc.
func NewRedisSimilarityCache(rc *RedisCache, opts SimilarityOptions) *RedisSimilarityCache {
	return &RedisSimilarityCache{
		kv:     rc,
		client: rc.client,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// KEYS[1] index
// ARGV: id, created_at_ms, capacity
// Returns the ids evicted to keep the index within capacity.
var luaIndex = redis.NewScript(`
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
local excess = redis.call("ZCARD", KEYS[1]) - tonumber(ARGV[3])
if excess <= 0 then
	return {}
end
local old = redis.call("ZRANGE", KEYS[1], 0, excess - 1)
for _, id in ipairs(old) do
	redis.call("ZREM", KEYS[1], id)
end
return old`)

func (c *RedisSimilarityCache) Insert(ctx context.Context, scope, text, content string) error {
	id := uuid.NewString()
	created := c.now()

	raw, err := json.Marshal(Entry{Scope: scope, NormalizedText: Normalize(text), Content: content, CreatedAt: created})
	if err != nil {
		return fmt.Errorf("encode similarity entry: %w", err)
	}
	if err := c.kv.Set(ctx, SimilarityEntryKey(id), raw, c.opts.TTL); err != nil {
		return fmt.Errorf("store similarity entry: %w", err)
	}

	evicted, err := luaIndex.Run(ctx, c.client, []string{SimilarityIndexKey()},
		id, created.UnixMilli(), c.opts.Capacity,
	).StringSlice()
	if err != nil {
		return fmt.Errorf("index similarity entry: %w", err)
	}
	for _, old := range evicted {
		if err := c.kv.Delete(ctx, SimilarityEntryKey(old)); err != nil {
			slog.Warn("deleting evicted similarity entry failed", "id", old, "error", err)
		}
	}
	return nil
}

func (c *RedisSimilarityCache) Lookup(ctx context.Context, scope, text string) (*Match, error) {
	cutoff := c.now().Add(-c.opts.TTL).UnixMilli()
	index := SimilarityIndexKey()

	if err := c.client.ZRemRangeByScore(ctx, index, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("expire similarity entries: %w", err)
	}

	ids, err := c.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list similarity entries: %w", err)
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := c.kv.Get(ctx, SimilarityEntryKey(id))
		if err != nil {
			return nil, fmt.Errorf("load similarity entry: %w", err)
		}
		if !ok {
			// expired before the index caught up
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			slog.Warn("skipping malformed similarity entry", "id", id, "error", err)
			continue
		}
		entries = append(entries, e)
	}

	return bestMatch(entries, scope, Normalize(text), c.opts.Threshold), nil
}

var _ SimilarityCache = (*RedisSimilarityCache)(nil)
