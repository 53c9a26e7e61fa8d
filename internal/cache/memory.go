package cache

import (
	"context"
	"sync"
	"time"
)

// MemorySimilarityCache keeps entries in process memory. One instance is
// shared by the job worker and the streaming handler.
type MemorySimilarityCache struct {
	mu      sync.Mutex
	entries []Entry
	opts    SimilarityOptions
	now     func() time.Time
}

// NewMemorySimilarityCache creates an empty in-memory similarity cache.
func NewMemorySimilarityCache(opts SimilarityOptions) *MemorySimilarityCache {
	return &MemorySimilarityCache{
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *MemorySimilarityCache) WithClock(now func() time.Time) *MemorySimilarityCache {
	c.now = now
	return c
}

func (c *MemorySimilarityCache) Lookup(_ context.Context, scope, text string) (*Match, error) {
	norm := Normalize(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	return bestMatch(c.entries, scope, norm, c.opts.Threshold), nil
}

func (c *MemorySimilarityCache) Insert(_ context.Context, scope, text, content string) error {
	entry := Entry{
		Scope:          scope,
		NormalizedText: Normalize(text),
		Content:        content,
		CreatedAt:      c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// an identical key is replaced rather than duplicated
	for i, e := range c.entries {
		if e.Scope == entry.Scope && e.NormalizedText == entry.NormalizedText {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}

	if len(c.entries) >= c.opts.Capacity {
		c.evictOldestLocked()
	}
	c.entries = append(c.entries, entry)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemorySimilarityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemorySimilarityCache) expireLocked() {
	cutoff := c.now().Add(-c.opts.TTL)
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.CreatedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	c.entries = kept
}

func (c *MemorySimilarityCache) evictOldestLocked() {
	if len(c.entries) == 0 {
		return
	}
	oldest := 0
	for i, e := range c.entries {
		if e.CreatedAt.Before(c.entries[oldest].CreatedAt) {
			oldest = i
		}
	}
	c.entries = append(c.entries[:oldest], c.entries[oldest+1:]...)
}

var _ SimilarityCache = (*MemorySimilarityCache)(nil)
