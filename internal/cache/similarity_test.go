package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "excluir boletos duplicados", cache.Normalize("  Excluir\tBOLETOS \n duplicados "))
	assert.Equal(t, "", cache.Normalize("   "))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "excluir boletos", "excluir boletos", 1.0},
		{"containment", "excluir boletos", "excluir boletos duplicados", float64(15) / 26 * 0.9},
		{"jaccard", "excluir registros duplicados banco", "remover registros duplicados banco", 0.6},
		{"short tokens ignored", "a b c", "a b d", 0},
		{"empty", "", "algo", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cache.Score(tt.a, tt.b), 1e-9)
		})
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemory(opts cache.SimilarityOptions) (*cache.MemorySimilarityCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return cache.NewMemorySimilarityCache(opts).WithClock(clock.Now), clock
}

func TestMemory_InsertThenLookup(t *testing.T) {
	c, _ := newMemory(cache.SimilarityOptions{})
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "SindicatoX", "Excluir boletos duplicados", "doc-1"))

	m, err := c.Lookup(ctx, "SindicatoX", "excluir   boletos DUPLICADOS")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "doc-1", m.Content)
	assert.Equal(t, 1.0, m.Score)
}

func TestMemory_ScopeIsolation(t *testing.T) {
	c, _ := newMemory(cache.SimilarityOptions{})
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "SindicatoX", "excluir boletos duplicados", "doc"))

	m, err := c.Lookup(ctx, "SindicatoY", "excluir boletos duplicados")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMemory_BelowThreshold(t *testing.T) {
	c, _ := newMemory(cache.SimilarityOptions{})
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "s", "configurar impressora do setor financeiro", "doc"))

	m, err := c.Lookup(ctx, "s", "excluir boletos duplicados do banco")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMemory_TTL(t *testing.T) {
	c, clock := newMemory(cache.SimilarityOptions{TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "s", "excluir boletos duplicados", "doc"))

	clock.Advance(59 * time.Minute)
	m, err := c.Lookup(ctx, "s", "excluir boletos duplicados")
	require.NoError(t, err)
	require.NotNil(t, m)

	clock.Advance(time.Minute)
	m, err = c.Lookup(ctx, "s", "excluir boletos duplicados")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_CapacityEvictsGloballyOldest(t *testing.T) {
	c, clock := newMemory(cache.SimilarityOptions{Capacity: 3})
	ctx := context.Background()

	names := []string{"alfa", "bravo", "charlie", "delta", "echo"}
	for i, name := range names {
		scope := fmt.Sprintf("scope-%d", i%2)
		require.NoError(t, c.Insert(ctx, scope, "pedido "+name, fmt.Sprintf("doc-%d", i)))
		clock.Advance(time.Second)
		assert.LessOrEqual(t, c.Len(), 3)
	}

	m, err := c.Lookup(ctx, "scope-0", "pedido alfa")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = c.Lookup(ctx, "scope-1", "pedido bravo")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = c.Lookup(ctx, "scope-0", "pedido echo")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "doc-4", m.Content)
}

func TestMemory_SameKeyReplaced(t *testing.T) {
	c, clock := newMemory(cache.SimilarityOptions{})
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "s", "excluir boletos", "old"))
	clock.Advance(time.Second)
	require.NoError(t, c.Insert(ctx, "s", "Excluir  Boletos", "new"))

	assert.Equal(t, 1, c.Len())
	m, err := c.Lookup(ctx, "s", "excluir boletos")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "new", m.Content)
}

func TestMemory_TieBreaksOnRecency(t *testing.T) {
	c, clock := newMemory(cache.SimilarityOptions{Threshold: 0.5})
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "s", "remover registros duplicados banco", "older"))
	clock.Advance(time.Second)
	require.NoError(t, c.Insert(ctx, "s", "apagar registros duplicados banco", "newer"))

	m, err := c.Lookup(ctx, "s", "excluir registros duplicados banco")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "newer", m.Content)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	c, _ := newMemory(cache.SimilarityOptions{Capacity: 10})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Insert(ctx, "s", fmt.Sprintf("pedido concorrente %d", i), "doc")
			_, _ = c.Lookup(ctx, "s", "pedido concorrente 1")
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 10)
}
