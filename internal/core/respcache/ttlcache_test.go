package respcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewTTLCacheValidation(t *testing.T) {
	_, err := NewTTLCache[string](0)
	require.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = NewTTLCache[string](-1)
	require.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestTTLCacheSetGet(t *testing.T) {
	cache, err := NewTTLCache[string](10)
	require.NoError(t, err)

	require.NoError(t, cache.Set("k", "v", time.Minute))

	value, ok := cache.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", value)

	_, ok = cache.Get("absent")
	require.False(t, ok)

	stats := cache.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, 0.5, stats.HitRate)
}

func TestTTLCacheExpiryEvictsExactlyOnce(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache, err := NewTTLCache[string](10)
	require.NoError(t, err)
	cache.clock = func() time.Time { return now }

	require.NoError(t, cache.Set("k", "v", time.Second))

	value, ok := cache.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", value)

	now = now.Add(2 * time.Second)

	_, ok = cache.Get("k")
	require.False(t, ok)
	require.Equal(t, uint64(1), cache.Stats().Evictions)

	// A second lookup is a plain miss, not another eviction.
	_, ok = cache.Get("k")
	require.False(t, ok)
	require.Equal(t, uint64(1), cache.Stats().Evictions)
	require.Equal(t, 0, cache.Len())
}

func TestTTLCacheLRUEviction(t *testing.T) {
	cache, err := NewTTLCache[int](3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, cache.Set(fmt.Sprintf("k%d", i), i, time.Minute))
	}

	// One over capacity evicts exactly the least-recently-used entry.
	require.NoError(t, cache.Set("k3", 3, time.Minute))
	require.Equal(t, 3, cache.Len())
	require.Equal(t, uint64(1), cache.Stats().Evictions)

	_, ok := cache.Get("k0")
	require.False(t, ok)
}

func TestTTLCacheGetProtectsFromEviction(t *testing.T) {
	cache, err := NewTTLCache[int](3)
	require.NoError(t, err)

	require.NoError(t, cache.Set("a", 1, time.Minute))
	require.NoError(t, cache.Set("b", 2, time.Minute))
	require.NoError(t, cache.Set("c", 3, time.Minute))

	// Touching "a" makes "b" the next victim.
	_, ok := cache.Get("a")
	require.True(t, ok)

	require.NoError(t, cache.Set("d", 4, time.Minute))

	_, ok = cache.Get("a")
	require.True(t, ok)
	_, ok = cache.Get("b")
	require.False(t, ok)
}

func TestTTLCacheSetRefreshesEntry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache, err := NewTTLCache[string](2)
	require.NoError(t, err)
	cache.clock = func() time.Time { return now }

	require.NoError(t, cache.Set("k", "v1", time.Second))
	now = now.Add(900 * time.Millisecond)
	require.NoError(t, cache.Set("k", "v2", time.Second))
	now = now.Add(900 * time.Millisecond)

	// The refresh replaced both value and expiry.
	value, ok := cache.Get("k")
	require.True(t, ok)
	require.Equal(t, "v2", value)
	require.Equal(t, 1, cache.Len())
}

func TestTTLCacheSetSweepsExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache, err := NewTTLCache[string](10)
	require.NoError(t, err)
	cache.clock = func() time.Time { return now }

	require.NoError(t, cache.Set("short", "v", time.Second))
	require.NoError(t, cache.Set("long", "v", time.Hour))

	now = now.Add(2 * time.Second)
	require.NoError(t, cache.Set("fresh", "v", time.Minute))

	require.Equal(t, 2, cache.Len())
	require.Equal(t, uint64(1), cache.Stats().Evictions)
}

func TestTTLCacheTTLValidation(t *testing.T) {
	cache, err := NewTTLCache[string](10)
	require.NoError(t, err)

	require.ErrorIs(t, cache.Set("k", "v", -time.Second), ErrInvalidTTL)

	// Over-range TTLs are clamped, not rejected.
	require.NoError(t, cache.Set("k", "v", MaxTTL+time.Hour))
	_, ok := cache.Get("k")
	require.True(t, ok)
}

func TestTTLCacheClearKeepsCounters(t *testing.T) {
	cache, err := NewTTLCache[string](10)
	require.NoError(t, err)

	require.NoError(t, cache.Set("k", "v", time.Minute))
	_, _ = cache.Get("k")
	_, _ = cache.Get("absent")

	cache.Clear()

	stats := cache.Stats()
	require.Equal(t, 0, stats.Size)
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}

func TestTTLCacheDelete(t *testing.T) {
	cache, err := NewTTLCache[string](10)
	require.NoError(t, err)

	require.NoError(t, cache.Set("k", "v", time.Minute))
	cache.Delete("k")
	cache.Delete("k") // idempotent

	_, ok := cache.Get("k")
	require.False(t, ok)
}
