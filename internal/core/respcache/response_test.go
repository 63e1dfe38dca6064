package respcache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestResponseCache(t *testing.T, cfg Config) *ResponseCache {
	t.Helper()
	rc, err := NewResponseCache(cfg, nil)
	require.NoError(t, err)
	return rc
}

func TestNewResponseCacheValidation(t *testing.T) {
	_, err := NewResponseCache(Config{DefaultTTL: -time.Second}, nil)
	require.ErrorIs(t, err, ErrInvalidTTL)

	_, err = NewResponseCache(Config{
		Rules: []Rule{{Pattern: "price", TTL: -time.Minute}},
	}, nil)
	require.ErrorIs(t, err, ErrInvalidTTL)

	_, err = NewResponseCache(Config{
		Rules: []Rule{{Pattern: "price", TTL: MaxTTL + time.Hour}},
	}, nil)
	require.ErrorIs(t, err, ErrInvalidTTL)
}

func TestResponseCacheParamOrderIndependence(t *testing.T) {
	rc := newTestResponseCache(t, Config{})

	a := map[string]string{"ids": "bitcoin", "vs_currencies": "usd"}
	b := map[string]string{"vs_currencies": "usd", "ids": "bitcoin"}
	require.Equal(t, rc.cacheKey("coins/history", a), rc.cacheKey("coins/history", b))

	body := json.RawMessage(`{"bitcoin":{"usd":50000}}`)
	require.NoError(t, rc.Set("coins/history", a, body))

	got, ok := rc.Get("coins/history", b)
	require.True(t, ok)
	require.Equal(t, body, got)
}

func TestResponseCacheDistinctParamsDistinctKeys(t *testing.T) {
	rc := newTestResponseCache(t, Config{})

	a := map[string]string{"ids": "bitcoin"}
	b := map[string]string{"ids": "ethereum"}
	require.NotEqual(t, rc.cacheKey("coins/history", a), rc.cacheKey("coins/history", b))

	require.NoError(t, rc.Set("coins/history", a, json.RawMessage(`1`)))
	_, ok := rc.Get("coins/history", b)
	require.False(t, ok)
}

func TestResponseCacheLiveBucketing(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC)
	rc := newTestResponseCache(t, Config{BucketWidth: time.Minute})
	rc.clock = func() time.Time { return now }

	params := map[string]string{"ids": "bitcoin"}
	first := rc.cacheKey("simple/price", params)

	// Same bucket window: identical key.
	now = now.Add(30 * time.Second)
	require.Equal(t, first, rc.cacheKey("simple/price", params))

	// Next bucket window: different key.
	now = now.Add(30 * time.Second)
	require.NotEqual(t, first, rc.cacheKey("simple/price", params))
}

func TestResponseCacheSubSecondBucketWidth(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rc := newTestResponseCache(t, Config{BucketWidth: 500 * time.Millisecond})
	rc.clock = func() time.Time { return now }

	params := map[string]string{"ids": "bitcoin"}
	first := rc.cacheKey("simple/price", params)

	// Same 500ms window: identical key.
	now = now.Add(200 * time.Millisecond)
	require.Equal(t, first, rc.cacheKey("simple/price", params))

	// Next window: different key.
	now = now.Add(400 * time.Millisecond)
	require.NotEqual(t, first, rc.cacheKey("simple/price", params))

	require.NoError(t, rc.Set("simple/price", params, json.RawMessage(`1`)))
	_, ok := rc.Get("simple/price", params)
	require.True(t, ok)
}

func TestResponseCacheNonLiveIgnoresTime(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rc := newTestResponseCache(t, Config{})
	rc.clock = func() time.Time { return now }

	params := map[string]string{"days": "30"}
	first := rc.cacheKey("coins/bitcoin/ohlc", params)

	now = now.Add(10 * time.Minute)
	require.Equal(t, first, rc.cacheKey("coins/bitcoin/ohlc", params))
}

func TestTTLForFirstMatchWins(t *testing.T) {
	rc := newTestResponseCache(t, Config{})

	// "price" precedes "coins" in the default table.
	require.Equal(t, 2*time.Minute, rc.TTLFor("simple/price"))
	require.Equal(t, 3*time.Minute, rc.TTLFor("coins/markets"))
	require.Equal(t, time.Hour, rc.TTLFor("coins/bitcoin/ohlc"))
	require.Equal(t, time.Hour, rc.TTLFor("coins/bitcoin/market_chart"))
	require.Equal(t, 2*time.Hour, rc.TTLFor("coins/bitcoin/history"))
	require.Equal(t, 10*time.Minute, rc.TTLFor("coins/bitcoin"))
	require.Equal(t, 10*time.Minute, rc.TTLFor("global"))
	require.Equal(t, DefaultTTL, rc.TTLFor("exchange_rates"))
}

func TestResponseCacheInvalidate(t *testing.T) {
	rc := newTestResponseCache(t, Config{})
	params := map[string]string{"ids": "bitcoin"}

	require.NoError(t, rc.Set("coins/history", params, json.RawMessage(`1`)))
	rc.Invalidate("coins/history", params)

	_, ok := rc.Get("coins/history", params)
	require.False(t, ok)
}

func TestResponseCacheClearAndStats(t *testing.T) {
	rc := newTestResponseCache(t, Config{MaxSize: 5})
	params := map[string]string{"ids": "bitcoin"}

	require.NoError(t, rc.Set("coins/history", params, json.RawMessage(`1`)))
	_, ok := rc.Get("coins/history", params)
	require.True(t, ok)

	rc.Clear()

	stats := rc.Stats()
	require.Equal(t, 0, stats.Size)
	require.Equal(t, 5, stats.MaxSize)
	require.Equal(t, uint64(1), stats.Hits)
}

func TestResponseCacheRulesCopy(t *testing.T) {
	rc := newTestResponseCache(t, Config{})

	rules, defaultTTL := rc.Rules()
	require.Equal(t, DefaultRules, rules)
	require.Equal(t, DefaultTTL, defaultTTL)

	// Mutating the returned slice must not affect policy resolution.
	rules[0].TTL = time.Nanosecond
	require.Equal(t, 2*time.Minute, rc.TTLFor("simple/price"))
}

func TestResponseCacheNilParams(t *testing.T) {
	rc := newTestResponseCache(t, Config{})

	require.NoError(t, rc.Set("global", nil, json.RawMessage(`{}`)))
	got, ok := rc.Get("global", nil)
	require.True(t, ok)
	require.Equal(t, json.RawMessage(`{}`), got)
}
