package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	limiter, err := New(cfg, nil)
	require.NoError(t, err)
	return limiter
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, nil)
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = New(Config{Limits: map[string]int{"x": 0}}, nil)
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = New(Config{Limits: map[string]int{"x": -5}}, nil)
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = New(Config{Limits: map[string]int{"x": 20000}}, nil)
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestAcquireUnknownService(t *testing.T) {
	limiter := newTestLimiter(t, Config{Limits: map[string]int{"x": 60}})

	_, err := limiter.Acquire(context.Background(), "nope", time.Second)
	require.ErrorIs(t, err, ErrUnknownService)

	require.ErrorIs(t, limiter.ReportThrottled("nope", 0), ErrUnknownService)
	require.ErrorIs(t, limiter.ResetBackoff("nope"), ErrUnknownService)
}

func TestAcquireNegativeTimeout(t *testing.T) {
	limiter := newTestLimiter(t, Config{Limits: map[string]int{"x": 60}})

	_, err := limiter.Acquire(context.Background(), "x", -time.Second)
	require.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestAcquireZeroTimeoutEmptyBucket(t *testing.T) {
	limiter := newTestLimiter(t, Config{Limits: map[string]int{"x": 60}})

	// Burst capacity for 60 rpm is min(5, 60/12) = 5.
	for i := 0; i < 5; i++ {
		ok, err := limiter.Acquire(context.Background(), "x", 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	start := time.Now()
	ok, err := limiter.Acquire(context.Background(), "x", 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAcquireWaiterGateSaturation(t *testing.T) {
	limiter := newTestLimiter(t, Config{
		Limits:     map[string]int{"x": 12}, // one token capacity, slow refill
		Burst:      1,
		MaxWaiters: 1,
	})

	ok, err := limiter.Acquire(context.Background(), "x", 0)
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Occupies the single waiter slot while polling for a token.
		_, _ = limiter.Acquire(context.Background(), "x", 500*time.Millisecond)
	}()

	time.Sleep(50 * time.Millisecond)

	ok, err = limiter.Acquire(context.Background(), "x", time.Second)
	require.NoError(t, err)
	require.False(t, ok, "saturated gate must refuse immediately")

	wg.Wait()
}

func TestBackoffBlocksDespiteTokens(t *testing.T) {
	limiter := newTestLimiter(t, Config{Limits: map[string]int{"x": 60}})

	require.NoError(t, limiter.ReportThrottled("x", 0))

	// Bucket is full, yet the backoff deadline refuses admission.
	ok, err := limiter.Acquire(context.Background(), "x", 0)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, limiter.ResetBackoff("x"))

	ok, err = limiter.Acquire(context.Background(), "x", 0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, Config{
		Limits:      map[string]int{"x": 60},
		BackoffBase: 10 * time.Second,
		BackoffCap:  25 * time.Second,
	})
	limiter.clock = func() time.Time { return now }

	require.NoError(t, limiter.ReportThrottled("x", 0))
	require.Equal(t, now.Add(10*time.Second), limiter.Stats()["x"].BackoffUntil)

	require.NoError(t, limiter.ReportThrottled("x", 0))
	require.Equal(t, now.Add(20*time.Second), limiter.Stats()["x"].BackoffUntil)

	require.NoError(t, limiter.ReportThrottled("x", 0))
	require.Equal(t, now.Add(25*time.Second), limiter.Stats()["x"].BackoffUntil)

	require.NoError(t, limiter.ResetBackoff("x"))
	require.True(t, limiter.Stats()["x"].BackoffUntil.IsZero())
}

func TestReportThrottledHonorsRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(t, Config{Limits: map[string]int{"x": 60}})
	limiter.clock = func() time.Time { return now }

	require.NoError(t, limiter.ReportThrottled("x", 7*time.Second))
	require.Equal(t, now.Add(7*time.Second), limiter.Stats()["x"].BackoffUntil)
}

func TestAcquireBlocksUntilRefill(t *testing.T) {
	// Scaled-down version of the 2/min capacity-1 property: at 10 tokens/sec
	// with capacity 1, the second acquire should block roughly 100ms.
	limiter := newTestLimiter(t, Config{
		Limits: map[string]int{"x": 600},
		Burst:  1,
	})

	ok, err := limiter.Acquire(context.Background(), "x", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	ok, err = limiter.Acquire(context.Background(), "x", 5*time.Second)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.True(t, ok)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, time.Second)
}

func TestAcquireClampsTimeoutToMaximum(t *testing.T) {
	limiter := newTestLimiter(t, Config{
		Limits:     map[string]int{"x": 12},
		Burst:      1,
		MaxTimeout: 50 * time.Millisecond,
	})

	ok, err := limiter.Acquire(context.Background(), "x", 0)
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	ok, err = limiter.Acquire(context.Background(), "x", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)
	require.Less(t, time.Since(start), time.Second)
}

func TestAcquireContextCancellation(t *testing.T) {
	limiter := newTestLimiter(t, Config{
		Limits: map[string]int{"x": 12},
		Burst:  1,
	})

	ok, err := limiter.Acquire(context.Background(), "x", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	ok, err = limiter.Acquire(ctx, "x", 5*time.Second)
	require.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStatsSnapshot(t *testing.T) {
	limiter := newTestLimiter(t, Config{Limits: map[string]int{"a": 60, "b": 120}})

	stats := limiter.Stats()
	require.Len(t, stats, 2)

	a := stats["a"]
	require.Equal(t, 1.0, a.Rate)
	require.Equal(t, 5.0, a.Capacity)
	require.InDelta(t, 5.0, a.Tokens, 0.1)
	require.Equal(t, time.Duration(0), a.NextWait)
	require.True(t, a.BackoffUntil.IsZero())

	require.Equal(t, []string{"a", "b"}, limiter.Services())
}
