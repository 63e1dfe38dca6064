package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// TokenBucket meters admissions for a single service. Credit accrues
// continuously at Rate tokens per second up to Capacity, so short bursts are
// allowed while the average rate holds over time.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64
	capacity   float64
	tokens     float64
	lastRefill time.Time
	clock      func() time.Time
}

// BucketSnapshot is a point-in-time view of a bucket, taken under one lock.
type BucketSnapshot struct {
	Tokens   float64       `json:"tokens"`
	Capacity float64       `json:"capacity"`
	Rate     float64       `json:"rate_per_second"`
	NextWait time.Duration `json:"next_wait"`
}

// NewTokenBucket returns a bucket that starts full.
func NewTokenBucket(rate, capacity float64) (*TokenBucket, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: rate must be positive, got %v", ErrInvalidRate, rate)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %v", ErrInvalidCapacity, capacity)
	}

	b := &TokenBucket{
		rate:     rate,
		capacity: capacity,
		tokens:   capacity,
	}
	b.lastRefill = b.now()
	return b, nil
}

// TryConsume refills the bucket for the elapsed time and consumes n tokens if
// available. The refill accounting happens even when the consume is refused.
func (b *TokenBucket) TryConsume(n float64) bool {
	if b == nil || n <= 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// TimeToNextToken reports how long until one full token has accrued.
// Zero when a token is already available.
func (b *TokenBucket) TimeToNextToken() time.Duration {
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// Snapshot returns a consistent view of the bucket state.
func (b *TokenBucket) Snapshot() BucketSnapshot {
	if b == nil {
		return BucketSnapshot{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	var wait time.Duration
	if b.tokens < 1 {
		wait = time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	}

	return BucketSnapshot{
		Tokens:   b.tokens,
		Capacity: b.capacity,
		Rate:     b.rate,
		NextWait: wait,
	}
}

// refillLocked credits tokens for elapsed time. Callers must hold b.mu so the
// elapsed computation never races against another refill or consume.
func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.lastRefill = now
}

func (b *TokenBucket) now() time.Time {
	if b != nil && b.clock != nil {
		return b.clock()
	}
	return time.Now().UTC()
}
