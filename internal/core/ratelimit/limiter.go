package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Config holds the limiter tunables. Limits maps service names to requests
// per minute; everything else has defaults applied by New.
type Config struct {
	Limits map[string]int

	// Burst caps the token capacity of every bucket. Effective capacity is
	// min(Burst, rpm/12) so low-rate services cannot burst past their budget.
	Burst float64

	// MaxWaiters bounds how many callers may concurrently block in Acquire
	// per service. Callers beyond the cap are refused immediately.
	MaxWaiters int

	// MaxTimeout clamps the timeout passed to Acquire.
	MaxTimeout time.Duration

	// MinSleep is the floor for poll sleeps inside Acquire.
	MinSleep time.Duration

	// BackoffBase is the first backoff window applied on a throttle report
	// with no provider cooldown; BackoffCap bounds the doubling.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

const (
	defaultBurst       = 5.0
	defaultMaxWaiters  = 100
	defaultMaxTimeout  = 5 * time.Minute
	defaultMinSleep    = 10 * time.Millisecond
	defaultBackoffBase = time.Minute
	defaultBackoffCap  = 5 * time.Minute

	// maxRequestsPerMinute rejects configurations that are almost certainly
	// typos rather than real provider budgets.
	maxRequestsPerMinute = 10000
)

type serviceState struct {
	bucket  *TokenBucket
	waiters chan struct{}
}

// Limiter admits outbound calls per service: a token bucket for steady-state
// rate, a backoff deadline honoring provider throttle signals, and a bounded
// waiter gate so blocked callers cannot pile up without limit.
//
// One Limiter is shared by every API client in the process; all methods are
// safe for concurrent use.
type Limiter struct {
	services map[string]*serviceState

	// backoffMu guards backoffUntil. Stats and every writer take backoffMu
	// before any bucket lock, keeping a single global lock order.
	backoffMu    sync.Mutex
	backoffUntil map[string]time.Time

	cfg    Config
	clock  func() time.Time
	logger *logging.Logger
}

// ServiceStats is a consistent per-service snapshot.
type ServiceStats struct {
	Tokens       float64       `json:"available_tokens"`
	Capacity     float64       `json:"capacity"`
	Rate         float64       `json:"rate_per_second"`
	NextWait     time.Duration `json:"next_wait"`
	BackoffUntil time.Time     `json:"backoff_until,omitzero"`
}

// New validates cfg and builds a limiter with one bucket and one waiter gate
// per configured service.
func New(cfg Config, logger *logging.Logger) (*Limiter, error) {
	if len(cfg.Limits) == 0 {
		return nil, fmt.Errorf("%w: at least one service limit is required", ErrInvalidRate)
	}
	applyDefaults(&cfg)

	services := make(map[string]*serviceState, len(cfg.Limits))
	backoff := make(map[string]time.Time, len(cfg.Limits))

	for name, rpm := range cfg.Limits {
		if rpm <= 0 {
			return nil, fmt.Errorf("%w: rate for %q must be positive, got %d", ErrInvalidRate, name, rpm)
		}
		if rpm > maxRequestsPerMinute {
			return nil, fmt.Errorf("%w: rate for %q unreasonably high: %d", ErrInvalidRate, name, rpm)
		}

		rate := float64(rpm) / 60.0
		capacity := min(cfg.Burst, float64(rpm)/12.0)
		if capacity < 1 {
			capacity = 1
		}

		bucket, err := NewTokenBucket(rate, capacity)
		if err != nil {
			return nil, err
		}

		services[name] = &serviceState{
			bucket:  bucket,
			waiters: make(chan struct{}, cfg.MaxWaiters),
		}
		backoff[name] = time.Time{}
	}

	l := &Limiter{
		services:     services,
		backoffUntil: backoff,
		cfg:          cfg,
		logger:       logger,
	}

	if logger != nil {
		logger.Debug("Rate limiter initialized",
			zap.Int("services", len(services)),
			zap.Duration("backoff_base", cfg.BackoffBase),
			zap.Duration("backoff_cap", cfg.BackoffCap))
	}

	return l, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.MaxWaiters <= 0 {
		cfg.MaxWaiters = defaultMaxWaiters
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = defaultMaxTimeout
	}
	if cfg.MinSleep <= 0 {
		cfg.MinSleep = defaultMinSleep
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
}

// Acquire blocks until a token is available for service, the timeout expires,
// or ctx is cancelled. It returns (false, nil) on timeout and on waiter-gate
// saturation; errors are reserved for usage mistakes.
func (l *Limiter) Acquire(ctx context.Context, service string, timeout time.Duration) (bool, error) {
	state, ok := l.services[service]
	if !ok {
		return false, fmt.Errorf("%w: %q (known: %v)", ErrUnknownService, service, l.serviceNames())
	}

	if timeout < 0 {
		return false, fmt.Errorf("%w: must be non-negative, got %s", ErrInvalidTimeout, timeout)
	}
	if timeout > l.cfg.MaxTimeout {
		if l.logger != nil {
			l.logger.Warn("Acquire timeout exceeds maximum, capping",
				zap.String("service", service),
				zap.Duration("timeout", timeout),
				zap.Duration("max", l.cfg.MaxTimeout))
		}
		timeout = l.cfg.MaxTimeout
	}

	// Waiter gate: refuse instead of queueing unboundedly. This is the only
	// backpressure mechanism in the layer.
	select {
	case state.waiters <- struct{}{}:
	default:
		if l.logger != nil {
			l.logger.Warn("Too many concurrent waiters",
				zap.String("service", service),
				zap.Int("max_waiters", l.cfg.MaxWaiters))
		}
		return false, nil
	}
	defer func() { <-state.waiters }()

	deadline := l.now().Add(timeout)

	// Honor an active backoff deadline before touching the bucket. Tokens
	// may be available and still not admit while backing off.
	wait := l.backoffRemaining(service)
	if wait > 0 {
		if l.logger != nil {
			l.logger.Warn("Service in backoff period",
				zap.String("service", service),
				zap.Duration("wait", wait))
		}
		if l.now().Add(wait).After(deadline) {
			return false, nil
		}
		if ok := l.sleep(ctx, wait); !ok {
			return false, ctx.Err()
		}
	}

	for {
		if state.bucket.TryConsume(1) {
			if l.logger != nil {
				l.logger.Debug("Rate limit token acquired", zap.String("service", service))
			}
			return true, nil
		}

		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			if l.logger != nil {
				l.logger.Warn("Rate limit acquire timed out",
					zap.String("service", service),
					zap.Duration("timeout", timeout))
			}
			return false, nil
		}

		// The sleep floor keeps a nearly-full bucket from turning this loop
		// into a busy wait.
		sleep := max(l.cfg.MinSleep, min(state.bucket.TimeToNextToken(), remaining))
		if ok := l.sleep(ctx, sleep); !ok {
			return false, ctx.Err()
		}
	}
}

// ReportThrottled records a provider throttle signal. When the provider
// stated a cooldown it wins; otherwise the backoff starts at BackoffBase and
// doubles its remaining duration on repeated signals, bounded by BackoffCap.
func (l *Limiter) ReportThrottled(service string, retryAfter time.Duration) error {
	if _, ok := l.services[service]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	l.backoffMu.Lock()
	defer l.backoffMu.Unlock()

	now := l.now()

	var backoff time.Duration
	switch {
	case retryAfter > 0:
		backoff = retryAfter
	case l.backoffUntil[service].After(now):
		remaining := l.backoffUntil[service].Sub(now)
		backoff = min(2*remaining, l.cfg.BackoffCap)
	default:
		backoff = l.cfg.BackoffBase
	}

	l.backoffUntil[service] = now.Add(backoff)

	if l.logger != nil {
		l.logger.Warn("Provider throttled, backing off",
			zap.String("service", service),
			zap.Duration("backoff", backoff))
	}
	return nil
}

// ResetBackoff clears the backoff deadline for a service. Callers invoke it
// after any subsequent successful call so admission depends on tokens alone.
func (l *Limiter) ResetBackoff(service string) error {
	if _, ok := l.services[service]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	l.backoffMu.Lock()
	defer l.backoffMu.Unlock()
	l.backoffUntil[service] = time.Time{}
	return nil
}

// Stats returns a per-service snapshot. Locks are taken in a fixed global
// order (backoff map first, then buckets in sorted name order) so a
// concurrent writer path can never deadlock against a reader.
func (l *Limiter) Stats() map[string]ServiceStats {
	l.backoffMu.Lock()
	backoff := make(map[string]time.Time, len(l.backoffUntil))
	for name, until := range l.backoffUntil {
		backoff[name] = until
	}
	l.backoffMu.Unlock()

	stats := make(map[string]ServiceStats, len(l.services))
	for _, name := range l.serviceNames() {
		snap := l.services[name].bucket.Snapshot()
		stats[name] = ServiceStats{
			Tokens:       snap.Tokens,
			Capacity:     snap.Capacity,
			Rate:         snap.Rate,
			NextWait:     snap.NextWait,
			BackoffUntil: backoff[name],
		}
	}
	return stats
}

// Services lists the configured service names in sorted order.
func (l *Limiter) Services() []string {
	return l.serviceNames()
}

func (l *Limiter) serviceNames() []string {
	names := make([]string, 0, len(l.services))
	for name := range l.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Limiter) backoffRemaining(service string) time.Duration {
	l.backoffMu.Lock()
	defer l.backoffMu.Unlock()

	until := l.backoffUntil[service]
	if now := l.now(); until.After(now) {
		return until.Sub(now)
	}
	return 0
}

// sleep waits for d or context cancellation, reporting false when cancelled.
func (l *Limiter) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (l *Limiter) now() time.Time {
	if l != nil && l.clock != nil {
		return l.clock()
	}
	return time.Now().UTC()
}
