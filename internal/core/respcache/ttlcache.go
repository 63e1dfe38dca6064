package respcache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MaxTTL bounds entry lifetimes to guard against overflow and unbounded
// memory from typo'd policy values.
const MaxTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidTTL is returned for negative TTLs or expiry computations
	// that land outside the bounded future range.
	ErrInvalidTTL = errors.New("invalid ttl")

	// ErrInvalidCapacity is returned when a cache is constructed with a
	// non-positive size cap.
	ErrInvalidCapacity = errors.New("invalid capacity")
)

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// TTLCache is a bounded key-value store with LRU recency order and per-entry
// absolute expiry. Expired entries are never served; they are evicted lazily
// on read and swept on every write. All operations are atomic with respect to
// each other.
type TTLCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = least recently used
	maxSize int
	clock   func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// Stats is a consistent snapshot of cache counters.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions uint64  `json:"evictions"`
}

// NewTTLCache returns an empty cache holding at most maxSize entries.
func NewTTLCache[V any](maxSize int) (*TTLCache[V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidCapacity, maxSize)
	}
	return &TTLCache[V]{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}, nil
}

// Get returns the live value for key. Expired entries are removed and counted
// as an eviction plus a miss; a live hit bumps the entry to most recently
// used.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if !ent.expiresAt.After(c.now()) {
		c.removeLocked(elem)
		c.evictions++
		c.misses++
		return zero, false
	}

	c.order.MoveToBack(elem)
	c.hits++
	return ent.value, true
}

// Set stores value under key for ttl. Negative TTLs are an error; TTLs over
// MaxTTL are clamped. Before inserting a new key at capacity, expired entries
// are swept and then the least-recently-used entry is evicted.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) error {
	if c == nil {
		return errors.New("cache is not initialized")
	}
	if ttl < 0 {
		return fmt.Errorf("%w: must be non-negative, got %s", ErrInvalidTTL, ttl)
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiresAt := now.Add(ttl)
	if expiresAt.Before(now) || expiresAt.After(now.Add(MaxTTL)) {
		return fmt.Errorf("%w: expiry computation out of range for ttl %s", ErrInvalidTTL, ttl)
	}

	c.sweepExpiredLocked(now)

	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToBack(elem)
		return nil
	}

	if len(c.entries) >= c.maxSize {
		if victim := c.order.Front(); victim != nil {
			c.removeLocked(victim)
			c.evictions++
		}
	}

	elem := c.order.PushBack(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	c.entries[key] = elem
	return nil
}

// Delete removes key if present.
func (c *TTLCache[V]) Delete(key string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

// Clear drops all entries. Lifetime counters survive so hit-rate history is
// not erased by an invalidation.
func (c *TTLCache[V]) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len reports the current entry count.
func (c *TTLCache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the current counters. Hit rate is hits/(hits+misses), zero
// before the first lookup.
func (c *TTLCache[V]) Stats() Stats {
	if c == nil {
		return Stats{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   hitRate,
		Evictions: c.evictions,
	}
}

func (c *TTLCache[V]) sweepExpiredLocked(now time.Time) {
	var next *list.Element
	for elem := c.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		if ent := elem.Value.(*entry[V]); !ent.expiresAt.After(now) {
			c.removeLocked(elem)
			c.evictions++
		}
	}
}

func (c *TTLCache[V]) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry[V])
	delete(c.entries, ent.key)
	c.order.Remove(elem)
}

func (c *TTLCache[V]) now() time.Time {
	if c != nil && c.clock != nil {
		return c.clock()
	}
	return time.Now().UTC()
}
