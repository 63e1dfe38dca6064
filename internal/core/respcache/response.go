package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Rule maps an endpoint substring pattern to a TTL. Rules are evaluated in
// declared order; the first match wins.
type Rule struct {
	Pattern string        `json:"pattern"`
	TTL     time.Duration `json:"ttl"`
}

// DefaultRules is the production expiry policy: volatile quote data expires
// in minutes, immutable historical series persist for hours.
var DefaultRules = []Rule{
	{Pattern: "price", TTL: 2 * time.Minute},
	{Pattern: "markets", TTL: 3 * time.Minute},
	{Pattern: "ohlc", TTL: time.Hour},
	{Pattern: "market_chart", TTL: time.Hour},
	{Pattern: "history", TTL: 2 * time.Hour},
	{Pattern: "coins", TTL: 10 * time.Minute},
	{Pattern: "global", TTL: 10 * time.Minute},
}

// DefaultLivePatterns classify endpoints whose responses go stale within a
// time bucket rather than a fixed TTL.
var DefaultLivePatterns = []string{"price", "markets"}

const (
	DefaultTTL         = 5 * time.Minute
	DefaultBucketWidth = time.Minute
	DefaultMaxSize     = 1000
)

// Config holds the response-cache policy. Zero fields take the defaults
// above.
type Config struct {
	MaxSize      int
	DefaultTTL   time.Duration
	Rules        []Rule
	LivePatterns []string
	BucketWidth  time.Duration
}

// ResponseCache stores raw API responses keyed by a digest of
// (endpoint, canonicalized parameters, optional time bucket). Endpoints
// matching a live pattern share one entry per bucket window, which groups
// near-simultaneous lookups of volatile data without serving prices older
// than the bucket width. Everything else keys purely on endpoint+params so
// identical historical queries hit until their TTL lapses.
type ResponseCache struct {
	cache        *TTLCache[json.RawMessage]
	rules        []Rule
	defaultTTL   time.Duration
	livePatterns []string
	bucketWidth  time.Duration
	clock        func() time.Time
	logger       *logging.Logger
}

// NewResponseCache validates cfg and builds the cache.
func NewResponseCache(cfg Config, logger *logging.Logger) (*ResponseCache, error) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.DefaultTTL < 0 || cfg.DefaultTTL > MaxTTL {
		return nil, fmt.Errorf("%w: default ttl %s out of range", ErrInvalidTTL, cfg.DefaultTTL)
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules
	}
	for _, rule := range cfg.Rules {
		if rule.TTL < 0 || rule.TTL > MaxTTL {
			return nil, fmt.Errorf("%w: ttl %s for pattern %q out of range", ErrInvalidTTL, rule.TTL, rule.Pattern)
		}
	}
	if len(cfg.LivePatterns) == 0 {
		cfg.LivePatterns = DefaultLivePatterns
	}
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = DefaultBucketWidth
	}

	cache, err := NewTTLCache[json.RawMessage](cfg.MaxSize)
	if err != nil {
		return nil, err
	}

	rc := &ResponseCache{
		cache:        cache,
		rules:        cfg.Rules,
		defaultTTL:   cfg.DefaultTTL,
		livePatterns: cfg.LivePatterns,
		bucketWidth:  cfg.BucketWidth,
		logger:       logger,
	}

	if logger != nil {
		logger.Debug("Response cache initialized",
			zap.Int("max_size", cfg.MaxSize),
			zap.Duration("default_ttl", cfg.DefaultTTL),
			zap.Int("rules", len(cfg.Rules)))
	}

	return rc, nil
}

// Get returns the cached response for endpoint+params, if live.
func (rc *ResponseCache) Get(endpoint string, params map[string]string) (json.RawMessage, bool) {
	if rc == nil {
		return nil, false
	}
	return rc.cache.Get(rc.cacheKey(endpoint, params))
}

// Set stores a response under the policy-derived TTL for the endpoint.
func (rc *ResponseCache) Set(endpoint string, params map[string]string, value json.RawMessage) error {
	if rc == nil {
		return fmt.Errorf("response cache is not initialized")
	}
	return rc.cache.Set(rc.cacheKey(endpoint, params), value, rc.TTLFor(endpoint))
}

// Invalidate removes the entry for endpoint+params.
func (rc *ResponseCache) Invalidate(endpoint string, params map[string]string) {
	if rc == nil {
		return
	}
	rc.cache.Delete(rc.cacheKey(endpoint, params))
}

// Clear drops every entry.
func (rc *ResponseCache) Clear() {
	if rc == nil {
		return
	}
	rc.cache.Clear()
}

// Stats exposes the underlying cache counters.
func (rc *ResponseCache) Stats() Stats {
	if rc == nil {
		return Stats{}
	}
	return rc.cache.Stats()
}

// Rules returns the active policy table and default TTL for observability
// surfaces.
func (rc *ResponseCache) Rules() ([]Rule, time.Duration) {
	if rc == nil {
		return nil, 0
	}
	rules := make([]Rule, len(rc.rules))
	copy(rules, rc.rules)
	return rules, rc.defaultTTL
}

// TTLFor resolves the expiry policy for an endpoint: first matching rule
// wins, otherwise the default.
func (rc *ResponseCache) TTLFor(endpoint string) time.Duration {
	for _, rule := range rc.rules {
		if strings.Contains(endpoint, rule.Pattern) {
			return rule.TTL
		}
	}
	return rc.defaultTTL
}

// cacheKey digests the endpoint and a canonical, order-independent rendering
// of params. encoding/json sorts map keys, which gives the stable
// serialization. Live endpoints additionally mix in the current time bucket.
func (rc *ResponseCache) cacheKey(endpoint string, params map[string]string) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		// map[string]string cannot fail to marshal; guard anyway.
		canonical = []byte("{}")
	}

	material := endpoint + ":" + string(canonical)
	if rc.isLive(endpoint) {
		// Truncate keeps sub-second widths well defined.
		bucket := rc.now().Truncate(rc.bucketWidth).UnixNano()
		material = fmt.Sprintf("%s:%d", material, bucket)
	}

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

func (rc *ResponseCache) isLive(endpoint string) bool {
	for _, pattern := range rc.livePatterns {
		if strings.Contains(endpoint, pattern) {
			return true
		}
	}
	return false
}

func (rc *ResponseCache) now() time.Time {
	if rc != nil && rc.clock != nil {
		return rc.clock()
	}
	return time.Now().UTC()
}
