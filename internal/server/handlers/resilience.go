package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/coinlens/coinlens/internal/errors"
	"github.com/coinlens/coinlens/internal/core/client"
	"github.com/coinlens/coinlens/internal/core/ratelimit"
	"github.com/coinlens/coinlens/internal/core/respcache"
	"github.com/coinlens/coinlens/internal/metrics"
)

// Resilience serves the rate limiter and response cache API surface. The
// shared limiter and cache are injected once at construction; handlers never
// reach for globals.
type Resilience struct {
	Limiter *ratelimit.Limiter
	Cache   *respcache.ResponseCache
	Clients map[string]*client.Client
}

// FetchRequest is the POST /api/v1/fetch body.
type FetchRequest struct {
	Service  string            `json:"service"`
	Endpoint string            `json:"endpoint"`
	Params   map[string]string `json:"params,omitempty"`
}

// FetchResponse wraps the provider payload with provenance.
type FetchResponse struct {
	Service   string          `json:"service"`
	Endpoint  string          `json:"endpoint"`
	FromCache bool            `json:"from_cache"`
	Data      json.RawMessage `json:"data"`
}

// RateLimitStatsResponse is the GET /api/v1/stats/ratelimit body.
type RateLimitStatsResponse struct {
	Services map[string]ratelimit.ServiceStats `json:"services"`
}

// CacheStatsResponse is the GET /api/v1/stats/cache body.
type CacheStatsResponse struct {
	Stats      respcache.Stats `json:"stats"`
	DefaultTTL string          `json:"default_ttl"`
	Rules      []CacheRule     `json:"rules"`
}

// CacheRule renders one expiry rule with a human-readable TTL.
type CacheRule struct {
	Pattern string `json:"pattern"`
	TTL     string `json:"ttl"`
}

// RateLimitStatsHandler returns a per-service limiter snapshot.
func (h *Resilience) RateLimitStatsHandler(w http.ResponseWriter, r *http.Request) {
	if h.Limiter == nil {
		respondWithError(w, r, apperrors.NewInternalError("rate limiter is not configured"))
		return
	}

	stats := h.Limiter.Stats()
	for service, s := range stats {
		metrics.SetAvailableTokens(service, s.Tokens)
	}

	writeJSON(w, http.StatusOK, RateLimitStatsResponse{Services: stats})
}

// CacheStatsHandler returns the cache counters and active expiry policy.
func (h *Resilience) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		respondWithError(w, r, apperrors.NewInternalError("response cache is not configured"))
		return
	}

	stats := h.Cache.Stats()
	metrics.SetCacheStats(stats.Size, stats.HitRate)

	rules, defaultTTL := h.Cache.Rules()
	rendered := make([]CacheRule, 0, len(rules))
	for _, rule := range rules {
		rendered = append(rendered, CacheRule{Pattern: rule.Pattern, TTL: rule.TTL.String()})
	}

	writeJSON(w, http.StatusOK, CacheStatsResponse{
		Stats:      stats,
		DefaultTTL: defaultTTL.String(),
		Rules:      rendered,
	})
}

// FetchHandler proxies a single provider fetch through the resilience layer.
func (h *Resilience) FetchHandler(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid fetch request body"))
		return
	}
	if req.Service == "" || req.Endpoint == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("service and endpoint are required"))
		return
	}

	c, ok := h.Clients[req.Service]
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError("unknown service: "+req.Service))
		return
	}

	start := time.Now()
	result, err := c.Fetch(r.Context(), req.Endpoint, req.Params)
	if err != nil {
		metrics.RecordFetch(req.Service, string(client.KindOf(err)), time.Since(start))
		respondWithError(w, r, envelopeFromFetchError(err))
		return
	}
	metrics.RecordFetch(req.Service, "ok", time.Since(start))
	metrics.RecordCacheLookup(result.FromCache)
	if !result.FromCache {
		metrics.RecordAdmission(req.Service, true)
	}

	writeJSON(w, http.StatusOK, FetchResponse{
		Service:   req.Service,
		Endpoint:  req.Endpoint,
		FromCache: result.FromCache,
		Data:      result.Body,
	})
}

// ResetBackoffHandler clears the backoff deadline for one service.
func (h *Resilience) ResetBackoffHandler(w http.ResponseWriter, r *http.Request) {
	if h.Limiter == nil {
		respondWithError(w, r, apperrors.NewInternalError("rate limiter is not configured"))
		return
	}

	service := chi.URLParam(r, "service")
	if err := h.Limiter.ResetBackoff(service); err != nil {
		if errors.Is(err, ratelimit.ErrUnknownService) {
			respondWithError(w, r, apperrors.NewNotFoundError("unknown service: "+service))
			return
		}
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to reset backoff"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"service": service,
		"status":  "backoff cleared",
	})
}

// ClearCacheHandler drops every cached response.
func (h *Resilience) ClearCacheHandler(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		respondWithError(w, r, apperrors.NewInternalError("response cache is not configured"))
		return
	}

	h.Cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

// envelopeFromFetchError maps the typed client failure onto the API error
// vocabulary.
func envelopeFromFetchError(err error) error {
	var ce *client.Error
	if !errors.As(err, &ce) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return apperrors.NewTimeoutError("provider fetch timed out")
		}
		return apperrors.NewInternalError("provider fetch failed")
	}

	switch ce.Kind {
	case client.KindAdmission, client.KindThrottled:
		if ce.Kind == client.KindThrottled {
			metrics.RecordThrottle(ce.Service)
		} else {
			metrics.RecordAdmission(ce.Service, false)
		}
		return apperrors.NewRateLimitedError(ce.Message)
	case client.KindAuth, client.KindProvider:
		return apperrors.NewProviderError(ce.Message)
	case client.KindNotFound:
		return apperrors.NewNotFoundError(ce.Message)
	case client.KindBadRequest:
		return apperrors.NewInvalidInputError(ce.Message)
	case client.KindTransient:
		return apperrors.NewProviderError(ce.Message)
	default:
		return apperrors.NewInternalError(ce.Message)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
