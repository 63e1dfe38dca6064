package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/coinlens/coinlens/internal/core/ratelimit"
	"github.com/coinlens/coinlens/internal/core/respcache"
)

const (
	// DefaultMaxResponseBytes bounds provider response bodies.
	DefaultMaxResponseBytes = 10 << 20

	// DefaultAcquireTimeout is how long a fetch waits for a token before
	// reporting admission failure.
	DefaultAcquireTimeout = 30 * time.Second

	defaultUserAgent = "coinlens/1.0"
)

// Client calls one upstream market-data provider through the shared rate
// limiter and response cache. Dependencies are injected; the client owns
// nothing shared.
type Client struct {
	Service          string
	BaseURL          string
	APIKeyHeader     string
	APIKey           string
	UserAgent        string
	HTTP             *http.Client
	Limiter          *ratelimit.Limiter
	Cache            *respcache.ResponseCache
	Logger           *logging.Logger
	AcquireTimeout   time.Duration
	MaxResponseBytes int64
}

// Result carries a provider response plus its provenance.
type Result struct {
	Body       json.RawMessage `json:"body"`
	FromCache  bool            `json:"from_cache"`
	StatusCode int             `json:"status_code,omitempty"`
}

// Fetch performs a cached, rate-limited GET of endpoint with query params.
// Responses are returned opaquely; interpretation belongs to the caller.
func (c *Client) Fetch(ctx context.Context, endpoint string, params map[string]string) (*Result, error) {
	if c == nil {
		return nil, errors.New("client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint, err := sanitizeEndpoint(endpoint)
	if err != nil {
		return nil, &Error{Service: c.Service, Kind: KindBadRequest, Message: "invalid endpoint", Err: err}
	}

	if c.Cache != nil {
		if body, ok := c.Cache.Get(endpoint, params); ok {
			c.debug("Cache hit", zap.String("endpoint", endpoint))
			return &Result{Body: body, FromCache: true}, nil
		}
	}

	if c.Limiter != nil {
		ok, err := c.Limiter.Acquire(ctx, c.Service, c.acquireTimeout())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, &Error{Service: c.Service, Kind: KindBadRequest, Message: "rate limiter rejected request", Err: err}
		}
		if !ok {
			return nil, &Error{Service: c.Service, Kind: KindAdmission, Message: "no rate limit token available"}
		}
	}

	body, statusCode, err := c.do(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if err := c.Cache.Set(endpoint, params, body); err != nil {
			c.debug("Failed to cache response", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}
	if c.Limiter != nil {
		_ = c.Limiter.ResetBackoff(c.Service)
	}

	return &Result{Body: body, StatusCode: statusCode}, nil
}

func (c *Client) do(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, int, error) {
	reqURL, err := c.requestURL(endpoint, params)
	if err != nil {
		return nil, 0, &Error{Service: c.Service, Kind: KindBadRequest, Message: "invalid request url", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, &Error{Service: c.Service, Kind: KindBadRequest, Message: "building request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent())
	if c.APIKey != "" && c.APIKeyHeader != "" {
		req.Header.Set(c.APIKeyHeader, c.APIKey)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &Error{Service: c.Service, Kind: KindTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := c.readBody(resp)
		if err != nil {
			return nil, resp.StatusCode, err
		}
		return body, resp.StatusCode, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfterHeader(resp)
		if c.Limiter != nil {
			_ = c.Limiter.ReportThrottled(c.Service, wait)
		}
		c.debug("Provider throttled request",
			zap.String("endpoint", endpoint),
			zap.Duration("retry_after", wait))
		return nil, resp.StatusCode, &Error{
			Service:    c.Service,
			Kind:       KindThrottled,
			StatusCode: resp.StatusCode,
			Message:    "provider rate limited",
			RetryAfter: wait,
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, &Error{
			Service:    c.Service,
			Kind:       KindAuth,
			StatusCode: resp.StatusCode,
			Message:    "provider rejected credentials",
		}

	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, &Error{
			Service:    c.Service,
			Kind:       KindNotFound,
			StatusCode: resp.StatusCode,
			Message:    "resource not found",
		}

	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, &Error{
			Service:    c.Service,
			Kind:       KindTransient,
			StatusCode: resp.StatusCode,
			Message:    "provider server error",
		}

	default:
		return nil, resp.StatusCode, &Error{
			Service:    c.Service,
			Kind:       KindProvider,
			StatusCode: resp.StatusCode,
			Message:    "unexpected provider response",
		}
	}
}

func (c *Client) readBody(resp *http.Response) (json.RawMessage, error) {
	limit := c.MaxResponseBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &Error{Service: c.Service, Kind: KindTransient, Message: "reading response body", Err: err}
	}
	if int64(len(body)) > limit {
		return nil, &Error{
			Service: c.Service,
			Kind:    KindProvider,
			Message: fmt.Sprintf("response exceeds %d byte limit", limit),
		}
	}
	return body, nil
}

func (c *Client) requestURL(endpoint string, params map[string]string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(c.BaseURL, "/"))
	if err != nil {
		return "", err
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base url %q is not absolute", c.BaseURL)
	}

	full := *base
	full.Path = strings.TrimSuffix(base.Path, "/") + "/" + endpoint

	if len(params) > 0 {
		query := full.Query()
		for key, value := range params {
			query.Set(key, value)
		}
		full.RawQuery = query.Encode()
	}

	return full.String(), nil
}

// sanitizeEndpoint rejects traversal sequences and normalizes away a leading
// slash so endpoints resolve under the provider base URL.
func sanitizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", errors.New("endpoint is required")
	}
	if strings.Contains(endpoint, "..") || strings.Contains(endpoint, "\\") {
		return "", fmt.Errorf("endpoint %q contains path traversal", endpoint)
	}
	return strings.TrimPrefix(endpoint, "/"), nil
}

func (c *Client) httpClient() *http.Client {
	if c != nil && c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) acquireTimeout() time.Duration {
	if c != nil && c.AcquireTimeout > 0 {
		return c.AcquireTimeout
	}
	return DefaultAcquireTimeout
}

func (c *Client) userAgent() string {
	if c != nil && c.UserAgent != "" {
		return c.UserAgent
	}
	return defaultUserAgent
}

func (c *Client) debug(msg string, fields ...zap.Field) {
	if c != nil && c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}
