package metrics

import (
	"time"

	"github.com/coinlens/coinlens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Provider fetch metrics
	FetchTotal    = "app_provider_fetch_total"
	FetchDuration = "app_provider_fetch_duration_ms"

	// Rate limiter metrics
	AdmissionTotal = "app_ratelimit_admission_total"
	ThrottleTotal  = "app_ratelimit_throttle_total"
	TokensGauge    = "app_ratelimit_tokens"

	// Response cache metrics
	CacheLookupTotal = "app_cache_lookup_total"
	CacheSizeGauge   = "app_cache_size"
	CacheHitRate     = "app_cache_hit_rate"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordFetch records one provider fetch with its outcome classification.
func RecordFetch(service string, outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{
		"service": service,
		"outcome": outcome,
	}
	_ = observability.TelemetrySystem.Counter(FetchTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(FetchDuration, duration,
		map[string]string{"service": service})
}

// RecordAdmission records a rate limiter admission decision.
func RecordAdmission(service string, admitted bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	result := "admitted"
	if !admitted {
		result = "refused"
	}
	_ = observability.TelemetrySystem.Counter(AdmissionTotal, 1, map[string]string{
		"service": service,
		"result":  result,
	})
}

// RecordThrottle records a provider throttle signal.
func RecordThrottle(service string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ThrottleTotal, 1,
		map[string]string{"service": service})
}

// SetAvailableTokens publishes the current token count for a service bucket.
func SetAvailableTokens(service string, tokens float64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(TokensGauge, tokens,
		map[string]string{"service": service})
}

// RecordCacheLookup records one response cache lookup.
func RecordCacheLookup(hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	result := "hit"
	if !hit {
		result = "miss"
	}
	_ = observability.TelemetrySystem.Counter(CacheLookupTotal, 1,
		map[string]string{"result": result})
}

// SetCacheStats publishes the current cache size and lifetime hit rate.
func SetCacheStats(size int, hitRate float64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(CacheSizeGauge, float64(size), nil)
	_ = observability.TelemetrySystem.Gauge(CacheHitRate, hitRate, nil)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration,
		map[string]string{"check": checkName})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerUptime, float64(seconds), nil)
}
