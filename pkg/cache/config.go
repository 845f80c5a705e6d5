package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig holds configuration for the analytics response cache.
type CacheConfig struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and all requests pass through uncached.
	Enabled bool

	// AnalyticsTTL bounds how long a stats or trend response is served
	// from cache when no write invalidates it first.
	AnalyticsTTL time.Duration

	// MaxSize is the maximum number of cached responses.
	MaxSize int
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:      true,
		AnalyticsTTL: 30 * time.Second,
		MaxSize:      1000,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - FORMS_CACHE_ENABLED: "true" or "false" (default: "true")
//   - FORMS_CACHE_ANALYTICS_TTL: duration in seconds (default: 30)
//   - FORMS_CACHE_MAX_SIZE: max cached responses (default: 1000)
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("FORMS_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("FORMS_CACHE_ANALYTICS_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.AnalyticsTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("FORMS_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
