package cache

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fieldworks/backoffice/pkg/forms"
)

// DefaultFormsBasePath is where the forms API is mounted.
const DefaultFormsBasePath = "/api/forms/v1"

// CacheManager owns the analytics cache and invalidates a form's cached
// stats and trend whenever a write touches that form.
type CacheManager struct {
	analytics *LRUCache
	basePath  string
	logger    *slog.Logger
}

// NewCacheManager creates a CacheManager from the given configuration.
// If cfg is nil or disabled, it returns nil; a nil manager is safe to use
// and caches nothing.
func NewCacheManager(cfg *CacheConfig, logger *slog.Logger) *CacheManager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheManager{
		analytics: NewLRUCache(cfg.MaxSize, cfg.AnalyticsTTL),
		basePath:  DefaultFormsBasePath,
		logger:    logger,
	}
}

// InvalidateForm drops every cached analytics response of one form.
func (cm *CacheManager) InvalidateForm(tenantID, formID string) {
	if cm == nil || formID == "" {
		return
	}
	n := cm.analytics.InvalidatePrefix(cacheKey(tenantID, cm.basePath+"/forms/"+formID+"/"))
	if n > 0 {
		cm.logger.Debug("analytics cache invalidated", "tenant", tenantID, "formID", formID, "entries", n)
	}
}

// InvalidateAll clears the cache entirely.
func (cm *CacheManager) InvalidateAll() {
	if cm == nil {
		return
	}
	cm.analytics.InvalidateAll()
}

// RecordFormEvent implements forms.EventSink.
func (cm *CacheManager) RecordFormEvent(_ context.Context, ev forms.Event) {
	cm.InvalidateForm(ev.TenantID, ev.FormID)
}

// AnalyticsMiddleware returns HTTP middleware that caches stats and trend
// responses. A nil manager returns a pass-through middleware.
func (cm *CacheManager) AnalyticsMiddleware() func(http.Handler) http.Handler {
	if cm == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return CacheMiddleware(cm.analytics)
}
