package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldworks/backoffice/pkg/forms"
)

func TestCacheManager(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"NewCacheManagerDisabled", testNewCacheManagerDisabled},
		{"NewCacheManagerNilConfig", testNewCacheManagerNilConfig},
		{"FormEventInvalidatesThatForm", testFormEventInvalidatesThatForm},
		{"InvalidateAll", testInvalidateAll},
		{"NilCacheManagerSafe", testNilCacheManagerSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testNewCacheManagerDisabled(t *testing.T) {
	if cm := NewCacheManager(&CacheConfig{Enabled: false}, nil); cm != nil {
		t.Fatal("expected nil CacheManager when disabled")
	}
}

func testNewCacheManagerNilConfig(t *testing.T) {
	if cm := NewCacheManager(nil, nil); cm != nil {
		t.Fatal("expected nil CacheManager for nil config")
	}
}

func testFormEventInvalidatesThatForm(t *testing.T) {
	cm := NewCacheManager(&CacheConfig{Enabled: true, AnalyticsTTL: time.Minute, MaxSize: 10}, nil)
	calls := 0
	h := cm.AnalyticsMiddleware()(countingHandler(&calls, http.StatusOK))

	serve(h, http.MethodGet, "/api/forms/v1/forms/f1/stats", "acme")
	serve(h, http.MethodGet, "/api/forms/v1/forms/f2/stats", "acme")
	serve(h, http.MethodGet, "/api/forms/v1/forms/f1/stats", "globex")
	if cm.analytics.Size() != 3 {
		t.Fatalf("expected 3 cached entries, got %d", cm.analytics.Size())
	}

	cm.RecordFormEvent(context.Background(), forms.Event{Type: forms.EventResponseSubmitted, TenantID: "acme", FormID: "f1", ResponseID: "r1"})
	if cm.analytics.Size() != 2 {
		t.Fatalf("expected only acme/f1 to be dropped, got size %d", cm.analytics.Size())
	}

	rec := serve(h, http.MethodGet, "/api/forms/v1/forms/f1/stats", "acme")
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected MISS after invalidation, got %q", rec.Header().Get("X-Cache"))
	}
	rec = serve(h, http.MethodGet, "/api/forms/v1/forms/f2/stats", "acme")
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("expected HIT for an untouched form, got %q", rec.Header().Get("X-Cache"))
	}
}

func testInvalidateAll(t *testing.T) {
	cm := NewCacheManager(DefaultCacheConfig(), nil)
	cm.analytics.Set("acme|/api/forms/v1/forms/f1/stats", []byte("{}"), "application/json")
	cm.InvalidateAll()
	if cm.analytics.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", cm.analytics.Size())
	}
}

func testNilCacheManagerSafe(t *testing.T) {
	var cm *CacheManager
	cm.InvalidateForm("acme", "f1")
	cm.InvalidateAll()
	cm.RecordFormEvent(context.Background(), forms.Event{FormID: "f1"})

	calls := 0
	h := cm.AnalyticsMiddleware()(countingHandler(&calls, http.StatusOK))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/forms/v1/forms/f1/stats", nil))
	if calls != 1 || rec.Header().Get("X-Cache") != "" {
		t.Fatalf("expected pass-through, calls=%d X-Cache=%q", calls, rec.Header().Get("X-Cache"))
	}
}

func TestCacheConfigFromEnv(t *testing.T) {
	t.Setenv("FORMS_CACHE_ENABLED", "false")
	t.Setenv("FORMS_CACHE_ANALYTICS_TTL", "120")
	t.Setenv("FORMS_CACHE_MAX_SIZE", "-1")

	cfg := CacheConfigFromEnv()
	if cfg.Enabled {
		t.Error("expected Enabled false")
	}
	if cfg.AnalyticsTTL != 2*time.Minute {
		t.Errorf("AnalyticsTTL = %v, want 2m", cfg.AnalyticsTTL)
	}
	if cfg.MaxSize != 1000 {
		t.Errorf("MaxSize = %d, want default 1000", cfg.MaxSize)
	}
}
