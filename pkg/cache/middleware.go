package cache

import (
	"bytes"
	"net/http"

	"github.com/fieldworks/backoffice/pkg/tenancy"
)

// cacheResponseWriter wraps http.ResponseWriter to capture the response body
// and status code so they can be stored in the cache.
type cacheResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *cacheResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// cacheKey scopes a request URI to the request's tenant.
func cacheKey(tenantID, requestURI string) string {
	return tenantID + "|" + requestURI
}

// CacheMiddleware returns HTTP middleware that caches GET responses in the
// provided LRUCache, keyed by tenant and request URI (path + query).
//
//   - Only GET requests are cached; all other methods pass through.
//   - On a hit the cached body is written with its original Content-Type,
//     status 200 and X-Cache: HIT.
//   - On a miss the handler runs and a 200 response is stored; X-Cache: MISS.
//   - Non-200 responses are never cached.
func CacheMiddleware(c *LRUCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c == nil || r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			tenant := tenancy.TenantIDFromContext(r.Context())
			if tenant == "" {
				tenant = tenancy.DefaultTenant
			}
			key := cacheKey(tenant, r.URL.RequestURI())

			if cached, contentType, ok := c.Get(key); ok {
				w.Header().Set("Content-Type", contentType)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached)
				return
			}

			crw := &cacheResponseWriter{ResponseWriter: w}
			crw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(crw, r)

			if crw.statusCode == http.StatusOK {
				c.Set(key, crw.body.Bytes(), crw.Header().Get("Content-Type"))
			}
		})
	}
}
