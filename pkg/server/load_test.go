package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/backoffice/pkg/cache"
)

// Load tests run in-process by default. Set FORMS_LOAD_SLO=1 to also
// enforce the latency targets, which only make sense on a quiet machine.
var enforceSLO = os.Getenv("FORMS_LOAD_SLO") != ""

// latencyStats collects request latencies and computes percentiles.
type latencyStats struct {
	mu        sync.Mutex
	latencies []time.Duration
	errors    int
}

func (s *latencyStats) record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
}

func (s *latencyStats) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func (s *latencyStats) percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return sorted[int(float64(len(sorted)-1)*p)]
}

func (s *latencyStats) report() string {
	s.mu.Lock()
	total, errs := len(s.latencies), s.errors
	s.mu.Unlock()
	return fmt.Sprintf("total=%d errors=%d p50=%v p95=%v p99=%v",
		total, errs, s.percentile(0.50), s.percentile(0.95), s.percentile(0.99))
}

// request describes the i-th request of a load run.
type request func(i int) (method, path, body string)

// runLoad sends total requests from concurrency workers and records the
// latency of every reply with the wanted status.
func runLoad(t *testing.T, baseURL string, concurrency, total, wantStatus int, next request) *latencyStats {
	t.Helper()
	stats := &latencyStats{}
	var counter atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			for {
				i := int(counter.Add(1)) - 1
				if i >= total {
					return
				}
				method, path, body := next(i)
				req, err := http.NewRequest(method, baseURL+path, strings.NewReader(body))
				if err != nil {
					stats.recordError()
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Remote-User", fmt.Sprintf("inspector-%d", i%5))

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					stats.recordError()
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode == wantStatus {
					stats.record(elapsed)
				} else {
					stats.recordError()
				}
			}
		}()
	}
	wg.Wait()
	return stats
}

func checkSLO(t *testing.T, stats *latencyStats, p95 time.Duration) {
	t.Helper()
	if enforceSLO {
		assert.LessOrEqual(t, stats.percentile(0.95), p95, "p95 latency exceeds %v", p95)
	}
}

func TestLoadHealthEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	_, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	for _, path := range []string{"/livez", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			stats := runLoad(t, srv.URL, 10, 200, http.StatusOK, func(int) (string, string, string) {
				return http.MethodGet, path, ""
			})
			t.Logf("health %s load: %s", path, stats.report())
			assert.Zero(t, stats.errors)
			checkSLO(t, stats, 100*time.Millisecond)
		})
	}
}

func TestLoadConcurrentCaptureKeepsCountsConsistent(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	cacheCfg := cache.DefaultCacheConfig()
	cacheCfg.Enabled = true
	s, h := newTestServer(t, WithCacheConfig(cacheCfg))
	srv := httptest.NewServer(h)
	defer srv.Close()

	formID := createForm(t, h, "")
	responses := FormsBasePath + "/forms/" + formID + "/responses"

	const total = 120
	stats := runLoad(t, srv.URL, 12, total, http.StatusCreated, func(i int) (string, string, string) {
		return http.MethodPost, responses, fmt.Sprintf(`{"data": {"site": "Yard %d", "crew": %d}, "submitted": %t}`, i, i%7, i%3 != 0)
	})
	t.Logf("response capture load: %s", stats.report())
	require.Zero(t, stats.errors)
	checkSLO(t, stats, 300*time.Millisecond)

	// Every write invalidated the cached stats, so the served counts match
	// what was captured.
	w := call(t, h, http.MethodGet, FormsBasePath+"/forms/"+formID+"/stats", "", "inspector", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`"total":%d`, total))
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`"submitted":%d`, total-total/3))

	table, err := s.Service().ExportRows(t.Context(), "default", formID)
	require.NoError(t, err)
	assert.Len(t, table.Rows, total-total/3)
}

func TestLoadMixedReads(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	cacheCfg := cache.DefaultCacheConfig()
	cacheCfg.Enabled = true
	_, h := newTestServer(t, WithCacheConfig(cacheCfg))
	srv := httptest.NewServer(h)
	defer srv.Close()

	formID := createForm(t, h, "")
	endpoints := []string{
		"/livez",
		FormsBasePath + "/forms",
		FormsBasePath + "/forms/" + formID,
		FormsBasePath + "/forms/" + formID + "/stats",
		FormsBasePath + "/forms/" + formID + "/trend?days=7",
		FormsBasePath + "/field-types",
	}

	stats := runLoad(t, srv.URL, 20, 400, http.StatusOK, func(i int) (string, string, string) {
		return http.MethodGet, endpoints[i%len(endpoints)], ""
	})
	t.Logf("mixed read load: %s", stats.report())
	assert.Zero(t, stats.errors)
	checkSLO(t, stats, 300*time.Millisecond)
}
