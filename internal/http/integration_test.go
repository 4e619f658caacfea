//go:build integration
// +build integration

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/onlinefem/onlinefem/internal/cache"
	"github.com/onlinefem/onlinefem/internal/client"
	"github.com/onlinefem/onlinefem/internal/models"
	"github.com/onlinefem/onlinefem/internal/observability"
	"github.com/onlinefem/onlinefem/internal/service"
	"github.com/onlinefem/onlinefem/internal/store"
	"github.com/onlinefem/onlinefem/internal/testhelpers"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger("femapi-test")
	if err != nil {
		panic(err)
	}
}

// setupIntegrationHandler creates a fully configured handler against the live
// solver. Returns handler, cache instance (for test setup), and cleanup.
func setupIntegrationHandler(t *testing.T) (*Handler, cache.Cache, func()) {
	t.Helper()

	numbersService, cacheSvc, cacheCleanup := testhelpers.SetupIntegrationService(t)
	solverClient := testhelpers.SetupIntegrationClient(t)

	recordStore, err := store.Open(filepath.Join(t.TempDir(), "fem.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	if err := recordStore.SeedDemo(context.Background()); err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}

	handler := NewHandler(numbersService, solverClient, recordStore, nil, testLogger, nil)

	cleanup := func() {
		recordStore.Close()
		cacheCleanup()
	}
	return handler, cacheSvc, cleanup
}

// setupRateLimitedHandler creates a handler plus the limiter to wire into
// RateLimitMiddleware.
func setupRateLimitedHandler(t *testing.T, rps int, burst int) (*Handler, *rate.Limiter, func()) {
	t.Helper()

	numbersService, _, cacheCleanup := testhelpers.SetupIntegrationService(t)
	solverClient := testhelpers.SetupIntegrationClient(t)

	recordStore, err := store.Open(filepath.Join(t.TempDir(), "fem.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	handler := NewHandler(numbersService, solverClient, recordStore, nil, testLogger, limiter)

	cleanup := func() {
		recordStore.Close()
		cacheCleanup()
	}
	return handler, limiter, cleanup
}

// makeIntegrationRequest routes a request through the full middleware stack.
func makeIntegrationRequest(t *testing.T, handler *Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(testLogger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/fem", handler.GetFem).Methods("GET")
	router.HandleFunc("/api/fem", handler.ListRecords).Methods("GET")
	router.HandleFunc("/api/fem/{id}", handler.GetRecord).Methods("GET")
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(context.WithValue(req.Context(), "logger", testLogger))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// makeRateLimitedRequest routes /fem through RateLimitMiddleware.
func makeRateLimitedRequest(t *testing.T, handler *Handler, limiter *rate.Limiter, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(testLogger))
	router.Use(MetricsMiddleware)
	router.Use(RateLimitMiddleware(limiter))
	router.HandleFunc("/fem", handler.GetFem).Methods("GET")

	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(context.WithValue(req.Context(), "logger", testLogger))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestIntegration_GetFem_CacheHit verifies the end-to-end request flow when
// the number set is already cached, avoiding a solver round trip.
func TestIntegration_GetFem_CacheHit(t *testing.T) {
	handler, cacheSvc, cleanup := setupIntegrationHandler(t)
	defer cleanup()

	set := models.NumberSet{
		Numbers:   []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		Method:    "POST",
		FetchedAt: time.Now(),
	}
	if err := cacheSvc.Set(context.Background(), "numbers", set, 5*time.Minute); err != nil {
		t.Fatalf("cache Set() error = %v", err)
	}

	w := makeIntegrationRequest(t, handler, "GET", "/fem")

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out, ok := response["out"].(float64); !ok || out != 3 {
		t.Errorf("out = %v, want 3", response["out"])
	}
}

// TestIntegration_GetFem_CacheMiss verifies a cache miss reaches the solver
// and populates the cache for the follow-up request.
func TestIntegration_GetFem_CacheMiss(t *testing.T) {
	handler, _, cleanup := setupIntegrationHandler(t)
	defer cleanup()

	w := makeIntegrationRequest(t, handler, "GET", "/fem")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out, ok := response["out"].(float64); !ok || out != 3 {
		t.Errorf("out = %v, want 3 (solver returns digits 0..9)", response["out"])
	}

	// The second request should be served from cache.
	time.Sleep(100 * time.Millisecond)
	w2 := makeIntegrationRequest(t, handler, "GET", "/fem")
	if w2.Code != http.StatusOK {
		t.Errorf("second request status = %d. Body: %s", w2.Code, w2.Body.String())
	}
}

// TestIntegration_GetFem_SolverDown verifies error propagation from an
// unreachable solver through the service to the HTTP handler.
func TestIntegration_GetFem_SolverDown(t *testing.T) {
	testhelpers.RequireSolver(t)

	// Nothing listens on port 1, so every call fails fast.
	deadClient, err := client.NewHTTPSolverClient("http://127.0.0.1:1", 2*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSolverClient() error = %v", err)
	}

	numbersService := service.NewNumbersService(deadClient, cache.NewInMemoryCache(), 5*time.Minute, 0, false, 0)
	recordStore, err := store.Open(filepath.Join(t.TempDir(), "fem.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer recordStore.Close()

	handler := NewHandler(numbersService, deadClient, recordStore, nil, testLogger, nil)

	w := makeIntegrationRequest(t, handler, "GET", "/fem")

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusServiceUnavailable, w.Body.String())
	}

	var errorResponse map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&errorResponse); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	errorObj, ok := errorResponse["error"].(map[string]interface{})
	if !ok {
		t.Fatal("error response missing error object")
	}
	if errorObj["code"] != "SOLVER_UNAVAILABLE" {
		t.Errorf("error code = %v, want SOLVER_UNAVAILABLE", errorObj["code"])
	}
}

// TestIntegration_Records_FullStack exercises the record routes against a
// real SQLite file.
func TestIntegration_Records_FullStack(t *testing.T) {
	handler, _, cleanup := setupIntegrationHandler(t)
	defer cleanup()

	w := makeIntegrationRequest(t, handler, "GET", "/api/fem")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d. Body: %s", w.Code, w.Body.String())
	}
	var records []models.FEMRecord
	if err := json.NewDecoder(w.Body).Decode(&records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected seeded records")
	}

	w2 := makeIntegrationRequest(t, handler, "GET", "/api/fem/1")
	if w2.Code != http.StatusOK {
		t.Errorf("get record status = %d. Body: %s", w2.Code, w2.Body.String())
	}
}

// TestIntegration_GetHealth_FullStack verifies the health endpoint with real
// dependencies (solver ping, cache ping).
func TestIntegration_GetHealth_FullStack(t *testing.T) {
	handler, _, cleanup := setupIntegrationHandler(t)
	defer cleanup()

	w := makeIntegrationRequest(t, handler, "GET", "/health")

	if w.Code != http.StatusOK && w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Status = %d, want 200 or 503. Body: %s", w.Code, w.Body.String())
	}

	var healthResponse map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&healthResponse); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	status, ok := healthResponse["status"].(string)
	if !ok {
		t.Fatal("health response missing status")
	}
	validStatuses := []string{"healthy", "degraded", "idle", "overloaded", "shutting-down"}
	found := false
	for _, vs := range validStatuses {
		if status == vs {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("status = %q, want one of %v", status, validStatuses)
	}
}

// TestIntegration_GetMetrics_Format verifies the metrics endpoint returns
// Prometheus text output with the service's counters.
func TestIntegration_GetMetrics_Format(t *testing.T) {
	handler, _, cleanup := setupIntegrationHandler(t)
	defer cleanup()

	makeIntegrationRequest(t, handler, "GET", "/fem")

	w := makeIntegrationRequest(t, handler, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "solverCallsTotal", "cacheHitsTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

// TestIntegration_RateLimiting_Enforcement verifies denials past the burst.
func TestIntegration_RateLimiting_Enforcement(t *testing.T) {
	rps := 10
	burst := 20
	handler, limiter, cleanup := setupRateLimitedHandler(t, rps, burst)
	defer cleanup()

	successCount := 0
	deniedCount := 0

	for i := 0; i < burst+10; i++ {
		w := makeRateLimitedRequest(t, handler, limiter, "GET", "/fem")

		switch w.Code {
		case http.StatusOK:
			successCount++
		case http.StatusTooManyRequests:
			deniedCount++
			var errorResponse map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&errorResponse); err == nil {
				errorObj := errorResponse["error"].(map[string]interface{})
				if errorObj["code"] != "RATE_LIMITED" {
					t.Errorf("error code = %v, want RATE_LIMITED", errorObj["code"])
				}
			}
		}
	}

	if deniedCount == 0 {
		t.Error("no requests were rate limited, but some should be")
	}
	if successCount > burst+5 {
		t.Errorf("success count = %d, should not significantly exceed burst %d", successCount, burst)
	}
}

// TestIntegration_RateLimiting_Concurrent verifies limiting under load.
func TestIntegration_RateLimiting_Concurrent(t *testing.T) {
	rps := 50
	burst := 100
	handler, limiter, cleanup := setupRateLimitedHandler(t, rps, burst)
	defer cleanup()

	const numGoroutines = 10
	const requestsPerGoroutine = 20

	var wg sync.WaitGroup
	results := make(chan int, numGoroutines*requestsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < requestsPerGoroutine; j++ {
				w := makeRateLimitedRequest(t, handler, limiter, "GET", "/fem")
				results <- w.Code
			}
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	deniedCount := 0
	for code := range results {
		switch code {
		case http.StatusOK:
			successCount++
		case http.StatusTooManyRequests:
			deniedCount++
		}
	}

	if deniedCount == 0 {
		t.Error("no requests were rate limited under concurrent load")
	}
	if total := successCount + deniedCount; total != numGoroutines*requestsPerGoroutine {
		t.Errorf("total = %d, want %d", total, numGoroutines*requestsPerGoroutine)
	}
}

// TestIntegration_RateLimiting_Window verifies refill after the burst drains.
func TestIntegration_RateLimiting_Window(t *testing.T) {
	rps := 2
	burst := 5
	handler, limiter, cleanup := setupRateLimitedHandler(t, rps, burst)
	defer cleanup()

	for i := 0; i < burst; i++ {
		w := makeRateLimitedRequest(t, handler, limiter, "GET", "/fem")
		if w.Code != http.StatusOK {
			t.Errorf("request %d denied unexpectedly: %d", i, w.Code)
		}
	}

	w := makeRateLimitedRequest(t, handler, limiter, "GET", "/fem")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("request after burst should be denied, got %d", w.Code)
	}

	time.Sleep(time.Second + 100*time.Millisecond)

	w2 := makeRateLimitedRequest(t, handler, limiter, "GET", "/fem")
	if w2.Code != http.StatusOK {
		t.Errorf("request after refill should be allowed, got %d", w2.Code)
	}
}
