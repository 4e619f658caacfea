package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onlinefem/onlinefem/internal/overload"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Request and response body sizes. Watch for: oversized payloads, unexpected growth.
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Solver call rate. Watch for: error vs success ratio.
	SolverCallsTotal *prometheus.CounterVec

	// Solver latency per call. Watch for: p95 > 2s (solver degradation), p99 > 5s (timeout risk).
	SolverCallDuration *prometheus.HistogramVec

	// Retry attempts against the solver. Watch for: high retries = unstable solver.
	SolverRetriesTotal prometheus.Counter

	// Cache hits. Cache misses = solverCallsTotal - solverRetriesTotal. Hit rate = hits/(hits+misses).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend errors by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency by operation and outcome.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses on the same key. Watch for: stampedes under load.
	CacheStampedeDetectedTotal *prometheus.CounterVec
	CacheStampedeConcurrency   *prometheus.HistogramVec

	// Requests answered by piggybacking on an in-flight solver call.
	RequestCoalescingHitsTotal   *prometheus.CounterVec
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Expired entries served while the solver is down.
	StaleCacheServesTotal *prometheus.CounterVec
	StaleCacheAgeSeconds  prometheus.Histogram

	// Cache warming runs at boot and on the refresh interval.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Total numbers lookups. Watch for: traffic volume, rate() for QPS.
	NumbersQueriesTotal prometheus.Counter

	// Per-name query count (allow-list; others go to "other"). Watch for: traffic distribution.
	NumbersQueriesByNameTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState            *prometheus.GaugeVec
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Record store queries by operation and outcome.
	StoreQueriesTotal        *prometheus.CounterVec
	StoreQueryDurationSecond *prometheus.HistogramVec

	// Structured mesh builds in the solver service.
	MeshBuildsTotal          *prometheus.CounterVec
	MeshBuildDurationSeconds prometheus.Histogram

	// Requests still in flight when shutdown drain started.
	ShutdownInFlightRequests prometheus.Gauge

	// trackedNames is built from config; used to resolve the name label for metrics.
	trackedNamesMu sync.RWMutex
	trackedNames   map[string]struct{}

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	HTTPRequestSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestSizeBytes",
			Help:    "Request body size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"route"},
	)
	HTTPResponseSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpResponseSizeBytes",
			Help:    "Response body size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"route"},
	)
	SolverCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solverCallsTotal",
			Help: "Total number of solver service calls",
		},
		[]string{"status"},
	)
	SolverCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solverCallDurationSeconds",
			Help:    "Solver service latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	SolverRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solverRetriesTotal",
			Help: "Total number of retry attempts for solver calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits. Cache misses = solverCallsTotal - solverRetriesTotal.",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "outcome"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that overlapped another miss on the same key",
		},
		[]string{"name"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent misses observed per stampede",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
		[]string{"name"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests that waited on another request's solver call",
		},
		[]string{"name"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting for a coalesced solver call",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	StaleCacheServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleCacheServesTotal",
			Help: "Expired cache entries served because the solver was unavailable",
		},
		[]string{"name"},
	)
	StaleCacheAgeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staleCacheAgeSeconds",
			Help:    "Age of stale cache entries at serve time",
			Buckets: []float64{60, 300, 600, 1800, 3600, 7200},
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs that failed for at least one name",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	NumbersQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "numbersQueriesTotal",
			Help: "Total number of numbers lookups",
		},
	)
	NumbersQueriesByNameTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numbersQueriesByNameTotal",
			Help: "Numbers queries by name (allow-list; others use name=other)",
		},
		[]string{"name"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	StoreQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeQueriesTotal",
			Help: "Record store queries by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	StoreQueryDurationSecond = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeQueryDurationSeconds",
			Help:    "Record store query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"operation"},
	)
	MeshBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshBuildsTotal",
			Help: "Structured mesh builds by outcome",
		},
		[]string{"outcome"},
	)
	MeshBuildDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshBuildDurationSeconds",
			Help:    "Structured mesh build duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5},
		},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "Requests still in flight when shutdown drain started",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		HTTPRequestSizeBytes, HTTPResponseSizeBytes,
		SolverCallsTotal, SolverCallDuration, SolverRetriesTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		StaleCacheServesTotal, StaleCacheAgeSeconds,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		NumbersQueriesTotal, NumbersQueriesByNameTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		StoreQueriesTotal, StoreQueryDurationSecond,
		MeshBuildsTotal, MeshBuildDurationSeconds,
		ShutdownInFlightRequests,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow. Uses same window as lifecycle.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(overload.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(overload.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedNames sets the allow-list for name metrics. Non-tracked names increment "other".
func SetTrackedNames(names []string) {
	trackedNamesMu.Lock()
	defer trackedNamesMu.Unlock()
	trackedNames = make(map[string]struct{}, len(names))
	for _, n := range names {
		trackedNames[normalizeNameForMetrics(n)] = struct{}{}
	}
}

// MetricNameLabel resolves a query name to its metric label: the name itself
// when tracked, "other" otherwise. Keeps label cardinality bounded.
func MetricNameLabel(name string) string {
	n := normalizeNameForMetrics(name)
	trackedNamesMu.RLock()
	_, ok := trackedNames[n] // nil map read is safe in Go
	trackedNamesMu.RUnlock()
	if ok {
		return n
	}
	return "other"
}

// RecordNumbersQuery records a numbers query for the given name.
func RecordNumbersQuery(name string) {
	NumbersQueriesTotal.Inc()
	NumbersQueriesByNameTotal.WithLabelValues(MetricNameLabel(name)).Inc()
}

func normalizeNameForMetrics(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

// RecordCircuitBreakerTransition records a state change for the component.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the state gauge for the component.
func SetCircuitBreakerStateGauge(component string, state float64) {
	CircuitBreakerState.WithLabelValues(component).Set(state)
}

// CircuitBreakerStateValue maps a circuit breaker state ordinal to the gauge value.
func CircuitBreakerStateValue(state int) float64 { return float64(state) }

// RecordShutdownInFlight records the in-flight count at shutdown drain start.
func RecordShutdownInFlight(count int64) {
	ShutdownInFlightRequests.Set(float64(count))
}

// RecordStoreQuery records a store query outcome and its latency.
func RecordStoreQuery(operation string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	StoreQueriesTotal.WithLabelValues(operation, outcome).Inc()
	StoreQueryDurationSecond.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMeshBuild records a mesh build outcome and its duration.
func RecordMeshBuild(err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	MeshBuildsTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		MeshBuildDurationSeconds.Observe(duration.Seconds())
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
