package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/onlinefem/onlinefem/internal/cache"
	"github.com/onlinefem/onlinefem/internal/client"
	"github.com/onlinefem/onlinefem/internal/models"
	"github.com/onlinefem/onlinefem/internal/observability"
)

// NumbersService orchestrates solver number retrieval using cache-aside
// pattern with solver fallback. Implements the service layer business logic.
type NumbersService struct {
	client          client.SolverClient
	cache           cache.Cache
	ttl             time.Duration
	staleCacheTTL   time.Duration // Maximum age for stale cache fallback (0 = disabled)
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // Optional request coalescing (nil if disabled)
}

// NewNumbersService creates a new NumbersService with the provided dependencies.
// TTL specifies the cache expiration duration for solver results.
// staleCacheTTL specifies maximum age for stale cache fallback (0 = disabled).
// coalesceEnabled and coalesceTimeout configure request coalescing (disabled if timeout 0).
func NewNumbersService(client client.SolverClient, cache cache.Cache, ttl time.Duration, staleCacheTTL time.Duration, coalesceEnabled bool, coalesceTimeout time.Duration) *NumbersService {
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &NumbersService{
		client:          client,
		cache:           cache,
		ttl:             ttl,
		staleCacheTTL:   staleCacheTTL,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetNumbers retrieves the number set the solver computed for name using
// cache-aside pattern. Checks cache first, falls back to the solver on cache
// miss, and populates cache on success. A solver answer of no data is never
// cached and never masked by stale fallback.
func (s *NumbersService) GetNumbers(ctx context.Context, name string) (models.NumberSet, error) {
	key := normalizeName(name)
	start := time.Now()
	logger := loggerFromContext(ctx)
	observability.RecordNumbersQuery(key)

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("numbers").Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("name", key))
			logger.Debug("numbers served", zap.String("name", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.RecordHit(key)
	nameLabel := observability.MetricNameLabel(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(nameLabel).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(nameLabel).Observe(float64(concurrentMisses))
	}

	if logger != nil {
		logger.Debug("cache miss, calling solver", zap.String("name", key))
	}

	// Use coalescer if enabled to prevent concurrent solver calls for same key
	var data models.NumberSet
	var solverErr error
	if s.coalescer != nil {
		coalesceStart := time.Now()
		data, solverErr = s.coalescer.GetOrDo(ctx, key, func() (models.NumberSet, error) {
			return s.client.FetchNumbers(ctx, key)
		})
		coalesceWait := time.Since(coalesceStart)
		if solverErr == nil {
			// Check if we waited (coalesced) vs initiated the request
			// If wait time > 0, we likely coalesced (approximate)
			if coalesceWait > 10*time.Millisecond {
				observability.RequestCoalescingHitsTotal.WithLabelValues(nameLabel).Inc()
			}
			observability.RequestCoalescingWaitSeconds.Observe(coalesceWait.Seconds())
		}
	} else {
		data, solverErr = s.client.FetchNumbers(ctx, key)
	}
	if solverErr != nil {
		if errors.Is(solverErr, client.ErrNoData) {
			// The solver answered; it just has nothing for this name.
			return models.NumberSet{}, solverErr
		}
		// Solver failed - try stale cache if enabled
		if s.staleCacheTTL > 0 {
			stale, ok, staleErr := s.cache.GetStale(ctx, key, s.staleCacheTTL)
			if staleErr == nil && ok {
				staleAge := time.Since(stale.FetchedAt)
				observability.StaleCacheServesTotal.WithLabelValues(nameLabel).Inc()
				observability.StaleCacheAgeSeconds.Observe(staleAge.Seconds())
				stale.Stale = true
				if logger != nil {
					logger.Info("serving stale cache", zap.String("name", key), zap.Duration("age", staleAge))
				}
				return stale, nil
			}
		}
		return models.NumberSet{}, fmt.Errorf("fetch numbers for %s: %w", key, solverErr)
	}

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, data, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("cache set failed", zap.String("name", key), zap.Error(setErr))
		}
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	if logger != nil {
		logger.Debug("numbers served", zap.String("name", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return data, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

// normalizeName normalizes query names by trimming whitespace and converting
// to lowercase. Used to ensure consistent cache keys and solver requests
// regardless of input format.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
