package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onlinefem/onlinefem/internal/models"
	"github.com/onlinefem/onlinefem/internal/observability"
)

// NumbersFetcher is implemented by the service layer to fetch a number set
// by query name. Used by CacheWarmer to avoid a circular dependency on the
// service package.
type NumbersFetcher interface {
	GetNumbers(ctx context.Context, name string) (models.NumberSet, error)
}

// CacheWarmer warms the cache by prefetching the tracked query names.
type CacheWarmer struct {
	fetcher NumbersFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher NumbersFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches each name concurrently and populates the cache via the fetcher.
// Returns an error if any name failed (aggregated).
func (w *CacheWarmer) Warm(ctx context.Context, names []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("names", len(names)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(names))
	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.fetcher.GetNumbers(ctx, name)
			if err != nil {
				errCh <- fmt.Errorf("warm %s: %w", name, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("names", len(names)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, names []string, interval time.Duration) error {
	if err := w.Warm(ctx, names); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, names); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
