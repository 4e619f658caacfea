//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/onlinefem/onlinefem/internal/cache"
	"github.com/onlinefem/onlinefem/internal/client"
	"github.com/onlinefem/onlinefem/internal/service"
)

// SolverURL returns the solver base URL for integration tests, skipping the
// test when SOLVER_URL is not set.
func SolverURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("SOLVER_URL")
	if url == "" {
		t.Skip("SOLVER_URL not set, skipping integration test")
	}
	return url
}

// RequireSolver skips the test unless a solver URL is configured.
func RequireSolver(t *testing.T) {
	t.Helper()
	SolverURL(t)
}

// SetupIntegrationClient creates a solver client pointed at the live solver.
func SetupIntegrationClient(t *testing.T) client.SolverClient {
	t.Helper()
	c, err := client.NewHTTPSolverClient(SolverURL(t), 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSolverClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService creates a fully configured numbers service for
// integration tests. Uses memcached when INTEGRATION_CACHE_BACKEND=memcached
// and the server is reachable, in-memory otherwise. Returns the service, the
// cache instance, and a cleanup function.
func SetupIntegrationService(t *testing.T) (*service.NumbersService, cache.Cache, func()) {
	t.Helper()
	solverClient := SetupIntegrationClient(t)

	var cacheSvc cache.Cache
	cleanup := func() {}

	if os.Getenv("INTEGRATION_CACHE_BACKEND") == "memcached" {
		addr := os.Getenv("MEMCACHED_ADDRS")
		if addr == "" {
			addr = "localhost:11211"
		}
		memcachedCache, err := cache.NewMemcachedCache(addr, 500*time.Millisecond, 2, time.Hour)
		if err == nil && memcachedCache.Ping() == nil {
			cacheSvc = memcachedCache
			cleanup = func() { memcachedCache.Close() }
			t.Logf("Using Memcached cache at %s", addr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}
	if cacheSvc == nil {
		cacheSvc = cache.NewInMemoryCache()
	}

	numbersService := service.NewNumbersService(solverClient, cacheSvc, 5*time.Minute, 0, false, 0)
	return numbersService, cacheSvc, cleanup
}
