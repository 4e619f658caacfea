package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/onlinefem/onlinefem/internal/cache"
	"github.com/onlinefem/onlinefem/internal/circuitbreaker"
	"github.com/onlinefem/onlinefem/internal/client"
	"github.com/onlinefem/onlinefem/internal/config"
	"github.com/onlinefem/onlinefem/internal/degraded"
	httphandler "github.com/onlinefem/onlinefem/internal/http"
	"github.com/onlinefem/onlinefem/internal/lifecycle"
	"github.com/onlinefem/onlinefem/internal/observability"
	"github.com/onlinefem/onlinefem/internal/service"
	"github.com/onlinefem/onlinefem/internal/store"
)

func main() {
	logger, err := observability.NewLogger("femapi")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	solverClient, err := client.NewHTTPSolverClientWithRetry(
		cfg.SolverURL,
		cfg.SolverTimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("solver client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "solver",
		})
		solverClient.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}
	numbersService := service.NewNumbersService(solverClient, cacheSvc, cfg.CacheTTL, cfg.StaleCacheTTL, cfg.CoalesceEnabled, cfg.CoalesceTimeout)

	recordStore, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Fatal("record store", zap.Error(err))
	}
	if cfg.StoreSeedDemo {
		if err := recordStore.SeedDemo(context.Background()); err != nil {
			logger.Warn("demo seeding failed", zap.Error(err))
		}
	}
	logger.Info("record store opened", zap.String("path", cfg.StorePath))

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		RateLimitBurst:         cfg.RateLimitBurst,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		DegradedRetryInitial:   cfg.DegradedRetryInitial,
		DegradedRetryMax:       cfg.DegradedRetryMax,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}
	healthConfig.StorePing = recordStore.Ping

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(numbersService, solverClient, recordStore, healthConfig, logger, limiter)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	if len(cfg.TrackedNames) > 0 {
		observability.SetTrackedNames(cfg.TrackedNames)
	}

	if cfg.WarmCache && len(cfg.TrackedNames) > 0 {
		warmer := cache.NewCacheWarmer(numbersService, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.TrackedNames); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), cfg.TrackedNames, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	recoveryCtx, recoveryStop := context.WithCancel(context.Background())
	defer recoveryStop()
	degraded.StartRecoveryListener(recoveryCtx, solverClient.Ping, cfg.DegradedRetryInitial, cfg.DegradedRetryMax, func() {
		logger.Error("solver recovery attempts exhausted, shutting down")
		lifecycle.SetShuttingDown(true)
	})

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.Use(httphandler.SizeMetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	femRouter := router.PathPrefix("/fem").Subrouter()
	femRouter.Use(httphandler.RateLimitMiddleware(limiter))
	femRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	femRouter.HandleFunc("", handler.GetFem).Methods("GET")

	apiRouter := router.PathPrefix("/api/fem").Subrouter()
	apiRouter.Use(httphandler.RateLimitMiddleware(limiter))
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("", handler.ListRecords).Methods("GET")
	apiRouter.HandleFunc("/fem", handler.RecordTemplate).Methods("GET")
	apiRouter.HandleFunc("/{id}", handler.GetRecord).Methods("GET")
	apiRouter.HandleFunc("/{id}", handler.PutRecord).Methods("PUT")
	apiRouter.HandleFunc("/{id}", handler.PatchRecord).Methods("PATCH")

	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", handler.GetTestStatus).Methods("GET")
		router.HandleFunc("/test/{action}", handler.PostTestAction).Methods("POST")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	recoveryStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if err := recordStore.Close(); err != nil {
		logger.Error("record store close", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
