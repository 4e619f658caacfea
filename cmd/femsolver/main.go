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

	"github.com/onlinefem/onlinefem/internal/config"
	httphandler "github.com/onlinefem/onlinefem/internal/http"
	"github.com/onlinefem/onlinefem/internal/lifecycle"
	"github.com/onlinefem/onlinefem/internal/observability"
	"github.com/onlinefem/onlinefem/internal/solver"
)

func main() {
	logger, err := observability.NewLogger("femsolver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	handler := solver.NewHandler(solver.Config{
		WarmNX:       cfg.MeshWarmNX,
		WarmNY:       cfg.MeshWarmNY,
		MaxDivisions: cfg.MeshMaxDivisions,
	}, logger)
	if err := handler.WarmMesh(); err != nil {
		logger.Error("warm mesh build failed", zap.Error(err))
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/", handler.Numbers).Methods("GET", "POST")
	router.HandleFunc("/mesh", handler.BuildMesh).Methods("GET")
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.SolverPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("solver starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
