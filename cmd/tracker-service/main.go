// tracker-service is the HTTP API server for the bike tracker: the job
// queue for the device fleet plus position and status reads.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"biketrack/internal/api"
	"biketrack/internal/config"
	"biketrack/internal/health"
	"biketrack/internal/job"
	"biketrack/internal/kvstore"
	"biketrack/internal/observability"
	"biketrack/internal/status"
	"biketrack/internal/telemetry"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg := config.LoadServiceConfig()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Open the key-value store backing jobs and device flags
	store, err := kvstore.OpenSQLite(cfg.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Store opened", "path", cfg.StorePath)

	// Telemetry upstream
	var source telemetry.Source
	if cfg.UpstreamURL != "" {
		source = telemetry.NewHTTPSource(cfg.UpstreamURL)
		slog.Info("Telemetry upstream configured", "url", cfg.UpstreamURL)
	} else {
		source = &telemetry.StaticSource{}
		slog.Warn("No telemetry upstream configured, position reads will be empty")
	}

	healthChecker := health.NewChecker(store)
	dispatcher := job.NewDispatcher(store, cfg.PendingTTL, cfg.ResultTTL, metrics)

	router := api.NewRouter(api.HandlerConfig{
		Jobs:   dispatcher,
		Source: source,
		Flags:  status.NewFlags(store),
		Thresholds: status.Thresholds{
			StaleUpdate: cfg.StaleUpdate.Milliseconds(),
			StaleFix:    cfg.StaleFix.Milliseconds(),
		},
		Metrics:  metrics,
		Health:   healthChecker,
		AdminPIN: cfg.AdminPIN,
	})

	if cfg.AdminPIN == "" {
		slog.Warn("No ADMIN_PIN configured, stolen flag endpoint is disabled")
	}

	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: fail readiness so load balancers stop sending traffic
	healthChecker.SetShuttingDown()
	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: stop accepting connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Queued jobs and results survive in the store; agents resume polling
	// when the service comes back.
	slog.Info("Shutdown complete")
	return nil
}
