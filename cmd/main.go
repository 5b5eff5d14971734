package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vigilops/livetrack/internal/adapters/http/api"
	"github.com/vigilops/livetrack/internal/adapters/rest"
	"github.com/vigilops/livetrack/internal/adapters/stream"
	service "github.com/vigilops/livetrack/internal/app"
	"github.com/vigilops/livetrack/internal/config"
	"github.com/vigilops/livetrack/pkg/logger"
	"github.com/vigilops/livetrack/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	sessionMetricsInterval = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics.
	// We collect our own custom system metrics instead.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logs: " + err.Error() + "\n")
		}
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Create and start the tracking session with configuration options
	opts := []service.Option{
		service.WithLogger(loggerInstance),
		service.WithEventID(cfg.EventID),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeWindow(cfg.DedupeWindow),
		service.WithTrailCap(cfg.TrailCap),
		service.WithStaleAfter(time.Duration(cfg.StaleAfterSec) * time.Second),
		service.WithAnimation(
			time.Duration(cfg.AnimationFrameMS)*time.Millisecond,
			time.Duration(cfg.AnimationDurationMS)*time.Millisecond,
		),
		service.WithReconnect(
			cfg.ReconnectMaxAttempts,
			time.Duration(cfg.ReconnectBaseBackoffMS)*time.Millisecond,
			time.Duration(cfg.ReconnectMaxBackoffMS)*time.Millisecond,
		),
	}
	if cfg.RosterURL != "" {
		opts = append(opts, service.WithRosterSource(rest.New(
			cfg.RosterURL,
			rest.WithTimeout(time.Duration(cfg.RosterTimeoutMS)*time.Millisecond),
			rest.WithLogger(loggerInstance.Named("roster")),
		)))
	}
	if cfg.FeedURL != "" {
		opts = append(opts, service.WithFeedEndpoint(cfg.FeedURL, stream.Identity{
			SubjectID: cfg.FeedSubjectID,
			Role:      cfg.FeedRole,
		}))
	}

	session := service.New(opts...)
	if err := session.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start tracking session: " + err.Error() + "\n")
		return
	}
	defer session.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start session metrics updater
	go startSessionMetricsUpdater(ctx, session)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// Register business API routes with the session dependency.
	apiServer := api.NewServer(session, session)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startSessionMetricsUpdater starts a background goroutine that updates session metrics.
func startSessionMetricsUpdater(ctx context.Context, session *service.TrackingSession) {
	ticker := time.NewTicker(sessionMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSessionMetrics(session)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// updateSessionMetrics refreshes gauges derived from session stats.
func updateSessionMetrics(session *service.TrackingSession) {
	stats := session.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}

	if tracked, ok := stats["tracked"].(int); ok {
		metrics.UpdateTrackedEntities(tracked)
	}

	if moving, ok := stats["moving"].(int); ok {
		metrics.UpdateMovingEntities(moving)
	}

	if lowBattery, ok := stats["lowBattery"].(int); ok {
		metrics.UpdateLowBatteryEntities(lowBattery)
	}
}
