// Package main is the entry point for the AgriWeather API server.
//
// It loads the configuration, opens the database pool and the point file
// source, wires the report assembler and the HTTP handlers onto the core
// chassis (middleware, routing, health checks) and starts listening.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"agriweather/internal/api/handlers"
	"agriweather/internal/config"
	"agriweather/internal/core"
	"agriweather/internal/db"
	"agriweather/internal/external"
	"agriweather/internal/forecasts"
	"agriweather/internal/geopoints"
	"agriweather/internal/notifications"
	"agriweather/internal/security"
	"agriweather/internal/types"
)

// metricsFlushInterval is how often buffered request metrics are sent.
const metricsFlushInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("agriweather API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}

	awsCfg, err := cfg.AWS.LoadSDKConfig(ctx)
	if err != nil {
		pool.Close()
		return err
	}

	metrics := newMetrics(cfg, awsCfg, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Closers = append(srv.Closers, closerFunc(func() error {
		pool.Close()
		return nil
	}))

	if err := wire(srv, cfg, deps{
		pool:    pool,
		points:  geopoints.NewSourceFromConfig(cfg, awsCfg, logger),
		metrics: metrics,
		logger:  logger,
	}); err != nil {
		_ = srv.Shutdown(ctx)
		return err
	}
	srv.MountRoutes()

	return runHTTPServer(srv, cfg, metrics, logger)
}

// deps are the process-wide resources the handlers are built from.
type deps struct {
	pool interface {
		db.DBTX
		db.Pinger
	}
	points  geopoints.Source
	metrics notifications.Metrics
	logger  *slog.Logger
}

// wire builds the domain services and registers the health probes and the
// v1 routes on srv.
func wire(srv *core.Server, cfg *config.Config, d deps) error {
	window, err := forecasts.ParseDaytimeWindow(cfg.Window.Timezone, cfg.Window.DayStart, cfg.Window.DayEnd)
	if err != nil {
		return fmt.Errorf("parsing daytime window: %w", err)
	}

	points := geopoints.NewCache(d.points, cfg.GeoPoint.CacheDays, d.logger)

	openMeteo := external.NewOpenMeteoClient(
		security.NewOutboundClient(cfg.Environment, cfg.OpenMeteo.Timeout),
		external.OpenMeteoClientConfig{
			BaseURL:      cfg.OpenMeteo.BaseURL,
			Timezone:     cfg.Window.Timezone,
			ForecastDays: cfg.OpenMeteo.ForecastDays,
			Logger:       d.logger,
		},
	)

	farms := db.NewFarmRepository(d.pool)
	users := db.NewUserRepository(d.pool)
	weather := db.NewWeatherRepository(d.pool)

	apiSource := forecasts.NewCachedAPISource(openMeteo, weather, window, types.RealClock{}, d.logger)
	assembler := forecasts.NewReportAssembler(points, apiSource, forecasts.AssemblerConfig{
		Window:     window,
		Threshold:  cfg.GeoPoint.Threshold,
		APITimeout: cfg.OpenMeteo.Timeout,
		Logger:     d.logger,
	})

	srv.Metrics = core.MetricsRecorder{Metrics: d.metrics}
	srv.HealthProbes = append(srv.HealthProbes,
		core.DatabaseProbe{DB: d.pool},
		core.GeoPointProbe{Source: points},
	)

	reportHandler := handlers.NewReportHandler(farms, assembler, d.metrics, d.logger)
	farmHandler := handlers.NewFarmHandler(farms, users, srv.Validator, d.logger)
	userHandler := handlers.NewUserHandler(users, srv.Validator, srv.AdminOnly, d.logger)
	pointHandler := handlers.NewPointHandler(points, handlers.PointConfig{
		Threshold: cfg.GeoPoint.Threshold,
		Window:    window,
	}, d.logger)
	statsHandler := handlers.NewStatsHandler(farms, points, srv.AdminOnly, d.logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		reportHandler.RegisterRoutes,
		farmHandler.RegisterRoutes,
		userHandler.RegisterRoutes,
		pointHandler.RegisterRoutes,
		statsHandler.RegisterRoutes,
	)
	return nil
}

// secretProvider returns the SSM provider outside local development.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// newMetrics returns the CloudWatch buffer, or a no-op when metrics are
// disabled.
func newMetrics(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) notifications.Metrics {
	if !cfg.Observability.EnableMetrics {
		return notifications.NopMetrics{}
	}
	return notifications.NewCloudWatchMetrics(
		cloudwatch.NewFromConfig(awsCfg),
		cfg.Observability.MetricNamespace,
		types.RealClock{},
		logger,
	)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, metrics notifications.Metrics, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	flushCtx, stopFlush := context.WithCancel(context.Background())
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		flushLoop(flushCtx, metrics, metricsFlushInterval, logger)
	}()

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	stopFlush()
	<-flushDone
	if err := metrics.Flush(ctx); err != nil {
		logger.Warn("final metrics flush failed", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("server stopped cleanly")
	return nil
}

// flushLoop sends buffered metrics every interval until ctx is done.
func flushLoop(ctx context.Context, metrics notifications.Metrics, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := metrics.Flush(ctx); err != nil {
				logger.Warn("metrics flush failed", "error", err)
			}
		}
	}
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
