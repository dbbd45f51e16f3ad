// Package main is the entrypoint for the scheduled jobs Lambda function.
//
// EventBridge rules invoke it with a JobPayload naming the task:
//
//   - broadcast_frost: nightly frost SMS to pistachio farmers
//   - refresh_weather: fill the API forecast cache before the day starts
//   - send_reminders: nudge users with unfinished registrations
//
// This file handles dependency wiring (cold start) and delegates all business
// logic to the internal/scheduler package (Dispatcher.Handle).
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"agriweather/internal/config"
	"agriweather/internal/db"
	"agriweather/internal/geopoints"
	"agriweather/internal/notifications"
	"agriweather/internal/scheduler"
	"agriweather/internal/types"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("scheduler Lambda initializing (cold start)")

	// DATABASE_URL is stored in SSM and referenced via DATABASE_URL_SSM_PARAM.
	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"))); err != nil {
		logger.Error("failed to resolve SSM secrets", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	awsCfg, err := cfg.AWS.LoadSDKConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}

	var metrics notifications.Metrics = notifications.NopMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = notifications.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			types.RealClock{},
			logger,
		)
	}

	jobs, err := scheduler.BuildJobs(cfg, scheduler.Deps{
		DB:      pool,
		Points:  geopoints.NewSourceFromConfig(cfg, awsCfg, logger),
		Outbox:  notifications.NewOutbox(sqs.NewFromConfig(awsCfg), cfg.AWS.SMSQueueURL, types.RealClock{}, logger),
		Metrics: metrics,
		Clock:   types.RealClock{},
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to build jobs", "error", err)
		os.Exit(1)
	}

	dispatcher := scheduler.NewDispatcher(jobs, types.RealClock{}, logger)

	logger.Info("scheduler Lambda initialized",
		"product", cfg.Broadcast.Product,
		"concurrency", cfg.Broadcast.Concurrency,
		"geopoint_source", cfg.GeoPoint.Source,
		"version", cfg.Build.Version,
	)

	lambda.Start(dispatcher.Handle)
}
