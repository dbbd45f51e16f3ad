package scheduler

import (
	"fmt"
	"log/slog"

	"agriweather/internal/config"
	"agriweather/internal/db"
	"agriweather/internal/external"
	"agriweather/internal/forecasts"
	"agriweather/internal/geopoints"
	"agriweather/internal/notifications"
	"agriweather/internal/security"
	"agriweather/internal/types"
)

// Deps are the process-wide resources shared by every job. The Lambda and
// the local job runner build them differently and hand them to BuildJobs.
type Deps struct {
	DB      db.DBTX
	Points  geopoints.Source
	Outbox  SMSPublisher
	Metrics notifications.Metrics
	Clock   types.Clock
	Logger  *slog.Logger
}

// BuildJobs wires the three scheduled jobs from cfg.
func BuildJobs(cfg *config.Config, d Deps) (map[TaskType]Job, error) {
	window, err := forecasts.ParseDaytimeWindow(cfg.Window.Timezone, cfg.Window.DayStart, cfg.Window.DayEnd)
	if err != nil {
		return nil, fmt.Errorf("parsing daytime window: %w", err)
	}
	product := types.ProductType(cfg.Broadcast.Product)
	if !product.Valid() {
		return nil, fmt.Errorf("unknown broadcast product %q", cfg.Broadcast.Product)
	}
	if d.Clock == nil {
		d.Clock = types.RealClock{}
	}
	if d.Metrics == nil {
		d.Metrics = notifications.NopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	farms := db.NewFarmRepository(d.DB)
	users := db.NewUserRepository(d.DB)
	weather := db.NewWeatherRepository(d.DB)
	advisories := db.NewAdvisoryRepository(d.DB)

	points := geopoints.NewCache(d.Points, cfg.GeoPoint.CacheDays, d.Logger)
	openMeteo := external.NewOpenMeteoClient(
		security.NewOutboundClient(cfg.Environment, cfg.OpenMeteo.Timeout),
		external.OpenMeteoClientConfig{
			BaseURL:      cfg.OpenMeteo.BaseURL,
			Timezone:     cfg.Window.Timezone,
			ForecastDays: cfg.OpenMeteo.ForecastDays,
			Logger:       d.Logger,
		},
	)
	apiSource := forecasts.NewCachedAPISource(openMeteo, weather, window, d.Clock, d.Logger)

	// The broadcast reads only the frost half of the report.
	assembler := forecasts.NewReportAssembler(points, nil, forecasts.AssemblerConfig{
		Window:    window,
		Threshold: cfg.GeoPoint.Threshold,
		Logger:    d.Logger,
	})

	jobCfg := JobConfig{
		Product:     product,
		Window:      window,
		Concurrency: cfg.Broadcast.Concurrency,
		MaxAttempts: cfg.Broadcast.MaxUpstreamAttempts,
		Footer:      cfg.Broadcast.HelpLine,
	}

	return map[TaskType]Job{
		TaskBroadcastFrost: NewFrostBroadcaster(
			farms, AssemblerAdvisor{Assembler: assembler}, d.Outbox, advisories, d.Metrics, jobCfg, d.Logger),
		TaskRefreshWeather: NewWeatherRefresher(
			farms, apiSource, weather, d.Metrics, jobCfg, d.Logger),
		TaskSendReminders: NewReminders(
			users, farms, d.Outbox, advisories, d.Metrics, jobCfg, d.Logger),
	}, nil
}
