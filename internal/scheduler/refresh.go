package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"agriweather/internal/db"
	"agriweather/internal/forecasts"
	"agriweather/internal/notifications"
	"agriweather/internal/types"
)

// ForecastRetention is how long cached API forecasts are kept.
const ForecastRetention = 7 * 24 * time.Hour

// ForecastRefresher fetches a live forecast and stores it for the local day
// of now.
type ForecastRefresher interface {
	Refresh(ctx context.Context, farmID string, c types.Coordinate, now time.Time) (*types.APIForecast, error)
}

// ForecastPurger removes cached forecasts older than a day.
type ForecastPurger interface {
	PurgeBefore(ctx context.Context, day string) (int64, error)
}

// WeatherRefresher fills the API forecast cache for every located farm so
// that reports during the day are served without waiting on Open-Meteo.
type WeatherRefresher struct {
	farms       FarmLister
	source      ForecastRefresher
	purger      ForecastPurger
	metrics     notifications.Metrics
	window      forecasts.DaytimeWindow
	concurrency int
	retry       retrier
	logger      *slog.Logger
}

// NewWeatherRefresher creates a refresher. purger and metrics may be nil.
func NewWeatherRefresher(farms FarmLister, source ForecastRefresher, purger ForecastPurger,
	metrics notifications.Metrics, cfg JobConfig, logger *slog.Logger) *WeatherRefresher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = DefaultRetryWait
	}
	if metrics == nil {
		metrics = notifications.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherRefresher{
		farms:       farms,
		source:      source,
		purger:      purger,
		metrics:     metrics,
		window:      cfg.Window,
		concurrency: cfg.Concurrency,
		retry:       newRetrier(cfg.MaxAttempts, cfg.RetryWait),
		logger:      logger,
	}
}

// Run refreshes every located farm regardless of product, then purges
// entries older than ForecastRetention.
func (w *WeatherRefresher) Run(ctx context.Context, now time.Time) (*RunSummary, error) {
	located := true
	farms, err := w.farms.ListWithOwners(ctx, db.FarmFilter{Located: &located})
	if err != nil {
		return nil, fmt.Errorf("listing located farms: %w", err)
	}

	today := w.window.LocalDay(now)
	t := newTally(TaskRefreshWeather, today.Format(forecasts.DayLayout), len(farms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, of := range farms {
		farm := of.Farm
		g.Go(func() error {
			err := w.retry.do(gctx, func(ctx context.Context) error {
				_, err := w.source.Refresh(ctx, farm.ID, *farm.Location, now)
				return err
			})
			if err != nil {
				w.metrics.Count(types.MetricExternalAPIFailure, 1,
					map[string]string{types.DimReason: string(types.CodeOf(err))})
				t.fail(fmt.Errorf("farm %s: %w", farm.ID, err))
				return nil
			}
			t.done()
			return nil
		})
	}
	_ = g.Wait()

	if w.purger != nil {
		cutoff := today.Add(-ForecastRetention).Format(forecasts.DayLayout)
		n, err := w.purger.PurgeBefore(ctx, cutoff)
		if err != nil {
			w.logger.WarnContext(ctx, "forecast cache purge failed", "cutoff", cutoff, "error", err)
		} else if n > 0 {
			w.logger.InfoContext(ctx, "purged cached forecasts", "cutoff", cutoff, "rows", n)
		}
	}

	summary := t.result()
	w.metrics.Count(types.MetricWeatherRefreshed, float64(summary.Done), nil)
	if err := w.metrics.Flush(ctx); err != nil {
		w.logger.WarnContext(ctx, "metrics flush failed", "error", err)
	}
	w.logger.InfoContext(ctx, "weather refresh finished",
		"farms", summary.Considered, "refreshed", summary.Done, "failed", summary.Failed)
	return summary, nil
}
