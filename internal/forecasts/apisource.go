package forecasts

import (
	"context"
	"log/slog"
	"time"

	"agriweather/internal/types"
)

// DayLayout is the calendar day format used for API days and cache keys.
const DayLayout = "2006-01-02"

// ForecastFetcher calls the external weather API.
type ForecastFetcher interface {
	FetchDaily(ctx context.Context, c types.Coordinate) (*types.APIForecast, error)
}

// ForecastCache stores one API forecast per farm and day. Get returns
// (nil, nil) on a miss.
type ForecastCache interface {
	Get(ctx context.Context, farmID, day string) (*types.APIForecast, error)
	Put(ctx context.Context, farmID, day string, f *types.APIForecast) error
}

// CachedAPISource serves the API forecast of the caller's local day from the
// cache and falls back to a live fetch, writing the result back. Cache
// failures are logged and never fail the call. The clock only stamps
// FetchedAt; the cache day always comes from the caller's reference time.
type CachedAPISource struct {
	fetcher ForecastFetcher
	cache   ForecastCache
	window  DaytimeWindow
	clock   types.Clock
	logger  *slog.Logger
}

// NewCachedAPISource creates the source. cache may be nil to always fetch.
func NewCachedAPISource(fetcher ForecastFetcher, cache ForecastCache, window DaytimeWindow, clock types.Clock, logger *slog.Logger) *CachedAPISource {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAPISource{fetcher: fetcher, cache: cache, window: window, clock: clock, logger: logger}
}

// Day returns the local calendar day of now, used as cache key.
func (s *CachedAPISource) Day(now time.Time) string {
	return s.window.LocalDay(now).Format(DayLayout)
}

// Forecast implements APISource.
func (s *CachedAPISource) Forecast(ctx context.Context, farmID string, c types.Coordinate, now time.Time) (*types.APIForecast, error) {
	day := s.Day(now)

	if s.cache != nil && farmID != "" {
		cached, err := s.cache.Get(ctx, farmID, day)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "forecast cache read failed", "farm_id", farmID, "error", err)
		case cached != nil && cached.Coordinate == c && len(cached.Days) > 0 && cached.Days[0] == day:
			return cached, nil
		}
	}

	return s.Refresh(ctx, farmID, c, now)
}

// Refresh fetches a live forecast and stores it under the local day of now
// regardless of what the cache holds.
func (s *CachedAPISource) Refresh(ctx context.Context, farmID string, c types.Coordinate, now time.Time) (*types.APIForecast, error) {
	f, err := s.fetcher.FetchDaily(ctx, c)
	if err != nil {
		return nil, err
	}
	if f.FetchedAt.IsZero() {
		f.FetchedAt = s.clock.Now().UTC().Truncate(time.Second)
	}
	if s.cache != nil && farmID != "" {
		if err := s.cache.Put(ctx, farmID, s.Day(now), f); err != nil {
			s.logger.WarnContext(ctx, "forecast cache write failed", "farm_id", farmID, "error", err)
		}
	}
	return f, nil
}
