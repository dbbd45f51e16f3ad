package forecasts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agriweather/internal/types"
)

type fakeFetcher struct {
	forecast *types.APIForecast
	err      error
	calls    int
}

func (f *fakeFetcher) FetchDaily(context.Context, types.Coordinate) (*types.APIForecast, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.forecast
	return &cp, nil
}

type memCache struct {
	entries map[string]*types.APIForecast
	getErr  error
	putErr  error
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*types.APIForecast)}
}

func (m *memCache) Get(_ context.Context, farmID, day string) (*types.APIForecast, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.entries[farmID+"/"+day], nil
}

func (m *memCache) Put(_ context.Context, farmID, day string, f *types.APIForecast) error {
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[farmID+"/"+day] = f
	return nil
}

func newTestAPISource(t *testing.T, fetcher ForecastFetcher, cache ForecastCache) *CachedAPISource {
	w := tehranWindow(t)
	return NewCachedAPISource(fetcher, cache, w, types.FixedClock{T: atTehran(t, w, 10, 0)}, nil)
}

// morning is 10:00 in Tehran on 2024-01-06, the day apiForecast starts.
func morning(t *testing.T) time.Time {
	return atTehran(t, tehranWindow(t), 10, 0)
}

func TestCachedAPISource_MissThenHit(t *testing.T) {
	fetcher := &fakeFetcher{forecast: apiForecast()}
	cache := newMemCache()
	src := newTestAPISource(t, fetcher, cache)
	c := types.Coordinate{Lat: 35.70, Lon: 51.40}

	assert.Equal(t, "2024-01-06", src.Day(morning(t)))

	first, err := src.Forecast(context.Background(), "farm-1", c, morning(t))
	require.NoError(t, err)
	assert.False(t, first.FetchedAt.IsZero())
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 1, cache.puts)

	second, err := src.Forecast(context.Background(), "farm-1", c, morning(t))
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "second call must be served from cache")
	assert.Equal(t, first, second)
}

func TestCachedAPISource_StaleEntriesAreRefetched(t *testing.T) {
	c := types.Coordinate{Lat: 35.70, Lon: 51.40}

	t.Run("moved farm", func(t *testing.T) {
		fetcher := &fakeFetcher{forecast: apiForecast()}
		cache := newMemCache()
		moved := apiForecast()
		moved.Coordinate = types.Coordinate{Lat: 30, Lon: 55}
		cache.entries["farm-1/2024-01-06"] = moved

		_, err := newTestAPISource(t, fetcher, cache).Forecast(context.Background(), "farm-1", c, morning(t))
		require.NoError(t, err)
		assert.Equal(t, 1, fetcher.calls)
	})

	t.Run("first day mismatch", func(t *testing.T) {
		fetcher := &fakeFetcher{forecast: apiForecast()}
		cache := newMemCache()
		old := apiForecast()
		old.Days = []string{"2024-01-05"}
		cache.entries["farm-1/2024-01-06"] = old

		_, err := newTestAPISource(t, fetcher, cache).Forecast(context.Background(), "farm-1", c, morning(t))
		require.NoError(t, err)
		assert.Equal(t, 1, fetcher.calls)
	})
}

func TestCachedAPISource_CacheErrorsAreNotFatal(t *testing.T) {
	fetcher := &fakeFetcher{forecast: apiForecast()}
	cache := newMemCache()
	cache.getErr = errors.New("db down")
	cache.putErr = errors.New("db down")

	f, err := newTestAPISource(t, fetcher, cache).Forecast(context.Background(), "farm-1", types.Coordinate{Lat: 35.70, Lon: 51.40}, morning(t))
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestCachedAPISource_FetchErrorPropagates(t *testing.T) {
	boom := types.NewAppError(types.ErrCodeUpstreamTimeout, "slow", nil)
	src := newTestAPISource(t, &fakeFetcher{err: boom}, nil)

	_, err := src.Forecast(context.Background(), "farm-1", types.Coordinate{Lat: 35.70, Lon: 51.40}, morning(t))
	assert.Equal(t, types.ErrCodeUpstreamTimeout, types.CodeOf(err))
}

func TestCachedAPISource_KeysByReferenceDay(t *testing.T) {
	fetcher := &fakeFetcher{forecast: apiForecast()}
	cache := newMemCache()
	w := tehranWindow(t)
	// The source clock sits three days before the reference time.
	src := NewCachedAPISource(fetcher, cache, w, types.FixedClock{T: morning(t).AddDate(0, 0, -3)}, nil)
	c := types.Coordinate{Lat: 35.70, Lon: 51.40}

	_, err := src.Refresh(context.Background(), "farm-1", c, morning(t))
	require.NoError(t, err)
	assert.Contains(t, cache.entries, "farm-1/2024-01-06")
	assert.NotContains(t, cache.entries, "farm-1/2024-01-03")

	_, err = src.Forecast(context.Background(), "farm-1", c, morning(t))
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "the refreshed entry must serve the same reference day")

	// 21:00 on Jan 5 is still Jan 5 locally, so the Jan 6 entry does not
	// answer it.
	_, err = src.Forecast(context.Background(), "farm-1", c, atTehran(t, w, 21, 0).AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
	assert.Contains(t, cache.entries, "farm-1/2024-01-05")
}
