package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"agriweather/internal/geopoints"
	"agriweather/internal/types"
)

type mockStatsSource struct {
	stats *types.FarmStats
	err   error
}

func (m *mockStatsSource) Stats(context.Context) (*types.FarmStats, error) {
	return m.stats, m.err
}

func sampleStats() *types.FarmStats {
	return &types.FarmStats{
		Users:        3,
		Farms:        4,
		LocatedFarms: 2,
		ByStatus:     map[string]int{"complete": 2, "incomplete": 2},
		ByProduct:    map[string]int{"pistachio": 3, "almond": 1},
	}
}

func TestHandleGetStats(t *testing.T) {
	src := &mockPointSource{dates: []string{"20240104", "20240105"}}
	h := NewStatsHandler(&mockStatsSource{stats: sampleStats()}, src, allowAll, testLogger())

	rec := serve(h, http.MethodGet, "/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got StatsResponse
	decodeData(t, rec, &got)
	if got.Registrations.Farms != 4 || got.Registrations.ByProduct["pistachio"] != 3 {
		t.Errorf("unexpected registrations: %+v", got.Registrations)
	}
	if len(got.AvailableDates) != 2 || got.AvailableDates[1] != "20240105" {
		t.Errorf("unexpected dates: %v", got.AvailableDates)
	}
	if got.CachedDates != nil {
		t.Errorf("plain sources have no cache, got %v", got.CachedDates)
	}
}

func TestHandleGetStats_CachedDates(t *testing.T) {
	src := &mockPointSource{
		stores: map[string]*geopoints.Store{"20240105": pointStore("20240105")},
		dates:  []string{"20240105"},
	}
	cache := geopoints.NewCache(src, 2, testLogger())
	if _, err := cache.Load(context.Background(), "20240105"); err != nil {
		t.Fatalf("warming cache: %v", err)
	}
	h := NewStatsHandler(&mockStatsSource{stats: sampleStats()}, cache, allowAll, testLogger())

	rec := serve(h, http.MethodGet, "/v1/stats", "")
	var got StatsResponse
	decodeData(t, rec, &got)
	if len(got.CachedDates) != 1 || got.CachedDates[0] != "20240105" {
		t.Errorf("expected the warmed date, got %v", got.CachedDates)
	}
}

func TestHandleGetStats_ListingFailureIsTolerated(t *testing.T) {
	src := &mockPointSource{err: errors.New("access denied")}
	h := NewStatsHandler(&mockStatsSource{stats: sampleStats()}, src, allowAll, testLogger())

	rec := serve(h, http.MethodGet, "/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got StatsResponse
	decodeData(t, rec, &got)
	if got.AvailableDates == nil || len(got.AvailableDates) != 0 {
		t.Errorf("expected an empty date list, got %v", got.AvailableDates)
	}
}

func TestHandleGetStats_Errors(t *testing.T) {
	h := NewStatsHandler(&mockStatsSource{err: types.NewAppError(types.ErrCodeInternalDB, "failed to count users", nil)},
		nil, allowAll, testLogger())
	rec := serve(h, http.MethodGet, "/v1/stats", "")
	expectError(t, rec, http.StatusInternalServerError, types.ErrCodeInternalDB)

	h = NewStatsHandler(&mockStatsSource{stats: sampleStats()}, nil, denyAll, testLogger())
	rec = serve(h, http.MethodGet, "/v1/stats", "")
	expectError(t, rec, http.StatusUnauthorized, types.ErrCodeAuthTokenMissing)
}
