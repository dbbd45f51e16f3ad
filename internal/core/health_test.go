package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agriweather/internal/geopoints"
)

type fakeProbe struct {
	name  string
	err   error
	delay time.Duration
	panic bool
}

func (p *fakeProbe) Name() string { return p.name }

func (p *fakeProbe) Check(ctx context.Context) error {
	if p.panic {
		panic("probe bug")
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			// Outlive the handler deadline on purpose.
			time.Sleep(10 * time.Millisecond)
			return ctx.Err()
		}
	}
	return p.err
}

func runHealth(t *testing.T, probes ...HealthProbe) (int, healthResponse) {
	t.Helper()
	srv := newTestServer(t)
	srv.HealthProbes = probes

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, body
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, body := runHealth(t)
	if code != http.StatusOK || body.Status != "healthy" {
		t.Errorf("expected healthy 200, got %d %+v", code, body)
	}
	if body.Version != "1.2.3" {
		t.Errorf("expected build version, got %q", body.Version)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	code, body := runHealth(t, &fakeProbe{name: "database"}, &fakeProbe{name: "geopoints"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(body.Components) != 2 || body.Components["database"].Status != "healthy" {
		t.Errorf("unexpected components: %+v", body.Components)
	}
}

func TestHandleHealth_Failures(t *testing.T) {
	code, body := runHealth(t,
		&fakeProbe{name: "database", err: errors.New("connection refused")},
		&fakeProbe{name: "geopoints", panic: true},
		&fakeProbe{name: "ok"},
	)
	if code != http.StatusServiceUnavailable || body.Status != "unhealthy" {
		t.Fatalf("expected unhealthy 503, got %d %s", code, body.Status)
	}
	if got := body.Components["database"]; got.Message != "connection refused" {
		t.Errorf("unexpected database status: %+v", got)
	}
	if got := body.Components["geopoints"]; got.Status != "unhealthy" {
		t.Errorf("panicking probe must be unhealthy: %+v", got)
	}
	if got := body.Components["ok"]; got.Status != "healthy" {
		t.Errorf("unexpected ok status: %+v", got)
	}
}

func TestHandleHealth_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the health deadline")
	}
	code, body := runHealth(t, &fakeProbe{name: "slow", delay: time.Minute})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body.Components["slow"].Message != "health check timed out" {
		t.Errorf("unexpected slow status: %+v", body.Components["slow"])
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeSource struct {
	dates []string
	err   error
}

func (s fakeSource) Load(context.Context, string) (*geopoints.Store, error) { return nil, nil }

func (s fakeSource) AvailableDates(context.Context) ([]string, error) { return s.dates, s.err }

func TestProbes(t *testing.T) {
	ctx := context.Background()

	if err := (DatabaseProbe{DB: fakePinger{}}).Check(ctx); err != nil {
		t.Errorf("unexpected database error: %v", err)
	}
	if err := (DatabaseProbe{DB: fakePinger{err: errors.New("down")}}).Check(ctx); err == nil {
		t.Error("expected database error")
	}
	if err := (GeoPointProbe{Source: fakeSource{dates: []string{"20240105"}}}).Check(ctx); err != nil {
		t.Errorf("unexpected geopoint error: %v", err)
	}
	if err := (GeoPointProbe{Source: fakeSource{}}).Check(ctx); err == nil {
		t.Error("expected error when no files are available")
	}
}
