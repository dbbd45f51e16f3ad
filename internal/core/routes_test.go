package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordedRequest struct {
	method, route, status string
}

type fakeRequestMetrics struct {
	mu    sync.Mutex
	calls []recordedRequest
}

func (m *fakeRequestMetrics) RecordRequest(method, route, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedRequest{method, route, status})
}

func newRoutedServer(t *testing.T) (*Server, *fakeRequestMetrics) {
	t.Helper()
	srv := newTestServer(t)
	metrics := &fakeRequestMetrics{}
	srv.Metrics = metrics
	srv.V1RouteRegistrars = []func(chi.Router){
		func(r chi.Router) {
			r.Get("/farms/{farmID}", func(w http.ResponseWriter, r *http.Request) {
				JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"id": chi.URLParam(r, "farmID")}})
			})
			r.Get("/boom", func(http.ResponseWriter, *http.Request) {
				panic("handler bug")
			})
			r.With(srv.AdminOnly).Get("/stats", func(w http.ResponseWriter, r *http.Request) {
				JSON(w, r, http.StatusOK, APIResponse{Data: "ok"})
			})
		},
	}
	srv.MountRoutes()
	return srv, metrics
}

func TestMountRoutes_V1Registrar(t *testing.T) {
	srv, metrics := newRoutedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/farms/farm_1", nil)
	req.Header.Set(ServiceKeyHeader, "svc-secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["id"] != "farm_1" {
		t.Errorf("expected farm_1, got %v", body.Data)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id response header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	if len(metrics.calls) != 1 {
		t.Fatalf("expected 1 metrics call, got %d", len(metrics.calls))
	}
	if got := metrics.calls[0]; got.route != "/v1/farms/{farmID}" || got.status != "200" {
		t.Errorf("unexpected metrics call: %+v", got)
	}
}

func TestMountRoutes_PanicIsRecovered(t *testing.T) {
	srv, _ := newRoutedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/boom", nil)
	req.Header.Set("X-Request-Id", "req-boom")
	req.Header.Set(ServiceKeyHeader, "svc-secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.RequestID != "req-boom" {
		t.Errorf("expected request id req-boom, got %q", body.Error.RequestID)
	}
}

func TestMountRoutes_Health(t *testing.T) {
	srv, _ := newRoutedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMountRoutes_UnknownRouteLabel(t *testing.T) {
	srv, metrics := newRoutedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if len(metrics.calls) != 1 || metrics.calls[0].route != "unmatched" {
		t.Errorf("expected unmatched route label, got %+v", metrics.calls)
	}
}

func TestRequestIDMiddleware_PropagatesIncoming(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-Id")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc" || rec.Header().Get("X-Request-Id") != "abc" {
		t.Errorf("expected request id abc to propagate, got %q / %q", seen, rec.Header().Get("X-Request-Id"))
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct IDs")
	}
}
