package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"agriweather/internal/core"
	"agriweather/internal/types"
)

type routeRegistrar interface {
	RegisterRoutes(r chi.Router)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

// serve mounts h under /v1 the way the server does and runs one request.
func serve(h routeRegistrar, method, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data %s: %v", env.Data, err)
	}
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var body core.APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code types.ErrorCode) core.ErrorDetail {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	got := decodeErr(t, rec)
	if got.Code != string(code) {
		t.Errorf("expected code %s, got %s", code, got.Code)
	}
	return got
}

func allowAll(next http.Handler) http.Handler { return next }

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "admin key required", nil))
	})
}
