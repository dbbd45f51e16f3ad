package core

import (
	"net/http"
	"strings"

	"agriweather/internal/types"
)

// AdminKeyHeader carries the operator key. A Bearer token in Authorization is
// accepted as well.
const AdminKeyHeader = "X-Admin-Key"

// SecurityHeadersMiddleware sets the standard hardening headers on every
// response.
func (s *Server) SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// AdminOnly rejects requests that do not present the configured operator
// key. Keys are compared in constant time. With no key configured every
// request is rejected.
func (s *Server) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(AdminKeyHeader)
		if presented == "" {
			presented = extractBearerToken(r.Header.Get("Authorization"))
		}
		if presented == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "operator key is required", nil))
			return
		}

		var expected string
		if s.Config != nil {
			expected = s.Config.Security.AdminAPIKey.Unmask()
		}
		if !keyMatches(presented, expected) {
			s.Logger.WarnContext(r.Context(), "rejected operator request",
				"path", r.URL.Path, "remote_addr", r.RemoteAddr)
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid operator key", nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithAdmin(r.Context())))
	})
}

// extractBearerToken returns the token of a "Bearer <token>" header value.
func extractBearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
