package core

import (
	"crypto/subtle"
	"net/http"

	"agriweather/internal/types"
)

// ServiceKeyHeader carries the front-end service key. A Bearer token in
// Authorization is accepted as well.
const ServiceKeyHeader = "X-Service-Key"

// AuthMiddleware guards the /v1 group. A request must present the service
// key, or the operator key, in X-Service-Key, X-Admin-Key or a Bearer token.
// Operator-key requests are marked admin in the context; the admin routes
// still apply AdminOnly on top.
//
// Failures return 401 with distinct codes:
//   - auth_token_missing: no credential presented.
//   - auth_token_invalid: the credential matches neither key.
//
// With no keys configured every request is rejected.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := presentedCredentials(r)
		if len(presented) == 0 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "a service key is required", nil))
			return
		}

		var service, admin string
		if s.Config != nil {
			service = s.Config.Security.ServiceAPIKey.Unmask()
			admin = s.Config.Security.AdminAPIKey.Unmask()
		}

		for _, cred := range presented {
			if keyMatches(cred, admin) {
				next.ServeHTTP(w, r.WithContext(types.WithAdmin(r.Context())))
				return
			}
			if keyMatches(cred, service) {
				next.ServeHTTP(w, r)
				return
			}
		}

		s.Logger.WarnContext(r.Context(), "rejected unauthenticated request",
			"path", r.URL.Path, "remote_addr", r.RemoteAddr)
		Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid service key", nil))
	})
}

// presentedCredentials returns the non-empty credentials of r in header
// order: X-Service-Key, X-Admin-Key, then the Bearer token.
func presentedCredentials(r *http.Request) []string {
	var out []string
	for _, c := range []string{
		r.Header.Get(ServiceKeyHeader),
		r.Header.Get(AdminKeyHeader),
		extractBearerToken(r.Header.Get("Authorization")),
	} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// keyMatches compares in constant time. An unset key never matches.
func keyMatches(presented, expected string) bool {
	return expected != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
