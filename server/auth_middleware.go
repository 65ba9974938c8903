package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyIdentity stores the verified session identity
	ContextKeyIdentity ContextKey = "identity"
)

// IdentityFromContext returns the identity injected by RequireAuth.
func IdentityFromContext(ctx context.Context) (*token.Identity, bool) {
	identity, ok := ctx.Value(ContextKeyIdentity).(*token.Identity)
	return identity, ok
}

// extractAccessToken pulls the raw access token from the Authorization
// header or, failing that, the broker cookie. Both carry the same JWT and
// verification treats them identically.
func (s *Server) extractAccessToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	cookie, err := r.Cookie(s.config.GetAccessCookieName())
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// RequireAuth is middleware that verifies the caller's access token and
// injects the resulting identity into the request context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rawToken := s.extractAccessToken(r)
			if rawToken == "" {
				writeJSONError(w, "unauthorized", "Missing access token", http.StatusUnauthorized)
				return
			}

			identity, err := s.auth.VerifySession(r.Context(), rawToken)
			if err != nil {
				code, status := verificationFailure(err)
				writeJSONError(w, code, "Invalid session", status)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyIdentity, identity)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRoles is middleware that applies a role gate to the identity
// injected by RequireAuth. Must be chained after RequireAuth.
func (s *Server) RequireRoles(gate users.Gate) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeJSONError(w, "unauthorized", "No verified session", http.StatusUnauthorized)
				return
			}
			if !gate.Allow(identity.Roles) {
				writeJSONError(w, "forbidden", "Insufficient role", http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
