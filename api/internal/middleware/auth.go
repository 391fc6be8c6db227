package middleware

import (
	"context"
	"net/http"
	"strings"

	"municipal-complaint-service/api/internal/token"
	"municipal-complaint-service/shared/httpx"
)

type officerClaimsKey struct{}

// AuthMiddleware guards the officer console API with session tokens issued
// by the token service.
type AuthMiddleware struct {
	Tokens *token.Service
	Skip   func(*http.Request) bool
}

func (m AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		if m.Tokens == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "token service not configured", nil)
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
			return
		}
		raw := strings.TrimSpace(authHeader[len("bearer "):])
		claims, err := m.Tokens.Verify(r.Context(), raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), officerClaimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OfficerFromContext returns the verified session claims set by
// AuthMiddleware.
func OfficerFromContext(ctx context.Context) (token.Claims, bool) {
	claims, ok := ctx.Value(officerClaimsKey{}).(token.Claims)
	return claims, ok
}
