package middleware

import (
	"context"
	"net/http"
	"strings"
)

// DefaultPrincipalHeader carries the admin id set by the authenticating gateway.
const DefaultPrincipalHeader = "X-QLP-Admin-ID"

type principalContextKey struct{}

// SetPrincipal stores the authenticated admin id on the context.
func SetPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principalID)
}

// PrincipalFromContext returns the admin id stored by SetPrincipal.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalContextKey{}).(string)
	return id, ok && id != ""
}

// NewPrincipalMiddleware reads the admin id from header and rejects requests
// without one. Authentication itself happens upstream; this service only
// trusts the header on a private listener.
func NewPrincipalMiddleware(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultPrincipalHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" {
				unauthenticated(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), id)))
		})
	}
}

func unauthenticated(w http.ResponseWriter) {
	http.Error(w, "unauthenticated", http.StatusUnauthorized)
}
