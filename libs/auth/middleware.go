package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingengine/libs/httpx"
)

type ctxKey int

const ctxKeyClaims ctxKey = iota

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*Claims)
	return c, ok && c != nil
}

func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// RequireBearer rejects requests without a valid bearer token and stores the
// verified claims in the request context.
func RequireBearer(v Verifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// SubjectKey buckets rate limits by token subject, falling back to client IP.
func SubjectKey(r *http.Request) string {
	if c, ok := ClaimsFromContext(r.Context()); ok {
		return "sub:" + c.Sub
	}
	return "ip:" + httpx.ClientIP(r)
}
