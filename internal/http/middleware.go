// Package http carries middleware shared by the API server's routes.
package http

import (
	"context"
	"net/http"
	"strings"
)

type contextKey int

const clientIPContextKey contextKey = iota

// ExtractClientIP returns the client IP for a request. Proxy headers win
// over the socket address: X-Forwarded-For first, then X-Real-IP, then
// RemoteAddr with the port stripped.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// The first entry in the list is the originating client
		if before, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(before)
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// ClientIPFromContext returns the client IP stored by ClientIPMiddleware,
// or an empty string for requests that did not pass through it.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// ClientIPMiddleware stores the client IP in the request context so that
// handlers can include it in audit logs for credential access.
func ClientIPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ExtractClientIP(r)
			ctx := context.WithValue(r.Context(), clientIPContextKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
