package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/replydeck/replydeck/internal/tenancy"
)

type contextKey int

const principalContextKey contextKey = iota

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal tenancy.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the
// context. Returns nil if the request was not authenticated.
func PrincipalFromContext(ctx context.Context) *tenancy.Principal {
	principal, ok := ctx.Value(principalContextKey).(*tenancy.Principal)
	if !ok {
		return nil
	}
	return principal
}

// Middleware returns HTTP middleware that rejects requests without a valid
// bearer token and stores the verified principal in the request context.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				log.Warn().Str("path", r.URL.Path).Msg("Missing bearer token")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := v.VerifyToken(tokenString)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to verify token")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
