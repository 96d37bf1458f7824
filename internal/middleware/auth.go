package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orderdesk/api/internal/auth"
	"github.com/orderdesk/api/internal/logger"
)

type contextKey string

const principalKey contextKey = "principal"

// SessionResolver turns a session token into the principal it belongs to.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Principal, error)
}

// Session attaches the principal for the request's session cookie, if any.
// Requests without a valid session pass through anonymously.
func Session(resolver SessionResolver, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := resolver.Resolve(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidSession) && !errors.Is(err, auth.ErrSessionNotFound) {
					log.Error(r.Context(), "resolve session", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = log.WithUsername(ctx, principal.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that carry no principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey).(*auth.Principal)
	return p
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
