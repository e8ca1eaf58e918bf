package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Strob0t/TenantForge/internal/domain/identity"
)

type principalCtxKey struct{}

// SessionResolver extracts the caller from a request. It returns a nil
// principal and a nil error when the request carries no session.
type SessionResolver interface {
	Resolve(r *http.Request) (*identity.Principal, error)
}

// Authenticate attaches the session principal to the request context when
// one is present. It never rejects: access decisions belong to TenantRouter
// and to handlers. An invalid session is treated as no session.
func Authenticate(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := sessions.Resolve(r)
			if err != nil {
				slog.DebugContext(r.Context(), "session rejected", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if p != nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*identity.Principal)
	return p
}
