package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/membership"
	"github.com/Strob0t/TenantForge/internal/domain/routing"
)

type tenantCtxKey struct{}
type classCtxKey struct{}

// MembershipLookup finds the caller's active membership. ErrNotFound means
// the caller belongs to no tenant.
type MembershipLookup interface {
	GetActiveMembership(ctx context.Context, identityID string) (*membership.Membership, error)
}

// TenantRouter enforces the legacy/tenant path split. It expects
// Authenticate to have run first.
type TenantRouter struct {
	memberships   MembershipLookup
	legacyOwnerID string
	paths         routing.Paths
}

// NewTenantRouter creates the router. legacyOwnerID may be empty, in which
// case nobody is classified as the legacy owner.
func NewTenantRouter(memberships MembershipLookup, legacyOwnerID string, paths routing.Paths) *TenantRouter {
	return &TenantRouter{memberships: memberships, legacyOwnerID: legacyOwnerID, paths: paths}
}

// Handler returns the routing middleware.
func (tr *TenantRouter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if tr.paths.IsPublic(path) {
			next.ServeHTTP(w, r)
			return
		}

		p := PrincipalFromContext(r.Context())
		if p == nil {
			http.Redirect(w, r, tr.paths.LoginLocation(r.URL.RequestURI()), http.StatusFound)
			return
		}
		if !tr.paths.Scoped(path) {
			next.ServeHTTP(w, r)
			return
		}

		class, tenantID, err := tr.classify(r.Context(), p.IdentityID)
		if err != nil {
			// Fail closed: a store outage must not leak one tenant's surface to another.
			slog.ErrorContext(r.Context(), "tenant routing lookup failed", "identity_id", p.IdentityID, "error", err)
			http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		d := tr.paths.Decide(class, path)
		if d.Action == routing.ActionRedirect {
			loc := d.Location
			if r.URL.RawQuery != "" && loc != tr.paths.Onboarding {
				loc += "?" + r.URL.RawQuery
			}
			slog.DebugContext(r.Context(), "tenant routing redirect",
				"identity_id", p.IdentityID, "class", class.String(), "from", path, "to", loc)
			http.Redirect(w, r, loc, http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), classCtxKey{}, class)
		if tenantID != "" {
			ctx = context.WithValue(ctx, tenantCtxKey{}, tenantID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// classify makes at most one membership lookup.
func (tr *TenantRouter) classify(ctx context.Context, identityID string) (routing.Class, string, error) {
	if tr.legacyOwnerID != "" && identityID == tr.legacyOwnerID {
		return routing.ClassLegacyOwner, "", nil
	}
	m, err := tr.memberships.GetActiveMembership(ctx, identityID)
	if errors.Is(err, domain.ErrNotFound) {
		return routing.ClassUnclassified, "", nil
	}
	if err != nil {
		return routing.ClassUnclassified, "", err
	}
	return routing.ClassTenantMember, m.TenantID, nil
}

// TenantIDFromContext returns the tenant the router bound the request to,
// or "" outside the tenant prefix.
func TenantIDFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(tenantCtxKey{}).(string)
	return tid
}

// ClassFromContext returns the caller class resolved by the router.
func ClassFromContext(ctx context.Context) routing.Class {
	c, _ := ctx.Value(classCtxKey{}).(routing.Class)
	return c
}
