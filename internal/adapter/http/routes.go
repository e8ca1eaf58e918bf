package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/TenantForge/internal/domain/routing"
)

// Guards are the middlewares MountRoutes places in front of route groups.
// Nil entries are skipped.
type Guards struct {
	// RateLimit wraps the public /api group.
	RateLimit func(http.Handler) http.Handler
	// Authenticate resolves the session principal for the scoped prefixes.
	Authenticate func(http.Handler) http.Handler
	// TenantRouter enforces the legacy/tenant prefix table.
	TenantRouter func(http.Handler) http.Handler
}

// MountRoutes registers all routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, g Guards, paths routing.Paths) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api", func(r chi.Router) {
		use(r, g.RateLimit)

		r.Post("/payments/intents", h.CreateIntent)
		r.Post("/webhooks/payments", h.PaymentWebhook)

		r.Post("/activation/verify", h.VerifyActivation)
		r.Post("/activation/complete", h.CompleteActivation)
		r.Post("/activation/resend", h.ResendActivation)

		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)
	})

	// The prefixes are served by other surfaces; only whoami lives here. The
	// catch-all still runs the guards so misrouted callers get redirected.
	for _, prefix := range []string{paths.TenantPrefix, paths.LegacyPrefix} {
		if prefix == "" || prefix == "/" {
			continue
		}
		r.Route(prefix, func(r chi.Router) {
			use(r, g.Authenticate)
			use(r, g.TenantRouter)

			r.Get("/whoami", h.WhoAmI)
			r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusNotFound, "not found", "not_found")
			})
		})
	}
}

func use(r chi.Router, mw func(http.Handler) http.Handler) {
	if mw != nil {
		r.Use(mw)
	}
}
