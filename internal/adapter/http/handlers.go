package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/domain/identity"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
	"github.com/Strob0t/TenantForge/internal/middleware"
	"github.com/Strob0t/TenantForge/internal/service"
)

// IntentCreator records a pending payment and opens the processor order.
type IntentCreator interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
}

// EventHandler verifies and applies a raw payment webhook.
type EventHandler interface {
	Handle(ctx context.Context, body []byte, signature string) (service.EventOutcome, error)
}

// Activator previews and completes first-account activation.
type Activator interface {
	Preview(ctx context.Context, token string) (*activation.VerifyResponse, error)
	Complete(ctx context.Context, req activation.CompleteRequest) (*identity.Identity, error)
}

// Resender queues another activation mail.
type Resender interface {
	Resend(ctx context.Context, email string) (bool, error)
}

// Authenticator exchanges credentials for a session token.
type Authenticator interface {
	Login(ctx context.Context, req identity.LoginRequest) (*identity.LoginResponse, error)
}

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports whether the message broker connection is up.
type ConnectionChecker interface {
	IsConnected() bool
}

// SessionCookie describes the cookie carrying the session token.
type SessionCookie struct {
	Name   string
	Secure bool
}

// Handlers holds the service dependencies for the HTTP API.
type Handlers struct {
	Intents   IntentCreator
	Events    EventHandler
	Activator Activator
	Resender  Resender
	Auth      Authenticator
	Store     Pinger
	Queue     ConnectionChecker
	Cookie    SessionCookie
	Version   string
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.Version})
}

type readiness struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	NATS     string `json:"nats"`
}

// Ready handles GET /health/ready
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := readiness{Status: "ok", Postgres: "ok", NATS: "ok"}
	if err := h.Store.Ping(ctx); err != nil {
		res.Status, res.Postgres = "degraded", "unreachable"
	}
	if h.Queue == nil || !h.Queue.IsConnected() {
		res.Status, res.NATS = "degraded", "disconnected"
	}

	status := http.StatusOK
	if res.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

type whoAmI struct {
	IdentityID string `json:"identityId"`
	Email      string `json:"email"`
	Class      string `json:"class"`
	TenantID   string `json:"tenantId,omitempty"`
}

// WhoAmI handles GET {tenant,legacy prefix}/whoami and reports the scope the
// tenant router resolved for the caller.
func (h *Handlers) WhoAmI(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "not signed in", "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, whoAmI{
		IdentityID: p.IdentityID,
		Email:      p.Email,
		Class:      middleware.ClassFromContext(r.Context()).String(),
		TenantID:   middleware.TenantIDFromContext(r.Context()),
	})
}
