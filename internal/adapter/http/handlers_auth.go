package http

import (
	"log/slog"
	"net/http"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/identity"
)

// Login handles POST /api/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[identity.LoginRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	resp, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		if domain.Kind(err) == "unauthorized" {
			slog.DebugContext(r.Context(), "login failed", "email", req.Email)
		}
		writeDomainError(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(resp.Token, resp.ExpiresIn))
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}
