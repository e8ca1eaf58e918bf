package http

import (
	"net/http"

	"github.com/Strob0t/TenantForge/internal/domain/activation"
)

// VerifyActivation handles POST /api/activation/verify
func (h *Handlers) VerifyActivation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[activation.VerifyRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required", "invalid_request")
		return
	}

	resp, err := h.Activator.Preview(r.Context(), req.Token)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompleteActivation handles POST /api/activation/complete
func (h *Handlers) CompleteActivation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[activation.CompleteRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	ident, err := h.Activator.Complete(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, activation.CompleteResponse{IdentityID: ident.ID})
}

// ResendActivation handles POST /api/activation/resend
func (h *Handlers) ResendActivation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[activation.ResendRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	sent, err := h.Resender.Resend(r.Context(), req.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activation.ResendResponse{Sent: sent})
}
