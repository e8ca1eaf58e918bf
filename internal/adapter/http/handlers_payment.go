package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Strob0t/TenantForge/internal/domain/payment"
)

// signatureHeader carries the processor's HMAC of the raw webhook body.
const signatureHeader = "X-Razorpay-Signature"

// CreateIntent handles POST /api/payments/intents
func (h *Handlers) CreateIntent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[payment.IntentRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	intent, err := h.Intents.CreateIntent(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

// PaymentWebhook handles POST /api/webhooks/payments. The body is read raw
// because the signature covers the exact bytes the processor sent.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_request")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable request body", "invalid_request")
		return
	}

	outcome, err := h.Events.Handle(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		slog.WarnContext(r.Context(), "payment webhook rejected", "error", err)
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}
