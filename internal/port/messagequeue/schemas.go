package messagequeue

import "time"

// Activation mail reasons.
const (
	ReasonProvisioned = "provisioned"
	ReasonResend      = "resend"
)

// ActivationMailPayload is the schema for mail.activation messages.
type ActivationMailPayload struct {
	TenantID   string    `json:"tenant_id"`
	TenantName string    `json:"tenant_name"`
	Email      string    `json:"email"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Reason     string    `json:"reason"`
}
