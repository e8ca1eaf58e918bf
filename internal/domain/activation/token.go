// Package activation defines single-use, time-boxed activation credentials and
// the request shapes used to redeem them.
package activation

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Type scopes what a token may authorize.
type Type string

// TypeSignup authorizes creating the first identity of a tenant.
const TypeSignup Type = "signup"

// TokenBytes is the entropy of a token value (256 bits).
const TokenBytes = 32

// MinPasswordLength is enforced server-side on activation.
const MinPasswordLength = 8

// MaxPasswordLength is the longest password bcrypt accepts, in bytes.
const MaxPasswordLength = 72

// Token is a stored activation credential.
type Token struct {
	Value      string            `json:"-"`
	Type       Type              `json:"type"`
	Email      string            `json:"email"`
	TenantID   string            `json:"tenant_id"`
	ExpiresAt  time.Time         `json:"expires_at"`
	ConsumedAt *time.Time        `json:"consumed_at,omitempty"`
	ConsumedBy string            `json:"consumed_by,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Consumed reports whether the token has already authorized an activation.
func (t *Token) Consumed() bool {
	return t.ConsumedAt != nil
}

// Grant is what a successful verification hands to the activator.
type Grant struct {
	TenantID string
	Email    string
	Metadata map[string]string
}

// NewValue returns a hex-encoded random token value.
func NewValue() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NormalizeEmail is applied to every email bound to or compared with a token.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerifyRequest is the input of the verify endpoint.
type VerifyRequest struct {
	Token string `json:"token"`
}

// VerifyResponse tells the activation page who the link is for.
type VerifyResponse struct {
	Email      string `json:"email"`
	TenantName string `json:"tenantName"`
}

// CompleteRequest is the input of the complete endpoint.
type CompleteRequest struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the CompleteRequest has all required fields.
func (r *CompleteRequest) Validate() error {
	if r.Token == "" {
		return errors.New("token is required")
	}
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("invalid email format")
	}
	if strings.TrimSpace(r.FullName) == "" {
		return errors.New("fullName is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	if len(r.Password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(r.Password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// CompleteResponse returns the created identity.
type CompleteResponse struct {
	IdentityID string `json:"identityId"`
}

// ResendRequest asks for a fresh activation link.
type ResendRequest struct {
	Email string `json:"email"`
}

// ResendResponse never reveals more than whether a mail was queued.
type ResendResponse struct {
	Sent bool `json:"sent"`
}
