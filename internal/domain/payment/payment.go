// Package payment defines the payment record lifecycle, intent requests and the
// inbound processor event model.
package payment

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/billing"
)

// Status is the settlement state of a payment record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusFailed     Status = "failed"
)

// rank orders statuses so redelivered events never move a record backwards.
var rank = map[Status]int{
	StatusPending:    0,
	StatusFailed:     1,
	StatusAuthorized: 2,
	StatusCaptured:   3,
}

// CanTransition reports whether a record in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	if s == StatusCaptured {
		return false
	}
	return rank[next] > rank[s]
}

// Notes carries the prospective tenant data. No tenant exists at intent time.
type Notes struct {
	TenantName string `json:"tenant_name"`
	AdminEmail string `json:"admin_email"`
}

// Record is a payment opened by the registrar. OrderID is the idempotency key.
type Record struct {
	ID                string        `json:"id"`
	OrderID           string        `json:"order_id"`
	Receipt           string        `json:"receipt"`
	Plan              billing.Plan  `json:"plan"`
	Cycle             billing.Cycle `json:"billing_cycle"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Status            Status        `json:"status"`
	TenantID          string        `json:"tenant_id,omitempty"`
	ExternalPaymentID string        `json:"external_payment_id,omitempty"`
	Notes             Notes         `json:"notes"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Linked reports whether the record is already bound to a tenant.
func (r *Record) Linked() bool {
	return r.TenantID != ""
}

// StatusUpdate is applied by the verifier when an event is accepted.
type StatusUpdate struct {
	Status            Status
	ExternalPaymentID string
	CompletedAt       time.Time
}

// IntentRequest is the caller input for opening a payment intent.
type IntentRequest struct {
	TenantName   string        `json:"tenantName"`
	AdminEmail   string        `json:"adminEmail"`
	Plan         billing.Plan  `json:"plan"`
	BillingCycle billing.Cycle `json:"billingCycle"`
}

// Validate checks presence and enumerations. Errors are plain messages; callers
// wrap them with domain.ErrInvalidRequest.
func (r *IntentRequest) Validate() error {
	r.TenantName = strings.TrimSpace(r.TenantName)
	r.AdminEmail = strings.TrimSpace(r.AdminEmail)

	if r.TenantName == "" {
		return errors.New("tenantName is required")
	}
	if len(r.TenantName) > 200 {
		return errors.New("tenantName must be at most 200 characters")
	}
	if r.AdminEmail == "" {
		return errors.New("adminEmail is required")
	}
	if _, err := mail.ParseAddress(r.AdminEmail); err != nil {
		return errors.New("invalid adminEmail format")
	}
	if r.Plan == "" {
		return errors.New("plan is required")
	}
	if !r.Plan.Valid() {
		return errors.New("invalid plan: must be free, standard, or premium")
	}
	if r.BillingCycle == "" {
		return errors.New("billingCycle is required")
	}
	if !r.BillingCycle.Valid() {
		return errors.New("invalid billingCycle: must be monthly or yearly")
	}
	return nil
}

// Intent is returned to the caller after an order was opened upstream.
type Intent struct {
	OrderID      string        `json:"orderId"`
	Amount       int64         `json:"amount"`
	Currency     string        `json:"currency"`
	Plan         billing.Plan  `json:"plan"`
	BillingCycle billing.Cycle `json:"billingCycle"`
	KeyID        string        `json:"keyId,omitempty"`
}

// OrderRequest is sent to the payment processor.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the processor's handle for an opened order.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// NewReceipt returns a globally unique receipt id: a millisecond timestamp plus
// a random suffix. Processors cap receipts at 40 characters.
func NewReceipt(now time.Time) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "rcpt_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + hex.EncodeToString(b)
}
