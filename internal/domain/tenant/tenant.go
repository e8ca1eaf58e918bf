// Package tenant defines the tenant (organization) domain model.
package tenant

import (
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/billing"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Tenant represents an isolated customer workspace.
type Tenant struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Slug              string        `json:"slug"`
	Plan              billing.Plan  `json:"plan"`
	Status            Status        `json:"status"`
	Cycle             billing.Cycle `json:"billing_cycle"`
	SubscriptionStart time.Time     `json:"subscription_start"`
	SubscriptionEnd   time.Time     `json:"subscription_end"`
	OriginOrderID     string        `json:"origin_order_id,omitempty"` // order the tenant was provisioned from
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
