// Package membership defines the identity-to-tenant relation and the per-tenant
// usage counters seeded when a tenant is activated.
package membership

import (
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/billing"
)

// Role is the permission level of an identity inside a tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleClient Role = "client"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleClient:
		return true
	}
	return false
}

// Status of a membership. Only active memberships classify a caller.
type Status string

const (
	StatusActive    Status = "active"
	StatusInvited   Status = "invited"
	StatusSuspended Status = "suspended"
)

// Membership binds an identity to a tenant.
type Membership struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	IdentityID string    `json:"identity_id"`
	Role       Role      `json:"role"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageLedger holds per-tenant counters.
type UsageLedger struct {
	TenantID     string       `json:"tenant_id"`
	Plan         billing.Plan `json:"plan"`
	MemberCount  int          `json:"member_count"`
	ProjectCount int          `json:"project_count"`
	StorageBytes int64        `json:"storage_bytes"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// InitialLedger is the ledger of a tenant whose first admin just activated.
func InitialLedger(tenantID string, plan billing.Plan) UsageLedger {
	return UsageLedger{
		TenantID:    tenantID,
		Plan:        plan,
		MemberCount: 1,
	}
}
