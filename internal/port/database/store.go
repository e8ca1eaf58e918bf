// Package database defines the persistence ports (interfaces).
//
// Stores signal uniqueness violations with domain sentinels so services never
// depend on driver error codes.
package database

import (
	"context"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/domain/identity"
	"github.com/Strob0t/TenantForge/internal/domain/membership"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
)

// PaymentStore persists payment records keyed by external order id.
type PaymentStore interface {
	CreatePayment(ctx context.Context, r *payment.Record) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*payment.Record, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, u payment.StatusUpdate) error
	// LinkPaymentTenant sets the tenant reference only if none is set yet.
	// It returns domain.ErrConflict when another tenant is already linked.
	LinkPaymentTenant(ctx context.Context, orderID, tenantID string) error
	// FindCapturedPaymentByEmail returns the most recent captured payment whose
	// notes carry email.
	FindCapturedPaymentByEmail(ctx context.Context, email string) (*payment.Record, error)
	ListUnlinkedCapturedPayments(ctx context.Context, limit int) ([]payment.Record, error)
}

// TenantStore persists tenants.
type TenantStore interface {
	// CreateTenant returns domain.ErrSlugTaken on a slug collision and
	// domain.ErrConflict when a tenant already exists for the origin order.
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GetTenantByOriginOrder(ctx context.Context, orderID string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
}

// TokenStore persists activation tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, t *activation.Token) error
	GetToken(ctx context.Context, value string, typ activation.Type) (*activation.Token, error)
	// FindPendingToken returns an unconsumed token for tenant and email that is
	// still valid at now, or domain.ErrNotFound.
	FindPendingToken(ctx context.Context, tenantID, email string, typ activation.Type, now time.Time) (*activation.Token, error)
	// ConsumeToken marks the token consumed if and only if it is not consumed
	// yet. Losers get domain.ErrTokenAlreadyUsed.
	ConsumeToken(ctx context.Context, value, identityID string, at time.Time) error
}

// IdentityStore persists identities.
type IdentityStore interface {
	// CreateIdentity returns domain.ErrConflict when the email is taken.
	CreateIdentity(ctx context.Context, i *identity.Identity) error
	GetIdentity(ctx context.Context, id string) (*identity.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// MembershipStore persists memberships and usage ledgers.
type MembershipStore interface {
	CreateMembership(ctx context.Context, m *membership.Membership) error
	// GetActiveMembership returns the caller's active membership or
	// domain.ErrNotFound.
	GetActiveMembership(ctx context.Context, identityID string) (*membership.Membership, error)
	CountMemberships(ctx context.Context, tenantID string) (int, error)
	SeedUsageLedger(ctx context.Context, l *membership.UsageLedger) error
	GetUsageLedger(ctx context.Context, tenantID string) (*membership.UsageLedger, error)
}

// Store aggregates every persistence port. The PostgreSQL adapter implements it.
type Store interface {
	PaymentStore
	TenantStore
	TokenStore
	IdentityStore
	MembershipStore
	Ping(ctx context.Context) error
}
