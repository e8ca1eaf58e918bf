package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/domain/billing"
	"github.com/Strob0t/TenantForge/internal/domain/identity"
	"github.com/Strob0t/TenantForge/internal/domain/membership"
	"github.com/Strob0t/TenantForge/internal/port/database"
)

// AccountActivator redeems a signup token into the tenant's first account.
type AccountActivator struct {
	tokens      *ActivationTokenService
	tenants     database.TenantStore
	identities  database.IdentityStore
	memberships database.MembershipStore
	bcryptCost  int
	metrics     *tfotel.Metrics
	now         func() time.Time
}

// NewAccountActivator creates an AccountActivator.
func NewAccountActivator(
	tokens *ActivationTokenService,
	tenants database.TenantStore,
	identities database.IdentityStore,
	memberships database.MembershipStore,
	bcryptCost int,
	metrics *tfotel.Metrics,
) *AccountActivator {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AccountActivator{
		tokens:      tokens,
		tenants:     tenants,
		identities:  identities,
		memberships: memberships,
		bcryptCost:  bcryptCost,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Preview checks a signup token without an email and tells the activation page
// who it is for.
func (a *AccountActivator) Preview(ctx context.Context, value string) (*activation.VerifyResponse, error) {
	tok, err := a.tokens.Lookup(ctx, value, activation.TypeSignup)
	if err != nil {
		return nil, err
	}
	if tok.Expired(a.now()) {
		return nil, domain.ErrTokenExpired
	}
	if tok.Consumed() {
		return nil, domain.ErrTokenAlreadyUsed
	}
	t, err := a.tenants.GetTenant(ctx, tok.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant %s: %w", tok.TenantID, err)
	}
	return &activation.VerifyResponse{Email: tok.Email, TenantName: t.Name}, nil
}

// Complete verifies the token, creates the identity, its admin membership and
// the tenant's usage ledger, then consumes the token. If anything fails after
// the identity exists, the identity is deleted again.
func (a *AccountActivator) Complete(ctx context.Context, req activation.CompleteRequest) (*identity.Identity, error) {
	ident, err := a.complete(ctx, req)
	if err != nil {
		a.metrics.Activation(ctx, "failed")
		return nil, err
	}
	a.metrics.Activation(ctx, "completed")
	return ident, nil
}

func (a *AccountActivator) complete(ctx context.Context, req activation.CompleteRequest) (*identity.Identity, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	grant, err := a.tokens.Verify(ctx, req.Token, activation.TypeSignup, req.Email)
	if err != nil {
		return nil, err
	}

	ctx, span := tfotel.StartActivationSpan(ctx, grant.TenantID)
	defer span.End()

	t, err := a.tenants.GetTenant(ctx, grant.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant %s: %w", grant.TenantID, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := a.now()
	ident := &identity.Identity{
		ID:             uuid.NewString(),
		Email:          grant.Email,
		FullName:       strings.TrimSpace(req.FullName),
		PasswordHash:   string(hash),
		EmailConfirmed: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.identities.CreateIdentity(ctx, ident); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: an account with this email already exists", domain.ErrConflict)
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	if err := a.attach(ctx, ident, t.ID, req.Token, membership.InitialLedger(t.ID, t.Plan)); err != nil {
		span.RecordError(err)
		a.rollback(ctx, ident.ID, t.ID, t.Plan, err)
		return nil, err
	}

	slog.Info("account activated", "tenant_id", t.ID, "identity_id", ident.ID)
	return ident, nil
}

func (a *AccountActivator) attach(ctx context.Context, ident *identity.Identity, tenantID, token string, ledger membership.UsageLedger) error {
	m := &membership.Membership{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		IdentityID: ident.ID,
		Role:       membership.RoleAdmin,
		Status:     membership.StatusActive,
		CreatedAt:  a.now(),
	}
	if err := a.memberships.CreateMembership(ctx, m); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}

	ledger.UpdatedAt = a.now()
	if err := a.memberships.SeedUsageLedger(ctx, &ledger); err != nil {
		return fmt.Errorf("seed usage ledger: %w", err)
	}

	if err := a.tokens.Consume(ctx, token, ident.ID); err != nil {
		return err
	}
	return nil
}

// rollback deletes a half-activated identity. Memberships cascade with it,
// and the usage ledger is reseeded from the memberships that remain.
// It outlives a cancelled request so the compensation still runs.
func (a *AccountActivator) rollback(ctx context.Context, identityID, tenantID string, plan billing.Plan, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := a.identities.DeleteIdentity(ctx, identityID); err != nil {
		slog.Error("activation rollback failed, identity left without membership",
			"identity_id", identityID, "cause", cause, "error", err)
		return
	}
	slog.Warn("activation rolled back", "identity_id", identityID, "cause", cause)

	n, err := a.memberships.CountMemberships(ctx, tenantID)
	if err != nil {
		slog.Error("activation rollback: count memberships", "tenant_id", tenantID, "error", err)
		return
	}
	ledger := membership.InitialLedger(tenantID, plan)
	ledger.MemberCount = n
	ledger.UpdatedAt = a.now()
	if err := a.memberships.SeedUsageLedger(ctx, &ledger); err != nil {
		slog.Error("activation rollback: reset usage ledger", "tenant_id", tenantID, "error", err)
	}
}
