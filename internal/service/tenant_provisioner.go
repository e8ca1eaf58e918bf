package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
)

// ActivationMailer queues activation mail. Delivery is best-effort.
type ActivationMailer interface {
	EnqueueActivation(ctx context.Context, p messagequeue.ActivationMailPayload) error
}

// ProvisionResult describes what Provision did. Linked is false when the
// payment was already linked, by an earlier call or a concurrent delivery.
// Token is nil unless this call linked the payment and issuing succeeded.
type ProvisionResult struct {
	Tenant  *tenant.Tenant
	Token   *activation.Token
	Created bool
	Linked  bool
}

// TenantProvisioner turns a captured payment into exactly one tenant.
type TenantProvisioner struct {
	tenants   database.TenantStore
	payments  database.PaymentStore
	tokens    *ActivationTokenService
	mail      ActivationMailer
	signupTTL time.Duration
	metrics   *tfotel.Metrics
	now       func() time.Time
}

// NewTenantProvisioner creates a TenantProvisioner.
func NewTenantProvisioner(
	tenants database.TenantStore,
	payments database.PaymentStore,
	tokens *ActivationTokenService,
	mail ActivationMailer,
	signupTTL time.Duration,
	metrics *tfotel.Metrics,
) *TenantProvisioner {
	return &TenantProvisioner{
		tenants:   tenants,
		payments:  payments,
		tokens:    tokens,
		mail:      mail,
		signupTTL: signupTTL,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Provision creates the tenant for rec, links rec to it and issues the first
// signup token. Re-running it for a linked payment is a no-op.
func (p *TenantProvisioner) Provision(ctx context.Context, rec *payment.Record) (*ProvisionResult, error) {
	ctx, span := tfotel.StartProvisionSpan(ctx, rec.OrderID)
	defer span.End()

	if rec.Linked() {
		t, err := p.tenants.GetTenant(ctx, rec.TenantID)
		if err != nil {
			return nil, fmt.Errorf("get linked tenant %s: %w", rec.TenantID, err)
		}
		return &ProvisionResult{Tenant: t}, nil
	}

	t, created, err := p.createTenant(ctx, rec)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := p.payments.LinkPaymentTenant(ctx, rec.OrderID, t.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			slog.Warn("payment linked by a concurrent delivery", "order_id", rec.OrderID, "tenant_id", t.ID)
			return &ProvisionResult{Tenant: t, Created: created}, nil
		}
		slog.Error("link payment to tenant failed, tenant stays orphaned until redelivery or reconcile",
			"order_id", rec.OrderID, "tenant_id", t.ID, "error", err)
		return nil, fmt.Errorf("link payment %s: %w", rec.OrderID, err)
	}
	rec.TenantID = t.ID

	if created {
		p.metrics.TenantProvisioned(ctx, string(t.Plan))
	}
	slog.Info("tenant provisioned", "tenant_id", t.ID, "slug", t.Slug, "order_id", rec.OrderID, "adopted", !created)

	res := &ProvisionResult{Tenant: t, Created: created, Linked: true}
	res.Token = p.issueAndMail(ctx, t, rec)
	return res, nil
}

// createTenant inserts the tenant for rec. If an earlier attempt already
// created it, that tenant is adopted and created is false.
func (p *TenantProvisioner) createTenant(ctx context.Context, rec *payment.Record) (*tenant.Tenant, bool, error) {
	now := p.now()
	name := rec.Notes.TenantName
	base := tenant.Slugify(name)
	if name == "" {
		name = base
	}

	t := &tenant.Tenant{
		ID:                uuid.NewString(),
		Name:              name,
		Slug:              base,
		Plan:              rec.Plan,
		Status:            tenant.StatusActive,
		Cycle:             rec.Cycle,
		SubscriptionStart: now,
		SubscriptionEnd:   rec.Cycle.SubscriptionEnd(now),
		OriginOrderID:     rec.OrderID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := p.tenants.CreateTenant(ctx, t)
	if errors.Is(err, domain.ErrSlugTaken) {
		t.Slug = tenant.WithSuffix(base, now)
		err = p.tenants.CreateTenant(ctx, t)
		if errors.Is(err, domain.ErrSlugTaken) {
			// A concurrent delivery may own the suffixed slug as well.
			if existing, getErr := p.tenants.GetTenantByOriginOrder(ctx, rec.OrderID); getErr == nil {
				return existing, false, nil
			}
			slog.Error("slug exhausted, operator action required", "order_id", rec.OrderID, "slug", t.Slug)
			return nil, false, fmt.Errorf("%w: %s", domain.ErrSlugExhausted, base)
		}
	}
	if errors.Is(err, domain.ErrConflict) {
		existing, getErr := p.tenants.GetTenantByOriginOrder(ctx, rec.OrderID)
		if getErr != nil {
			return nil, false, fmt.Errorf("get tenant for order %s: %w", rec.OrderID, getErr)
		}
		slog.Info("adopting tenant from earlier attempt", "order_id", rec.OrderID, "tenant_id", existing.ID)
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create tenant: %w", err)
	}
	return t, true, nil
}

// issueAndMail never fails provisioning: the tenant is linked at this point
// and the resend path recovers a missing token or mail.
func (p *TenantProvisioner) issueAndMail(ctx context.Context, t *tenant.Tenant, rec *payment.Record) *activation.Token {
	email := rec.Notes.AdminEmail
	tok, err := p.tokens.Issue(ctx, t.ID, email, activation.TypeSignup, p.signupTTL, map[string]string{
		"plan":          string(rec.Plan),
		"billing_cycle": string(rec.Cycle),
		"tenant_name":   t.Name,
	})
	if err != nil {
		slog.Error("issue signup token failed", "tenant_id", t.ID, "error", err)
		return nil
	}

	if p.mail != nil {
		err := p.mail.EnqueueActivation(ctx, messagequeue.ActivationMailPayload{
			TenantID:   t.ID,
			TenantName: t.Name,
			Email:      tok.Email,
			Token:      tok.Value,
			ExpiresAt:  tok.ExpiresAt,
			Reason:     messagequeue.ReasonProvisioned,
		})
		if err != nil {
			slog.Warn("enqueue activation mail failed", "tenant_id", t.ID, "error", err)
		}
	}
	return tok
}

// Reconcile finishes captured payments that never got linked to a tenant. It
// returns how many payments it linked.
func (p *TenantProvisioner) Reconcile(ctx context.Context, limit int) (int, error) {
	recs, err := p.payments.ListUnlinkedCapturedPayments(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unlinked payments: %w", err)
	}

	var (
		linked int
		errs   []error
	)
	for i := range recs {
		rec := &recs[i]
		if err := ctx.Err(); err != nil {
			return linked, err
		}
		res, err := p.Provision(ctx, rec)
		if err != nil {
			slog.Error("reconcile payment failed", "order_id", rec.OrderID, "error", err)
			errs = append(errs, fmt.Errorf("order %s: %w", rec.OrderID, err))
			continue
		}
		if res.Linked {
			linked++
		}
	}
	return linked, errors.Join(errs...)
}
