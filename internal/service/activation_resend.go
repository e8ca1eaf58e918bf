package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
)

// ActivationResender re-sends the activation link for a paid, not yet
// activated tenant.
type ActivationResender struct {
	payments    database.PaymentStore
	tenants     database.TenantStore
	memberships database.MembershipStore
	tokens      *ActivationTokenService
	mail        ActivationMailer
}

// NewActivationResender creates an ActivationResender.
func NewActivationResender(
	payments database.PaymentStore,
	tenants database.TenantStore,
	memberships database.MembershipStore,
	tokens *ActivationTokenService,
	mail ActivationMailer,
) *ActivationResender {
	return &ActivationResender{
		payments:    payments,
		tenants:     tenants,
		memberships: memberships,
		tokens:      tokens,
		mail:        mail,
	}
}

// Resend queues the activation mail for email. It returns domain.ErrNotFound
// for every case that would reveal whether the email is known. sent is false
// when the token exists but queuing the mail failed.
func (r *ActivationResender) Resend(ctx context.Context, email string) (sent bool, err error) {
	email = activation.NormalizeEmail(email)
	if email == "" {
		return false, fmt.Errorf("%w: email is required", domain.ErrInvalidRequest)
	}

	rec, err := r.payments.FindCapturedPaymentByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("find payment: %w", err)
	}
	if !rec.Linked() {
		slog.Info("resend requested before provisioning finished", "order_id", rec.OrderID)
		return false, domain.ErrNotFound
	}

	n, err := r.memberships.CountMemberships(ctx, rec.TenantID)
	if err != nil {
		return false, fmt.Errorf("count memberships: %w", err)
	}
	if n > 0 {
		return false, domain.ErrNotFound
	}

	t, err := r.tenants.GetTenant(ctx, rec.TenantID)
	if err != nil {
		return false, fmt.Errorf("get tenant %s: %w", rec.TenantID, err)
	}

	tok, err := r.tokens.Resend(ctx, t.ID, email, map[string]string{
		"plan":          string(t.Plan),
		"billing_cycle": string(t.Cycle),
		"tenant_name":   t.Name,
	})
	if err != nil {
		return false, err
	}

	if r.mail == nil {
		return false, nil
	}
	err = r.mail.EnqueueActivation(ctx, messagequeue.ActivationMailPayload{
		TenantID:   t.ID,
		TenantName: t.Name,
		Email:      tok.Email,
		Token:      tok.Value,
		ExpiresAt:  tok.ExpiresAt,
		Reason:     messagequeue.ReasonResend,
	})
	if err != nil {
		slog.Warn("enqueue resend mail failed", "tenant_id", t.ID, "error", err)
		return false, nil
	}
	return true, nil
}
