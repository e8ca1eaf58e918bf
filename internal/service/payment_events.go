package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
	"github.com/Strob0t/TenantForge/internal/port/cache"
	"github.com/Strob0t/TenantForge/internal/port/database"
)

// EventOutcome tells the webhook caller what happened to an accepted event.
type EventOutcome string

const (
	OutcomeProcessed     EventOutcome = "processed"
	OutcomeIgnored       EventOutcome = "ignored"
	OutcomeDuplicate     EventOutcome = "duplicate"
	OutcomeAlreadyLinked EventOutcome = "already_linked"
)

// PaymentEventVerifier authenticates processor webhooks and applies them to
// payment records. Captured payments are handed to the TenantProvisioner.
type PaymentEventVerifier struct {
	payments    database.PaymentStore
	provisioner *TenantProvisioner
	dedupe      cache.Cache
	secret      func() string
	dedupeTTL   time.Duration
	metrics     *tfotel.Metrics
	now         func() time.Time
}

// NewPaymentEventVerifier creates a PaymentEventVerifier. secret is read on
// every delivery so a reloaded webhook secret takes effect immediately. dedupe
// may be nil.
func NewPaymentEventVerifier(
	payments database.PaymentStore,
	provisioner *TenantProvisioner,
	dedupe cache.Cache,
	secret func() string,
	dedupeTTL time.Duration,
	metrics *tfotel.Metrics,
) *PaymentEventVerifier {
	return &PaymentEventVerifier{
		payments:    payments,
		provisioner: provisioner,
		dedupe:      dedupe,
		secret:      secret,
		dedupeTTL:   dedupeTTL,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Handle verifies signature against the raw body and applies the event.
// Nothing is read or written before the signature and shape checks pass.
func (s *PaymentEventVerifier) Handle(ctx context.Context, body []byte, signature string) (EventOutcome, error) {
	if !payment.VerifySignature(body, signature, s.secret()) {
		slog.Warn("payment webhook signature mismatch", "security", "webhook_signature", "body_bytes", len(body))
		s.metrics.SignatureFailure(ctx)
		s.metrics.WebhookEvent(ctx, "rejected")
		return "", domain.ErrSignatureInvalid
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		s.metrics.WebhookEvent(ctx, "malformed")
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if !ev.Handled {
		slog.Debug("payment webhook ignored", "event", ev.Type)
		s.metrics.WebhookEvent(ctx, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	ctx, span := tfotel.StartWebhookSpan(ctx, string(ev.Type), ev.Payment.OrderID)
	defer span.End()

	outcome, err := s.apply(ctx, ev)
	if err != nil {
		span.RecordError(err)
		s.metrics.WebhookEvent(ctx, "failed")
		return "", err
	}
	s.metrics.WebhookEvent(ctx, string(outcome))
	return outcome, nil
}

func (s *PaymentEventVerifier) apply(ctx context.Context, ev *payment.Event) (EventOutcome, error) {
	key := ev.DedupKey()
	if s.seen(ctx, key) {
		return OutcomeDuplicate, nil
	}

	orderID := ev.Payment.OrderID
	rec, err := s.payments.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Error("payment event for unknown order",
				"alert", "payment_desync",
				"order_id", orderID,
				"payment_id", ev.Payment.ID,
				"event", ev.Type,
			)
			return "", fmt.Errorf("%w: order %s", domain.ErrPaymentRecordNotFound, orderID)
		}
		return "", fmt.Errorf("get payment %s: %w", orderID, err)
	}

	if rec.Linked() {
		slog.Info("payment event for provisioned order", "order_id", orderID, "tenant_id", rec.TenantID, "event", ev.Type)
		s.remember(ctx, key)
		return OutcomeAlreadyLinked, nil
	}

	if ev.Payment.Amount != 0 && ev.Payment.Amount != rec.Amount {
		slog.Warn("payment event amount differs from intent",
			"order_id", orderID, "event_amount", ev.Payment.Amount, "record_amount", rec.Amount)
	}

	next := ev.Status()
	if rec.Status.CanTransition(next) {
		upd := payment.StatusUpdate{
			Status:            next,
			ExternalPaymentID: ev.Payment.ID,
			CompletedAt:       s.now(),
		}
		err := s.payments.UpdatePaymentStatus(ctx, orderID, upd)
		switch {
		case err == nil:
			rec.Status = upd.Status
			rec.ExternalPaymentID = upd.ExternalPaymentID
			completed := upd.CompletedAt
			rec.CompletedAt = &completed
		case errors.Is(err, domain.ErrConflict):
			// A concurrent delivery moved the status first; continue from its state.
			if rec, err = s.payments.GetPaymentByOrderID(ctx, orderID); err != nil {
				return "", fmt.Errorf("reload payment %s: %w", orderID, err)
			}
			if rec.Linked() {
				s.remember(ctx, key)
				return OutcomeAlreadyLinked, nil
			}
		default:
			return "", fmt.Errorf("update payment %s: %w", orderID, err)
		}
	}

	if rec.Status == payment.StatusCaptured {
		if _, err := s.provisioner.Provision(ctx, rec); err != nil {
			return "", err
		}
	}

	s.remember(ctx, key)
	return OutcomeProcessed, nil
}

func (s *PaymentEventVerifier) seen(ctx context.Context, key string) bool {
	if s.dedupe == nil {
		return false
	}
	_, ok, err := s.dedupe.Get(ctx, key)
	if err != nil {
		slog.Warn("webhook dedupe lookup failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *PaymentEventVerifier) remember(ctx context.Context, key string) {
	if s.dedupe == nil {
		return
	}
	if err := s.dedupe.Set(ctx, key, []byte{1}, s.dedupeTTL); err != nil {
		slog.Warn("webhook dedupe store failed", "key", key, "error", err)
	}
}
