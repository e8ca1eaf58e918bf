package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/config"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/billing"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
	"github.com/Strob0t/TenantForge/internal/port/database"
	"github.com/Strob0t/TenantForge/internal/port/paymentgateway"
)

// PaymentRegistrar opens payment intents with the processor and records them
// as pending payments.
type PaymentRegistrar struct {
	gateway paymentgateway.Gateway
	store   database.PaymentStore
	cfg     *config.Payments
	metrics *tfotel.Metrics
	now     func() time.Time
}

// NewPaymentRegistrar creates a PaymentRegistrar.
func NewPaymentRegistrar(gateway paymentgateway.Gateway, store database.PaymentStore, cfg *config.Payments, metrics *tfotel.Metrics) *PaymentRegistrar {
	return &PaymentRegistrar{
		gateway: gateway,
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
	}
}

// CreateIntent validates req, prices it server-side, opens an order upstream
// and only then persists the pending payment.
func (s *PaymentRegistrar) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	amount, err := billing.Price(req.Plan, req.BillingCycle)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	currency := s.cfg.Currency
	if currency == "" {
		currency = billing.DefaultCurrency
	}
	receipt := payment.NewReceipt(s.now())

	order, err := s.createOrder(ctx, payment.OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"tenant_name":   req.TenantName,
			"admin_email":   req.AdminEmail,
			"plan":          string(req.Plan),
			"billing_cycle": string(req.BillingCycle),
		},
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &payment.Record{
		ID:       uuid.NewString(),
		OrderID:  order.ID,
		Receipt:  receipt,
		Plan:     req.Plan,
		Cycle:    req.BillingCycle,
		Amount:   amount,
		Currency: currency,
		Status:   payment.StatusPending,
		Notes: payment.Notes{
			TenantName: req.TenantName,
			AdminEmail: req.AdminEmail,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePayment(ctx, rec); err != nil {
		// The upstream order is left without a record. It can never settle into
		// a tenant, and the caller may retry with a fresh intent.
		slog.Error("persist payment after upstream order", "order_id", order.ID, "error", err)
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.metrics.IntentCreated(ctx, string(req.Plan))
	slog.Info("payment intent created", "order_id", order.ID, "plan", req.Plan, "cycle", req.BillingCycle, "amount", amount)

	return &payment.Intent{
		OrderID:      order.ID,
		Amount:       amount,
		Currency:     currency,
		Plan:         req.Plan,
		BillingCycle: req.BillingCycle,
		KeyID:        s.gateway.KeyID(),
	}, nil
}

func (s *PaymentRegistrar) createOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	if s.cfg.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		defer cancel()
	}

	ctx, span := tfotel.StartUpstreamSpan(ctx, "payments.create_order")
	defer span.End()

	start := time.Now()
	order, err := s.gateway.CreateOrder(ctx, req)
	s.metrics.UpstreamCall(ctx, "create_order", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: create order: %w", domain.ErrUpstreamUnavailable, err)
	}
	if order == nil || order.ID == "" {
		return nil, fmt.Errorf("%w: create order: %w", domain.ErrUpstreamUnavailable, errors.New("empty order id"))
	}
	return order, nil
}
