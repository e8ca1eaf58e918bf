package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/payment"
)

const paymentColumns = `id, order_id, receipt, plan, billing_cycle, amount, currency, status,
	tenant_id, external_payment_id, tenant_name, admin_email, completed_at, created_at, updated_at`

func scanPayment(row scannable) (payment.Record, error) {
	var r payment.Record
	var tenantID, extID *string
	err := row.Scan(&r.ID, &r.OrderID, &r.Receipt, &r.Plan, &r.Cycle, &r.Amount, &r.Currency, &r.Status,
		&tenantID, &extID, &r.Notes.TenantName, &r.Notes.AdminEmail, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	r.TenantID = deref(tenantID)
	r.ExternalPaymentID = deref(extID)
	return r, err
}

func (s *Store) CreatePayment(ctx context.Context, r *payment.Record) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO payments (id, order_id, receipt, plan, billing_cycle, amount, currency, status,
			tenant_name, admin_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()), COALESCE($12, now()))
		 RETURNING created_at, updated_at`,
		r.ID, r.OrderID, r.Receipt, r.Plan, r.Cycle, r.Amount, r.Currency, r.Status,
		r.Notes.TenantName, r.Notes.AdminEmail, nullTime(r.CreatedAt), nullTime(r.UpdatedAt),
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if uniqueConstraint(err) != "" {
		return fmt.Errorf("create payment %s: %w", r.OrderID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create payment %s: %w", r.OrderID, err)
	}
	return nil
}

func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*payment.Record, error) {
	r, err := scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
	if err != nil {
		return nil, notFoundWrap(err, "get payment %s", orderID)
	}
	return &r, nil
}

// statusRank mirrors payment.Status.CanTransition in SQL so that the guard
// holds under concurrent deliveries, not just in the caller's snapshot.
const statusRank = `CASE %s WHEN 'pending' THEN 0 WHEN 'failed' THEN 1 WHEN 'authorized' THEN 2 ELSE 3 END`

// UpdatePaymentStatus only moves status forward. A stale update (e.g. a late
// authorized after captured) matches no row and is reported as ErrConflict.
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID string, u payment.StatusUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payments
		 SET status = $2, external_payment_id = COALESCE($3, external_payment_id),
		     completed_at = $4, updated_at = now()
		 WHERE order_id = $1 AND status <> 'captured'
		   AND `+fmt.Sprintf(statusRank, "status")+` < `+fmt.Sprintf(statusRank, "$2::text"),
		orderID, u.Status, nullIfEmpty(u.ExternalPaymentID), nullTime(u.CompletedAt))
	if err != nil {
		return fmt.Errorf("update payment %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetPaymentByOrderID(ctx, orderID); err != nil {
			return err
		}
		return fmt.Errorf("update payment %s to %s: %w", orderID, u.Status, domain.ErrConflict)
	}
	return nil
}

func (s *Store) LinkPaymentTenant(ctx context.Context, orderID, tenantID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payments SET tenant_id = $2, updated_at = now()
		 WHERE order_id = $1 AND tenant_id IS NULL`, orderID, tenantID)
	if uniqueConstraint(err) != "" {
		// Tenant already backs another payment.
		return fmt.Errorf("link payment %s: %w", orderID, domain.ErrConflict)
	}
	if err := execExpectOne(tag, err, "link payment %s", orderID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		// Either the order is unknown or it was linked first by someone else.
		if _, getErr := s.GetPaymentByOrderID(ctx, orderID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("link payment %s: %w", orderID, domain.ErrConflict)
	}
	return nil
}

func (s *Store) FindCapturedPaymentByEmail(ctx context.Context, email string) (*payment.Record, error) {
	r, err := scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'captured' AND lower(admin_email) = lower($1)
		 ORDER BY created_at DESC LIMIT 1`, email))
	if err != nil {
		return nil, notFoundWrap(err, "find captured payment")
	}
	return &r, nil
}

func (s *Store) ListUnlinkedCapturedPayments(ctx context.Context, limit int) ([]payment.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'captured' AND tenant_id IS NULL
		 ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unlinked payments: %w", err)
	}
	defer rows.Close()

	var out []payment.Record
	for rows.Next() {
		r, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
