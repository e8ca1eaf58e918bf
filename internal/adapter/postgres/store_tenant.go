package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/tenant"
)

const tenantColumns = `id, name, slug, plan, status, billing_cycle, subscription_start, subscription_end,
	origin_order_id, created_at, updated_at`

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	var origin *string
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Plan, &t.Status, &t.Cycle,
		&t.SubscriptionStart, &t.SubscriptionEnd, &origin, &t.CreatedAt, &t.UpdatedAt)
	t.OriginOrderID = deref(origin)
	return t, err
}

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (id, name, slug, plan, status, billing_cycle, subscription_start, subscription_end, origin_order_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Slug, t.Plan, t.Status, t.Cycle, t.SubscriptionStart, t.SubscriptionEnd, nullIfEmpty(t.OriginOrderID),
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	switch uniqueConstraint(err) {
	case "":
	case "tenants_slug_key":
		return fmt.Errorf("create tenant %s: %w", t.Slug, domain.ErrSlugTaken)
	default:
		return fmt.Errorf("create tenant for order %s: %w", t.OriginOrderID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create tenant %s: %w", t.Slug, err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

func (s *Store) GetTenantByOriginOrder(ctx context.Context, orderID string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE origin_order_id = $1`, orderID))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant for order %s", orderID)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
