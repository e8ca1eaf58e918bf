package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/membership"
)

func (s *Store) CreateMembership(ctx context.Context, m *membership.Membership) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO memberships (id, tenant_id, identity_id, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		 RETURNING created_at`,
		m.ID, m.TenantID, m.IdentityID, m.Role, m.Status, nullTime(m.CreatedAt),
	).Scan(&m.CreatedAt)
	if uniqueConstraint(err) != "" {
		return fmt.Errorf("create membership: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create membership for tenant %s: %w", m.TenantID, err)
	}
	return nil
}

// GetActiveMembership returns the oldest active membership. An identity
// normally belongs to a single tenant.
func (s *Store) GetActiveMembership(ctx context.Context, identityID string) (*membership.Membership, error) {
	var m membership.Membership
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, identity_id, role, status, created_at
		 FROM memberships WHERE identity_id = $1 AND status = 'active'
		 ORDER BY created_at ASC LIMIT 1`, identityID,
	).Scan(&m.ID, &m.TenantID, &m.IdentityID, &m.Role, &m.Status, &m.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get active membership for %s", identityID)
	}
	return &m, nil
}

func (s *Store) CountMemberships(ctx context.Context, tenantID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM memberships WHERE tenant_id = $1`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memberships for %s: %w", tenantID, err)
	}
	return n, nil
}

// SeedUsageLedger upserts so that a retried activation does not fail on an
// existing ledger row.
func (s *Store) SeedUsageLedger(ctx context.Context, l *membership.UsageLedger) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_ledgers (tenant_id, plan, member_count, project_count, storage_bytes, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		 ON CONFLICT (tenant_id) DO UPDATE
		 SET plan = EXCLUDED.plan, member_count = EXCLUDED.member_count, updated_at = EXCLUDED.updated_at`,
		l.TenantID, l.Plan, l.MemberCount, l.ProjectCount, l.StorageBytes, nullTime(l.UpdatedAt))
	if err != nil {
		return fmt.Errorf("seed usage ledger for %s: %w", l.TenantID, err)
	}
	return nil
}

func (s *Store) GetUsageLedger(ctx context.Context, tenantID string) (*membership.UsageLedger, error) {
	var l membership.UsageLedger
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, plan, member_count, project_count, storage_bytes, updated_at
		 FROM usage_ledgers WHERE tenant_id = $1`, tenantID,
	).Scan(&l.TenantID, &l.Plan, &l.MemberCount, &l.ProjectCount, &l.StorageBytes, &l.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get usage ledger for %s", tenantID)
	}
	return &l, nil
}
