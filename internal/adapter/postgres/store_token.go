package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
)

const tokenColumns = `value, type, email, tenant_id, expires_at, consumed_at, consumed_by, metadata, created_at`

func scanToken(row scannable) (activation.Token, error) {
	var t activation.Token
	var consumedBy *string
	var meta []byte
	if err := row.Scan(&t.Value, &t.Type, &t.Email, &t.TenantID, &t.ExpiresAt,
		&t.ConsumedAt, &consumedBy, &meta, &t.CreatedAt); err != nil {
		return t, err
	}
	t.ConsumedBy = deref(consumedBy)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return t, fmt.Errorf("decode token metadata: %w", err)
		}
	}
	return t, nil
}

func (s *Store) CreateToken(ctx context.Context, t *activation.Token) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal token metadata: %w", err)
	}
	if t.Metadata == nil {
		meta = []byte("{}")
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO activation_tokens (value, type, email, tenant_id, expires_at, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		 RETURNING created_at`,
		t.Value, t.Type, t.Email, t.TenantID, t.ExpiresAt, meta, nullTime(t.CreatedAt),
	).Scan(&t.CreatedAt)
	if uniqueConstraint(err) != "" {
		return fmt.Errorf("create token: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create token for tenant %s: %w", t.TenantID, err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, value string, typ activation.Type) (*activation.Token, error) {
	t, err := scanToken(s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM activation_tokens WHERE value = $1 AND type = $2`, value, typ))
	if err != nil {
		return nil, notFoundWrap(err, "get token")
	}
	return &t, nil
}

func (s *Store) FindPendingToken(ctx context.Context, tenantID, email string, typ activation.Type, now time.Time) (*activation.Token, error) {
	t, err := scanToken(s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM activation_tokens
		 WHERE tenant_id = $1 AND email = $2 AND type = $3 AND consumed_at IS NULL AND expires_at > $4
		 ORDER BY expires_at DESC LIMIT 1`, tenantID, email, typ, now))
	if err != nil {
		return nil, notFoundWrap(err, "find pending token for tenant %s", tenantID)
	}
	return &t, nil
}

// ConsumeToken is a compare-and-swap on consumed_at.
func (s *Store) ConsumeToken(ctx context.Context, value, identityID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE activation_tokens SET consumed_at = $3, consumed_by = $2
		 WHERE value = $1 AND consumed_at IS NULL`, value, identityID, at)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM activation_tokens WHERE value = $1)`, value).Scan(&exists); err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if !exists {
		return domain.ErrTokenNotFound
	}
	return domain.ErrTokenAlreadyUsed
}
