package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/identity"
)

const identityColumns = `id, email, full_name, password_hash, email_confirmed, created_at, updated_at`

func scanIdentity(row scannable) (identity.Identity, error) {
	var i identity.Identity
	err := row.Scan(&i.ID, &i.Email, &i.FullName, &i.PasswordHash, &i.EmailConfirmed, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func (s *Store) CreateIdentity(ctx context.Context, i *identity.Identity) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (id, email, full_name, password_hash, email_confirmed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), COALESCE($7, now()))
		 RETURNING created_at, updated_at`,
		i.ID, i.Email, i.FullName, i.PasswordHash, i.EmailConfirmed, nullTime(i.CreatedAt), nullTime(i.UpdatedAt),
	).Scan(&i.CreatedAt, &i.UpdatedAt)
	if uniqueConstraint(err) != "" {
		return fmt.Errorf("create identity: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	i, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get identity %s", id)
	}
	return &i, nil
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	i, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, notFoundWrap(err, "get identity by email")
	}
	return &i, nil
}

// DeleteIdentity removes the identity; memberships cascade.
func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete identity %s", id)
}
