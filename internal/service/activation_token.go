package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	tfotel "github.com/Strob0t/TenantForge/internal/adapter/otel"
	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/port/database"
)

// ActivationTokenService issues, verifies and consumes single-use activation
// tokens.
type ActivationTokenService struct {
	store     database.TokenStore
	metrics   *tfotel.Metrics
	resendTTL time.Duration
	now       func() time.Time
}

// NewActivationTokenService creates an ActivationTokenService. resendTTL is the
// lifetime of tokens minted by Resend.
func NewActivationTokenService(store database.TokenStore, resendTTL time.Duration, metrics *tfotel.Metrics) *ActivationTokenService {
	return &ActivationTokenService{
		store:     store,
		metrics:   metrics,
		resendTTL: resendTTL,
		now:       time.Now,
	}
}

// Issue stores and returns a fresh token bound to tenantID and email.
func (s *ActivationTokenService) Issue(ctx context.Context, tenantID, email string, typ activation.Type, ttl time.Duration, metadata map[string]string) (*activation.Token, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", domain.ErrInvalidRequest)
	}

	value, err := activation.NewValue()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	tok := &activation.Token{
		Value:     value,
		Type:      typ,
		Email:     activation.NormalizeEmail(email),
		TenantID:  tenantID,
		ExpiresAt: now.Add(ttl),
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := s.store.CreateToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	s.metrics.TokenIssued(ctx, string(typ))
	return tok, nil
}

// Lookup returns the token with the given value and type without checking its
// state.
func (s *ActivationTokenService) Lookup(ctx context.Context, value string, typ activation.Type) (*activation.Token, error) {
	if value == "" {
		return nil, domain.ErrTokenNotFound
	}
	tok, err := s.store.GetToken(ctx, value, typ)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return tok, nil
}

// Verify checks that the token exists for typ and email, is not expired and is
// not consumed, in that order.
func (s *ActivationTokenService) Verify(ctx context.Context, value string, typ activation.Type, email string) (*activation.Grant, error) {
	tok, err := s.Lookup(ctx, value, typ)
	if err != nil {
		return nil, err
	}
	if tok.Email != activation.NormalizeEmail(email) {
		return nil, domain.ErrTokenNotFound
	}
	if tok.Expired(s.now()) {
		return nil, domain.ErrTokenExpired
	}
	if tok.Consumed() {
		return nil, domain.ErrTokenAlreadyUsed
	}
	return &activation.Grant{
		TenantID: tok.TenantID,
		Email:    tok.Email,
		Metadata: tok.Metadata,
	}, nil
}

// Consume binds the token to identityID. Exactly one concurrent caller wins;
// the rest get domain.ErrTokenAlreadyUsed.
func (s *ActivationTokenService) Consume(ctx context.Context, value, identityID string) error {
	if err := s.store.ConsumeToken(ctx, value, identityID, s.now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrTokenNotFound
		}
		return err
	}
	return nil
}

// Resend returns a still-valid pending token for tenantID and email unchanged,
// or issues a new one with the resend lifetime.
func (s *ActivationTokenService) Resend(ctx context.Context, tenantID, email string, metadata map[string]string) (*activation.Token, error) {
	email = activation.NormalizeEmail(email)
	tok, err := s.store.FindPendingToken(ctx, tenantID, email, activation.TypeSignup, s.now())
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find pending token: %w", err)
	}
	return s.Issue(ctx, tenantID, email, activation.TypeSignup, s.resendTTL, metadata)
}
