package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/TenantForge/internal/domain"
	"github.com/Strob0t/TenantForge/internal/domain/activation"
	"github.com/Strob0t/TenantForge/internal/domain/identity"
	"github.com/Strob0t/TenantForge/internal/port/database"
)

// SessionIssuer mints session tokens for an authenticated principal.
type SessionIssuer interface {
	Issue(p identity.Principal) (token string, ttl time.Duration, err error)
}

// AuthService handles password login.
type AuthService struct {
	identities database.IdentityStore
	sessions   SessionIssuer
}

// NewAuthService creates a new authentication service.
func NewAuthService(identities database.IdentityStore, sessions SessionIssuer) *AuthService {
	return &AuthService{identities: identities, sessions: sessions}
}

// Login checks the password and returns a session token.
func (s *AuthService) Login(ctx context.Context, req identity.LoginRequest) (*identity.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	u, err := s.identities.GetIdentityByEmail(ctx, activation.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if !u.EmailConfirmed {
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, domain.ErrUnauthorized
	}

	token, ttl, err := s.sessions.Issue(identity.Principal{IdentityID: u.ID, Email: u.Email})
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &identity.LoginResponse{Token: token, ExpiresIn: int(ttl.Seconds())}, nil
}
