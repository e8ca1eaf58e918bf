// Package session issues and verifies HS256 session tokens carried in a
// cookie or an Authorization bearer header.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/TenantForge/internal/domain/identity"
)

// Claims is the token payload. Subject carries the identity id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager implements service.SessionIssuer and middleware.SessionResolver.
type Manager struct {
	secret     func() string
	issuer     string
	ttl        time.Duration
	cookieName string
	now        func() time.Time
}

// NewManager creates a manager. secret is read on every call so that a
// vault reload takes effect; tokens signed with the old secret stop
// verifying at that point.
func NewManager(secret func() string, issuer string, ttl time.Duration, cookieName string) *Manager {
	return &Manager{secret: secret, issuer: issuer, ttl: ttl, cookieName: cookieName, now: time.Now}
}

// CookieName is the session cookie the HTTP layer sets on login.
func (m *Manager) CookieName() string { return m.cookieName }

// Issue signs a token for p.
func (m *Manager) Issue(p identity.Principal) (string, time.Duration, error) {
	key := m.secret()
	if key == "" {
		return "", 0, errors.New("session secret not configured")
	}
	now := m.now()
	claims := Claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.IdentityID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", 0, fmt.Errorf("sign session: %w", err)
	}
	return signed, m.ttl, nil
}

// Verify parses and validates a raw token.
func (m *Manager) Verify(raw string) (*identity.Principal, error) {
	key := m.secret()
	if key == "" {
		return nil, errors.New("session secret not configured")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(key), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("verify session: missing subject")
	}
	return &identity.Principal{IdentityID: claims.Subject, Email: claims.Email}, nil
}

// Resolve reads the bearer header first, then the cookie. No credential
// yields (nil, nil).
func (m *Manager) Resolve(r *http.Request) (*identity.Principal, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return nil, errors.New("invalid authorization header")
		}
		raw = tok
	} else if c, err := r.Cookie(m.cookieName); err == nil {
		raw = c.Value
	}
	if raw == "" {
		return nil, nil
	}
	return m.Verify(raw)
}
