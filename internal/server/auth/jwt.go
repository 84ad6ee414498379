// Package auth mints and verifies the two JWT credentials of the system:
// short-lived access tokens and long-lived refresh tokens. The two are
// signed with distinct secrets so one can never stand in for the other.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avickovich/taskhive/internal/server/models"
)

var (
	// ErrExpired marks a structurally valid token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid marks any other verification failure (bad signature,
	// malformed payload, wrong signing method).
	ErrInvalid = errors.New("token invalid")
)

// Claims carried by both token types: the account id as subject plus email
// and role for the transport layer's authorization checks.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Manager issues and parses the token pair.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewManager builds a Manager. The refresh secret must differ from the
// access secret; both TTLs are taken as-is from config.
func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// AccessTTL returns the configured access-token signing lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// NewAccessToken signs a short-lived HS256 token for the account.
func (m *Manager) NewAccessToken(a *models.Account) (string, error) {
	return m.sign(a, m.accessSecret, m.accessTTL)
}

// NewRefreshToken signs a long-lived HS256 token for the account and returns
// it with its expiry so the caller can persist the session row. A random jti
// makes every refresh token unique even when minted in the same second.
func (m *Manager) NewRefreshToken(a *models.Account) (string, time.Time, error) {
	expires := m.now().Add(m.refreshTTL)
	token, err := m.signUntil(a, m.refreshSecret, expires)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(token string) (*Claims, error) {
	return m.parse(token, m.accessSecret)
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(token string) (*Claims, error) {
	return m.parse(token, m.refreshSecret)
}

func (m *Manager) sign(a *models.Account, secret []byte, ttl time.Duration) (string, error) {
	return m.signUntil(a, secret, m.now().Add(ttl))
}

func (m *Manager) signUntil(a *models.Account, secret []byte, expires time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ID:        uuid.NewString(),
		},
		Email: a.Email,
		Role:  a.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) parse(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalid
			}
			return secret, nil
		},
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !token.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
