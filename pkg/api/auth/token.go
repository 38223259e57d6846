// Package auth issues and validates the bearer tokens that guard the
// session listing of the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInsufficientScope   = errors.New("token lacks the required scope")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

// ScopeSessionsRead allows GET /sessions.
const ScopeSessionsRead = "sessions:read"

const (
	issuer     = "dittosmb"
	defaultTTL = 15 * time.Minute
	minSecret  = 32
)

// Claims are the JWT claims of an API token.
type Claims struct {
	jwt.RegisteredClaims

	Scope string `json:"scope"`
}

// TokenService signs and checks HS256 API tokens with a shared secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns a service for secret. A zero ttl means 15 minutes.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecret {
		return nil, ErrInvalidSecretLength
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for subject carrying scope.
func (s *TokenService) Issue(subject, scope string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Scope: scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Validate parses token and checks its signature, expiry, issuer and scope.
func (s *TokenService) Validate(token, scope string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != scope {
		return nil, ErrInsufficientScope
	}
	return claims, nil
}
