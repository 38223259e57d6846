package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssueAndValidate(t *testing.T) {
	s, err := NewTokenService(secret, time.Minute)
	require.NoError(t, err)

	token, expires, err := s.Issue("ops", ScopeSessionsRead)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 2*time.Second)

	claims, err := s.Validate(token, ScopeSessionsRead)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, issuer, claims.Issuer)

	_, err = s.Validate(token, "other")
	assert.ErrorIs(t, err, ErrInsufficientScope)
}

func TestSecretLength(t *testing.T) {
	_, err := NewTokenService("too-short", 0)
	assert.ErrorIs(t, err, ErrInvalidSecretLength)

	s, err := NewTokenService(secret, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTTL, s.ttl)
}

func TestExpiredToken(t *testing.T) {
	s, err := NewTokenService(secret, time.Minute)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := s.Issue("ops", ScopeSessionsRead)
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Validate(token, ScopeSessionsRead)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestForeignTokensRejected(t *testing.T) {
	s, err := NewTokenService(secret, time.Minute)
	require.NoError(t, err)
	other, err := NewTokenService(strings.Repeat("x", 32), time.Minute)
	require.NoError(t, err)

	forged, _, err := other.Issue("ops", ScopeSessionsRead)
	require.NoError(t, err)
	_, err = s.Validate(forged, ScopeSessionsRead)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Scope: ScopeSessionsRead}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Validate(unsigned, ScopeSessionsRead)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Validate("garbage", ScopeSessionsRead)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
