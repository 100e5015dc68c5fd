package clinicapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "patient-3", ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestJWTBearer_Valid(t *testing.T) {
	raw := signedToken(t, time.Now().Add(time.Hour))
	bearer := NewJWTBearer("Bearer " + raw)

	token, err := bearer.BearerToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, token)

	exp, ok := bearer.ExpiresAt()
	assert.True(t, ok)
	assert.True(t, exp.After(time.Now()))
}

func TestJWTBearer_Expired(t *testing.T) {
	bearer := NewJWTBearer(signedToken(t, time.Now().Add(-time.Minute)))
	_, err := bearer.BearerToken(context.Background())
	assert.True(t, errors.Is(err, ErrCredentialsExpired))
	assert.True(t, IsUnauthorized(err))
}

func TestJWTBearer_OpaqueTokenPassesThrough(t *testing.T) {
	bearer := NewJWTBearer("opaque-session-token")
	token, err := bearer.BearerToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-session-token", token)
	_, ok := bearer.ExpiresAt()
	assert.False(t, ok)
}

func TestJWTBearer_Empty(t *testing.T) {
	_, err := NewJWTBearer("").BearerToken(context.Background())
	assert.True(t, errors.Is(err, ErrNoCredentials))

	_, err = StaticToken("").BearerToken(context.Background())
	assert.True(t, errors.Is(err, ErrNoCredentials))
}

func TestCredentialFunc(t *testing.T) {
	p := CredentialFunc(func(context.Context) (string, error) { return "fn", nil })
	token, err := p.BearerToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fn", token)
}
