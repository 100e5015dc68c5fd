package clinicapi

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialProvider supplies the bearer token for patient-scoped calls.
type CredentialProvider interface {
	BearerToken(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) BearerToken(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) BearerToken(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", ErrNoCredentials
	}
	return string(t), nil
}

// JWTBearer forwards a patient's JWT and refuses to send it once its exp claim has
// passed. The signature is not verified here; the clinic API does that.
type JWTBearer struct {
	token string
	now   func() time.Time
}

// NewJWTBearer wraps token. A "Bearer " prefix is stripped.
func NewJWTBearer(token string) *JWTBearer {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return &JWTBearer{token: token, now: time.Now}
}

func (b *JWTBearer) BearerToken(context.Context) (string, error) {
	if b == nil || b.token == "" {
		return "", ErrNoCredentials
	}
	exp, ok := b.ExpiresAt()
	if ok && !b.now().Before(exp) {
		return "", ErrCredentialsExpired
	}
	return b.token, nil
}

// ExpiresAt returns the token's exp claim. Opaque (non-JWT) tokens report false.
func (b *JWTBearer) ExpiresAt() (time.Time, bool) {
	if b == nil || b.token == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(b.token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
