package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-booking/internal/clinicapi"
)

type contextKey string

const bearerTokenKey contextKey = "bearerToken"

// PatientBearer requires an unexpired bearer token and stores it on the request
// context. The token is forwarded to the clinic API, which verifies it.
// WebSocket upgrades may carry the token in the access_token query parameter.
func PatientBearer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if auth == "" && isWebSocketUpgrade(r) {
				if qt := strings.TrimSpace(r.URL.Query().Get("access_token")); qt != "" {
					auth = "Bearer " + qt
				}
			}
			if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			bearer := clinicapi.NewJWTBearer(auth)
			token, err := bearer.BearerToken(r.Context())
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithBearerToken(r.Context(), token)))
		})
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// WithBearerToken stores token on ctx.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

// BearerTokenFromContext returns the token stored by PatientBearer.
func BearerTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerTokenKey).(string)
	return token, ok && token != ""
}
