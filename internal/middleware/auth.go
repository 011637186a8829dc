package middleware

import (
	"context"
	"net/http"
	"strings"

	"teamchat/internal/observability"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// IdentityVerifier resolves a bearer token to an actor id
type IdentityVerifier interface {
	Verify(token string) (string, error)
}

// Auth requires a valid bearer token in the Authorization header.
func Auth(verifier IdentityVerifier) func(http.Handler) http.Handler {
	return authenticate(verifier, false)
}

// AuthWebSocket also accepts the token from the "token" query parameter,
// since browsers cannot set headers on a WebSocket handshake.
func AuthWebSocket(verifier IdentityVerifier) func(http.Handler) http.Handler {
	return authenticate(verifier, true)
}

func authenticate(verifier IdentityVerifier, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" && allowQuery {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				observability.FromContext(r.Context()).Debug("token rejected", "error", err.Error())
				http.Error(w, `{"error":"Invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return observability.WithUserID(ctx, userID)
}
