// internal/auth/middleware.go

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
)

type contextKey string

const userIDKey contextKey = "userID"

// Middleware provides authentication middleware
type Middleware struct {
	resolver CredentialResolver
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(resolver CredentialResolver) *Middleware {
	return &Middleware{
		resolver: resolver,
	}
}

// Authenticate rejects requests without a valid bearer token and stores the user id in the context
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			utils.ErrorResponse(w, "Missing or invalid authorization header", http.StatusUnauthorized)
			return
		}

		userID, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			utils.ErrorResponse(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// WebSocketToken prefers the bearer header and falls back to the ?token= query parameter.
// Browsers cannot set headers on websocket upgrades.
func WebSocketToken(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// WithUserID returns a copy of ctx carrying userID
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext extracts user ID from request context
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}
