package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/kiekky-connect/internal/auth"
	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
)

const secret = "middleware-secret"

func TestJWTResolver(t *testing.T) {
	resolver := auth.NewJWTResolver(secret)

	token, err := utils.GenerateJWT(9, secret, time.Hour)
	require.NoError(t, err)

	id, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	_, err = resolver.Resolve(context.Background(), "")
	assert.True(t, errors.Is(err, apperr.ErrAuthFailure))

	_, err = resolver.Resolve(context.Background(), "garbage")
	assert.True(t, errors.Is(err, apperr.ErrAuthFailure))
}

func TestAuthenticate(t *testing.T) {
	mw := auth.NewMiddleware(auth.NewJWTResolver(secret))

	var seen int64
	protected := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches/get-connections", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := utils.GenerateJWT(5, secret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/matches/get-connections", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(5), seen)
}

func TestWebSocketToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/chat?token=from-query", nil)
	assert.Equal(t, "from-query", auth.WebSocketToken(req))

	req.Header.Set("Authorization", "bearer from-header")
	assert.Equal(t, "from-header", auth.WebSocketToken(req))

	req = httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", auth.WebSocketToken(req))
}
