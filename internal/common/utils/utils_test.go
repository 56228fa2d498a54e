package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
)

const secret = "test-secret"

func TestGenerateAndValidateJWT(t *testing.T) {
	token, err := utils.GenerateJWT(42, secret, time.Hour)
	require.NoError(t, err)

	claims, err := utils.ValidateJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Greater(t, claims.ExpiresAt, claims.IssuedAt)
}

func TestValidateJWTRejects(t *testing.T) {
	expired, err := utils.GenerateJWT(1, secret, -time.Minute)
	require.NoError(t, err)
	_, err = utils.ValidateJWT(expired, secret)
	assert.Error(t, err)

	good, err := utils.GenerateJWT(1, secret, time.Hour)
	require.NoError(t, err)
	_, err = utils.ValidateJWT(good, "other-secret")
	assert.Error(t, err)

	_, err = utils.ValidateJWT("not-a-token", secret)
	assert.Error(t, err)

	noID := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	signed, err := noID.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = utils.ValidateJWT(signed, secret)
	assert.Error(t, err)
}

func TestValidateJWTStringUserIDClaim(t *testing.T) {
	legacy := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "17",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := legacy.SignedString([]byte(secret))
	require.NoError(t, err)

	claims, err := utils.ValidateJWT(signed, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(17), claims.UserID)
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		LikedID int64  `json:"liked_id" validate:"required,gt=0"`
		Kind    string `json:"kind" validate:"oneof=a b"`
	}

	assert.NoError(t, utils.ValidateStruct(request{LikedID: 3, Kind: "a"}))

	err := utils.ValidateStruct(request{Kind: "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LikedID is required")
	assert.Contains(t, err.Error(), "Kind must be one of [a b]")
}

func TestResponses(t *testing.T) {
	rec := httptest.NewRecorder()
	utils.ErrorResponse(rec, "nope", http.StatusForbidden)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body utils.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "nope", body.Error)

	rec = httptest.NewRecorder()
	utils.SuccessResponse(rec, map[string]int{"n": 1}, http.StatusOK)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, body.Data)
}
