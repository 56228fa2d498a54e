// internal/common/utils/jwt.go
// JWT token generation and validation

package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// JWTClaims is the subset of claims this service reads
type JWTClaims struct {
	UserID    int64
	ExpiresAt int64
	IssuedAt  int64
}

// GenerateJWT creates a new HS256 token carrying the numeric "id" claim
func GenerateJWT(userID int64, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns claims
func ValidateJWT(tokenString string, secret string) (*JWTClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	userID, err := userIDClaim(claims)
	if err != nil {
		return nil, err
	}

	return &JWTClaims{
		UserID:    userID,
		ExpiresAt: getInt64Claim(claims, "exp"),
		IssuedAt:  getInt64Claim(claims, "iat"),
	}, nil
}

// userIDClaim reads "id", falling back to "user_id". Either may be numeric or a string.
func userIDClaim(claims jwt.MapClaims) (int64, error) {
	for _, key := range []string{"id", "user_id"} {
		switch v := claims[key].(type) {
		case float64:
			return int64(v), nil
		case string:
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, errors.New("invalid user id format")
			}
			return id, nil
		}
	}
	return 0, errors.New("missing user id in token")
}

func getInt64Claim(claims jwt.MapClaims, key string) int64 {
	if val, ok := claims[key].(float64); ok {
		return int64(val)
	}
	return 0
}
