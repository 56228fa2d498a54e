// internal/auth/resolver.go

package auth

import (
	"context"
	"fmt"

	"github.com/imadgeboyega/kiekky-connect/internal/common/apperr"
	"github.com/imadgeboyega/kiekky-connect/internal/common/utils"
)

// CredentialResolver decodes an opaque credential to a user identifier, or fails with apperr.ErrAuthFailure.
type CredentialResolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// JWTResolver accepts HS256 tokens issued by the auth service.
type JWTResolver struct {
	secret string
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: secret}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (int64, error) {
	if token == "" {
		return 0, apperr.ErrAuthFailure
	}

	claims, err := utils.ValidateJWT(token, r.secret)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrAuthFailure, err)
	}
	if claims.UserID <= 0 {
		return 0, apperr.ErrAuthFailure
	}
	return claims.UserID, nil
}
