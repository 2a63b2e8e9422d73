package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims is the subset of the access-token claims the dashboard
// needs. The auth API signs tokens with a shared HMAC secret.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// VerifyAccessToken validates an access token and extracts the Identity
// carried in its claims. Expired or tampered tokens return an error.
func VerifyAccessToken(secret []byte, tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || claims.Subject == "" {
		return nil, fmt.Errorf("access token missing subject claim")
	}

	return &Identity{ID: claims.Subject, Email: claims.Email}, nil
}
