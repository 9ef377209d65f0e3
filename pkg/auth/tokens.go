// Package auth implements the bearer token service. Tokens are HS256 JWTs
// carrying the user's email claim, signed with the process-wide boot secret.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors for token operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("signing secret must be at least 32 bytes")
)

// Claims is the JWT payload. Tokens carry only the email; everything else is
// resolved against the store per request.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService mints and validates bearer tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a token service signing with the given secret.
func NewTokenService(secret []byte) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	return &TokenService{secret: secret}, nil
}

// Mint creates a signed token for the given email. Tokens do not expire; the
// Obsidian client holds one per login and re-authenticates explicitly.
func (s *TokenService) Mint(email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Email: email})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Email validates the token signature and returns the email claim.
func (s *TokenService) Email(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Email == "" {
		return "", ErrInvalidToken
	}
	return claims.Email, nil
}
