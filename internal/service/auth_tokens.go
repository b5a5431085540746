package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
)

// ============================================================
// Access tokens
// ============================================================

const tokenIssuer = "pfm-api"

// JWTClaims represents the custom claims in access tokens. The subject is
// the user id.
type JWTClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 access tokens.
type TokenService struct {
	jwtSecret []byte
	accessTTL time.Duration
}

// NewTokenService creates a token service.
func NewTokenService(secret string, accessTTL time.Duration) *TokenService {
	return &TokenService{jwtSecret: []byte(secret), accessTTL: accessTTL}
}

// IssueAccessToken mints a token for userID. Used by the CLI and tests;
// interactive login is handled by the identity provider.
func (s *TokenService) IssueAccessToken(userID string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, &domain.ErrValidation{Field: "userId", Message: "user id is required"}
	}
	now := time.Now()
	expires := now.Add(s.accessTTL)
	claims := JWTClaims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    tokenIssuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// ValidateAccessToken is used by the auth middleware.
func (s *TokenService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	return claims, nil
}
