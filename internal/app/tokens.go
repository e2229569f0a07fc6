package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
)

const (
	AccessTokenType  = "access"
	RefreshTokenType = "refresh"
)

// TokenClaims are the JWT claims of session tokens.
type TokenClaims struct {
	Role      domain.Role `json:"role"`
	TokenType string      `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is an access token and the refresh token that renews it.
type TokenPair struct {
	Access          string
	Refresh         string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	signingKey      []byte
	accessLifetime  time.Duration
	refreshLifetime time.Duration
	now             func() time.Time
}

func NewTokenIssuer(signingKey string, accessLifetime, refreshLifetime time.Duration) *TokenIssuer {
	return &TokenIssuer{
		signingKey:      []byte(signingKey),
		accessLifetime:  accessLifetime,
		refreshLifetime: refreshLifetime,
		now:             time.Now,
	}
}

// Issue creates a new token pair for user.
func (t *TokenIssuer) Issue(userID uuid.UUID, role domain.Role) (TokenPair, error) {
	access, err := t.sign(userID, role, AccessTokenType, t.accessLifetime)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(userID, role, RefreshTokenType, t.refreshLifetime)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Access:          access,
		Refresh:         refresh,
		AccessLifetime:  t.accessLifetime,
		RefreshLifetime: t.refreshLifetime,
	}, nil
}

func (t *TokenIssuer) sign(userID uuid.UUID, role domain.Role, tokenType string, lifetime time.Duration) (string, error) {
	now := t.now()
	claims := TokenClaims{
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Parse verifies a token of the expected type and returns its claims.
func (t *TokenIssuer) Parse(tokenString, expectedType string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.TokenType != expectedType {
		return nil, errors.New("unexpected token type")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("invalid token subject: %w", err)
	}
	return claims, nil
}

// UserID returns the subject of the claims as a UUID.
func (c *TokenClaims) UserID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}
