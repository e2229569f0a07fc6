package app

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/onegen/bank-api/internal/domain"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", 30*time.Minute, 24*time.Hour)
	userID := uuid.New()

	pair, err := issuer.Issue(userID, domain.RoleTeller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair.AccessLifetime != 30*time.Minute || pair.RefreshLifetime != 24*time.Hour {
		t.Fatalf("unexpected lifetimes: %+v", pair)
	}

	claims, err := issuer.Parse(pair.Access, AccessTokenType)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID() != userID || claims.Role != domain.RoleTeller {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := issuer.Parse(pair.Refresh, AccessTokenType); err == nil {
		t.Fatal("expected refresh token to be rejected as access token")
	}
}

func TestTokenIssuerRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	pair, err := issuer.Issue(uuid.New(), domain.RoleCustomer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewTokenIssuer("another-secret", time.Minute, time.Hour)
	if _, err := other.Parse(pair.Access, AccessTokenType); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := issuer.Parse(pair.Access, AccessTokenType); err == nil {
		t.Fatal("expected expired access token to be rejected")
	}
	if _, err := issuer.Parse(pair.Refresh, RefreshTokenType); err != nil {
		t.Fatalf("expected refresh token to remain valid, got %v", err)
	}
}

func TestTokenIssuerRejectsNoneAlgorithm(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	claims := TokenClaims{
		Role:      domain.RoleBranchManager,
		TokenType: AccessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := issuer.Parse(unsigned, AccessTokenType); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}
