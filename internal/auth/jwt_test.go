package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "salechat",
		Audience: "salechat",
		TTL:      time.Hour,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, 42, "alice", "Alice Johnson")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" || claims.DisplayName != "Alice Johnson" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, 1, "alice", "Alice")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	other := testJWTConfig()
	other.Secret = []byte("different-secret")
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatal("expected validation to fail with wrong secret")
	}
}

func TestValidateToken_WrongIssuerOrAudience(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, 1, "alice", "Alice")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	badIssuer := testJWTConfig()
	badIssuer.Issuer = "someone-else"
	if _, err := ValidateToken(badIssuer, token); err == nil {
		t.Fatal("expected validation to fail with wrong issuer")
	}

	badAudience := testJWTConfig()
	badAudience.Audience = "other-app"
	if _, err := ValidateToken(badAudience, token); err == nil {
		t.Fatal("expected validation to fail with wrong audience")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TTL = -time.Minute

	token, err := GenerateToken(cfg, 1, "alice", "Alice")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := ValidateToken(cfg, token); err == nil {
		t.Fatal("expected validation to fail for expired token")
	}
}

func TestValidateToken_RejectsNonHMAC(t *testing.T) {
	cfg := testJWTConfig()

	// Token signed with "none" must never pass.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := ValidateToken(cfg, raw); err == nil {
		t.Fatal("expected validation to reject unsigned token")
	}
}
