// ABOUTME: Tests for JWT token verification
// ABOUTME: Covers roundtrip, expiry, tampering, and claim requirements

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key")

func TestVerify_Roundtrip(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := v.Generate(&Identity{UserID: "agent-1", Role: "agent", BankID: "bank-a"}, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.UserID != "agent-1" {
		t.Errorf("expected UserID agent-1, got %q", identity.UserID)
	}
	if identity.Role != "agent" {
		t.Errorf("expected role agent, got %q", identity.Role)
	}
	if identity.BankID != "bank-a" {
		t.Errorf("expected bank_id bank-a, got %q", identity.BankID)
	}
}

func TestVerify_OmittedBankID(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := v.Generate(&Identity{UserID: "svc-analyzer", Role: "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.BankID != "" {
		t.Errorf("expected empty bank_id, got %q", identity.BankID)
	}
}

func TestVerify_Expired(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token, err := v.Generate(&Identity{UserID: "agent-1", Role: "agent"}, -time.Minute)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := v.Verify(token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	other := NewJWTVerifier([]byte("other-secret"))
	token, err := other.Generate(&Identity{UserID: "agent-1", Role: "agent"}, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	v := NewJWTVerifier(testSecret)
	if _, err := v.Verify(token); err == nil {
		t.Error("expected verification to fail for a token signed with another secret")
	}
}

func TestVerify_Garbage(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	if _, err := v.Verify("not-a-jwt"); err == nil {
		t.Error("expected verification to fail for garbage input")
	}
}

func TestVerify_MissingClaims(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	cases := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"no sub", jwt.MapClaims{"role": "agent", "exp": time.Now().Add(time.Hour).Unix()}},
		{"no role", jwt.MapClaims{"sub": "agent-1", "exp": time.Now().Add(time.Hour).Unix()}},
		{"empty sub", jwt.MapClaims{"sub": "", "role": "agent", "exp": time.Now().Add(time.Hour).Unix()}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := jwt.NewWithClaims(jwt.SigningMethodHS256, tc.claims)
			token, err := raw.SignedString(testSecret)
			if err != nil {
				t.Fatalf("signing failed: %v", err)
			}

			_, err = v.Verify(token)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), "missing required claim") {
				t.Errorf("expected missing-claim error, got %v", err)
			}
		})
	}
}
