package auth

import (
	"testing"
	"time"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		TokenTTL:      30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}

	subject, err := issuer.Validate(tokenString)
	if err != nil {
		t.Fatalf("expected issued token to validate: %v", err)
	}
	if subject != "user-123" {
		t.Fatalf("unexpected subject %s", subject)
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{}); err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
}

func TestTokenIssuerRejectsForeignSignature(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret-a")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	other, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret-b")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, err := other.Issue("user-123")
	if err != nil {
		t.Fatalf("unexpected issuance error: %v", err)
	}
	if _, err := issuer.Validate(tokenString); err == nil {
		t.Fatalf("expected validation failure for token signed with a different secret")
	}
}

func TestTokenIssuerRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return past },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	tokenString, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("unexpected issuance error: %v", err)
	}

	current, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, err := current.Validate(tokenString); err == nil {
		t.Fatalf("expected validation failure for expired token")
	}
}
