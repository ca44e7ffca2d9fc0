package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv(secretEnvVariable, value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndParse(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-42", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate failed: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	withSecret(t, "test-secret")

	if _, err := GenerateToken("  ", time.Hour); err == nil {
		t.Fatal("expected error for blank user id")
	}
	if _, err := GenerateToken("user-42", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestParseRejectsTampering(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-42", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	tampered := parts[0] + "." + parts[1] + ".AAAA"
	if _, err := ParseAndValidate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if _, err := ParseAndValidate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-42", time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	withSecret(t, "")

	if _, err := GenerateToken("user-42", time.Hour); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithUser(t.Context(), "user-42")
	got, ok := UserIDFromContext(ctx)
	if !ok || got != "user-42" {
		t.Fatalf("context round trip failed: %q %v", got, ok)
	}
	if _, ok := UserIDFromContext(t.Context()); ok {
		t.Fatal("expected no user in fresh context")
	}
}
