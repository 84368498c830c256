package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv(secretEnvVariable, value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("owner-1", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Identity() != "owner-1" {
		t.Fatalf("unexpected identity: %q", claims.Identity())
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	withSecret(t, "secret-a")
	token, err := GenerateToken("owner-1", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	SetSecret("secret-b")
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredAndAnonymous(t *testing.T) {
	withSecret(t, "test-secret")

	sign := func(subject string, issued, expires time.Time) string {
		t.Helper()
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		}})
		s, err := tok.SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	now := time.Now()
	if _, err := ParseAndValidate(sign("owner", now.Add(-time.Hour), now.Add(-time.Minute))); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
	if _, err := ParseAndValidate(sign(string(Anonymous), now, now.Add(time.Minute))); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("anonymous subject accepted: %v", err)
	}
}

func TestGenerateWithoutSecret(t *testing.T) {
	withSecret(t, "")
	if SupportsTokens() {
		t.Fatal("expected tokens to be disabled")
	}
	if _, err := GenerateToken("owner", time.Minute); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()
	if got := CallerFromContext(ctx); got != Anonymous {
		t.Fatalf("expected anonymous caller, got %q", got)
	}
	ctx = ContextWithCaller(ctx, "  owner-7 ")
	if got := CallerFromContext(ctx); got != "owner-7" {
		t.Fatalf("unexpected caller: %q", got)
	}
	if got := CallerFromContext(ContextWithCaller(context.Background(), "")); got != Anonymous {
		t.Fatalf("blank identity must not be attached, got %q", got)
	}

	if _, ok := TokenFromContext(ctx); ok {
		t.Fatal("unexpected token")
	}
	ctx = ContextWithToken(ctx, "abc")
	if tok, ok := TokenFromContext(ctx); !ok || tok != "abc" {
		t.Fatalf("unexpected token %q", tok)
	}
}
