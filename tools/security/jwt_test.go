package security

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"PPGate/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var testOpts = Options{Secret: []byte("unit-test-secret"), Alg: "HS256", TTL: time.Hour}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	tok, exp, err := Generate(testOpts, Identity{UserID: "u1", Username: "alice"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry %v not in the future", exp)
	}
	id, err := NewVerifier(testOpts).Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "u1" || id.Username != "alice" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	good, _, err := Generate(testOpts, Identity{UserID: "u1", Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	expired, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		UserID:           "u1",
		RegisteredClaims: jwtlib.RegisteredClaims{ExpiresAt: jwtlib.NewNumericDate(past)},
	}).SignedString(testOpts.Secret)
	if err != nil {
		t.Fatal(err)
	}
	anonymous, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{Username: "ghost"}).
		SignedString(testOpts.Secret)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]struct {
		opts  Options
		token string
	}{
		"empty":        {testOpts, ""},
		"garbage":      {testOpts, "not-a-jwt"},
		"wrong secret": {Options{Secret: []byte("other")}, good},
		"wrong alg":    {Options{Secret: testOpts.Secret, Alg: "HS512"}, good},
		"expired":      {testOpts, expired},
		"no user id":   {testOpts, anonymous},
	}
	for name, tc := range cases {
		if _, err := Verify(tc.opts, tc.token); !errors.Is(err, errs.ErrAuth) {
			t.Errorf("%s: Verify() = %v, want auth error", name, err)
		}
	}
}

func TestVerifierHonoursCancelledContext(t *testing.T) {
	tok, _, _ := Generate(testOpts, Identity{UserID: "u1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewVerifier(testOpts).Verify(ctx, tok); !errors.Is(err, errs.ErrAuth) {
		t.Fatalf("Verify() = %v, want auth error", err)
	}
}

func TestCredentialFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Cookie", "theme=dark; token=abc.def.ghi")
	if got := CredentialFromRequest(r, ""); got != "abc.def.ghi" {
		t.Fatalf("cookie credential = %q", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	if got := CredentialFromRequest(r, "token"); got != "xyz" {
		t.Fatalf("bearer credential = %q", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if got := CredentialFromRequest(r, "token"); got != "" {
		t.Fatalf("missing credential = %q", got)
	}
}
