package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("local-test-secret")

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestLocalAuthValidToken(t *testing.T) {
	a := NewLocalAuth(testSecret)
	token := signHS256(t, testSecret, validClaims("user-1"))
	sub, err := a.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if sub != "user-1" {
		t.Fatalf("sub = %q", sub)
	}
}

func TestLocalAuthHeaderShapes(t *testing.T) {
	a := NewLocalAuth(testSecret)
	token := signHS256(t, testSecret, validClaims("user-1"))
	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no scheme", token},
		{"wrong scheme", "Basic " + token},
		{"not a jwt", "Bearer nope"},
	}
	for _, tt := range tests {
		if _, err := a.UserIDFromAuthHeader(tt.header); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
	// Scheme comparison is case-insensitive.
	if _, err := a.UserIDFromAuthHeader("bearer " + token); err != nil {
		t.Fatalf("lowercase scheme: %v", err)
	}
}

func TestLocalAuthRejectsExpiredToken(t *testing.T) {
	a := NewLocalAuth(testSecret)
	token := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestLocalAuthRequiresExpiry(t *testing.T) {
	a := NewLocalAuth(testSecret)
	token := signHS256(t, testSecret, jwt.MapClaims{"sub": "user-1"})
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("token without exp must be rejected")
	}
}

func TestLocalAuthRejectsFutureNotBefore(t *testing.T) {
	a := NewLocalAuth(testSecret)
	token := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(2 * time.Hour).Unix(),
		"nbf": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected not-before error")
	}
}

func TestLocalAuthRejectsWrongSecret(t *testing.T) {
	a := NewLocalAuth(testSecret)
	token := signHS256(t, []byte("some other secret"), validClaims("user-1"))
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestLocalAuthRequiresSubject(t *testing.T) {
	a := NewLocalAuth(testSecret)
	token := signHS256(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected missing sub error")
	}
}

func TestNewLocalAuthPanicsWithoutSecret(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewLocalAuth(nil)
}
