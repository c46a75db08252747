package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestPasswordRoundTrip(t *testing.T) {
	a := New("secret", 60)
	hash, err := a.HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !a.CheckPassword(hash, "correct horse") {
		t.Error("valid password rejected")
	}
	if a.CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestTokenClaims(t *testing.T) {
	a := New("secret", 60)
	tok, err := a.GenerateToken("u1", "alice", "admin")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := a.ValidateToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" || !claims.IsAdmin() {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := New("other", 60).ValidateToken(tok); err == nil {
		t.Error("token accepted with wrong secret")
	}
}

func TestExpiredToken(t *testing.T) {
	a := New("secret", 60)
	claims := Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if _, err := a.ValidateToken(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestExtractClaims(t *testing.T) {
	a := New("secret", 60)
	tok, _ := a.GenerateToken("u1", "alice", "user")

	tests := []struct {
		header string
		ok     bool
	}{
		{"", false},
		{"Bearer " + tok, true},
		{"bearer " + tok, true},
		{"Basic " + tok, false},
		{"Bearer garbage", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/api/auth/me", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got := a.ExtractClaims(r)
		if (got != nil) != tt.ok {
			t.Errorf("ExtractClaims(%q) = %v, want ok=%v", tt.header, got, tt.ok)
		}
		if got != nil && got.IsAdmin() {
			t.Error("user token reported admin")
		}
	}
}

func TestForeignIssuerRejected(t *testing.T) {
	a := New("secret", 60)
	claims := Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	_, err := a.ValidateToken(tok)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
