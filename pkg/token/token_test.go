package token

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stockkanban/client-go/pkg/domain"
)

var testSecret = []byte("test-secret-key-for-token-codec!")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func tokenWithExpiry(t *testing.T, exp time.Time) string {
	t.Helper()
	return signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "123",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: "testuser",
		Email:    "test@example.com",
		Role:     domain.RoleUser,
	})
}

func TestDecode_Identity(t *testing.T) {
	tok := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: "u",
		Email:    "e@x.com",
		Role:     domain.RoleUser,
	})

	claims, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	id := claims.Identity()
	want := domain.Identity{ID: "123", Username: "u", Email: "e@x.com", Role: "USER"}
	if id != want {
		t.Errorf("Identity() = %+v, want %+v", id, want)
	}
}

func TestDecode_Malformed(t *testing.T) {
	// A valid header with broken JSON inside the payload segment.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	badPayload := header + "." + base64.RawURLEncoding.EncodeToString([]byte("{not-json")) + ".c"

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one segment", "abcdef"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"invalid base64 payload", header + ".!!!!.c"},
		{"invalid json payload", badPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.token); !errors.Is(err, domain.ErrMalformedToken) {
				t.Errorf("Decode(%q) error = %v, want ErrMalformedToken", tt.token, err)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"expired an hour ago", tokenWithExpiry(t, time.Now().Add(-time.Hour)), true},
		{"expired a second ago", tokenWithExpiry(t, time.Now().Add(-time.Second)), true},
		{"expires in an hour", tokenWithExpiry(t, time.Now().Add(time.Hour)), false},
		{"structurally invalid", "not-a-token", true},
		{"no exp claim", signToken(t, Claims{Username: "u"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.token); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpirationTime(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	tok := tokenWithExpiry(t, exp)

	got, ok := ExpirationTime(tok)
	if !ok {
		t.Fatal("ExpirationTime() ok = false, want true")
	}
	if !got.Equal(exp) {
		t.Errorf("ExpirationTime() = %v, want %v", got, exp)
	}

	if _, ok := ExpirationTime("garbage"); ok {
		t.Error("ExpirationTime(garbage) ok = true, want false")
	}
}
