package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthService_GenerateToken(t *testing.T) {
	auth := NewAuthService("test-secret")

	token, err := auth.GenerateToken("ci", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if token == "" {
		t.Error("GenerateToken() returned empty token")
	}
}

func TestAuthService_ValidateToken(t *testing.T) {
	auth := NewAuthService("test-secret")

	token, err := auth.GenerateToken("ci", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Subject != "ci" {
		t.Errorf("ValidateToken() subject = %q, want ci", claims.Subject)
	}
	if claims.ExpiresAt == nil {
		t.Error("ValidateToken() expected an expiry")
	}

	_, err = auth.ValidateToken("invalid-token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() with invalid token error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthService_ValidateTokenWrongSecret(t *testing.T) {
	token, err := NewAuthService("secret-one").GenerateToken("ci", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := NewAuthService("secret-two").ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthService_ExpiredToken(t *testing.T) {
	auth := NewAuthService("test-secret")

	token, err := auth.GenerateToken("ci", -time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("token without expiry should validate: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Error("non-positive ttl should not set an expiry")
	}

	token, err = auth.GenerateToken("ci", time.Nanosecond)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := auth.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthService_NoSecret(t *testing.T) {
	auth := NewAuthService("")
	if auth.Enabled() {
		t.Error("Enabled() should be false without a secret")
	}
	if _, err := auth.GenerateToken("ci", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Errorf("GenerateToken() error = %v, want ErrNoSecret", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", ""},
		{"bearer", "Bearer abc.def", "abc.def"},
		{"lowercase", "bearer  abc ", "abc"},
		{"basic", "Basic dXNlcg==", ""},
		{"short", "Bear", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(req); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
