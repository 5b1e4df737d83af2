package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager("s3cret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := m.GenerateToken(42, "ana", true)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "ana" || !claims.IsAdmin {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	m, _ := NewTokenManager("s3cret", time.Hour)
	other, _ := NewTokenManager("different", time.Hour)
	tok, _ := other.GenerateToken(1, "bob", false)
	if _, err := m.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature: err = %v", err)
	}

	expired, _ := NewTokenManager("s3cret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _ = expired.GenerateToken(1, "bob", false)
	if _, err := m.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: err = %v", err)
	}

	if _, err := m.ParseToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: err = %v", err)
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPasswordHash("pw", hash) || CheckPasswordHash("nope", hash) {
		t.Fatal("bcrypt comparison mismatch")
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
