package utils

import (
	"errors"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	id, err := ParseAccessToken("secret", tok.Token)
	if err != nil || id != 42 {
		t.Fatalf("ParseAccessToken() = %d, %v", id, err)
	}

	tests := []struct {
		name   string
		secret string
		ttl    time.Duration
	}{
		{"wrong secret", "other", time.Minute},
		{"expired", "secret", -time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := NewAccessToken("secret", 42, tt.ttl)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := ParseAccessToken(tt.secret, tok.Token); err == nil {
				t.Error("ParseAccessToken() error = nil")
			}
		})
	}
}

func TestRefreshToken(t *testing.T) {
	a, err := NewRefreshToken(1)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewRefreshToken(1)
	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Errorf("raw tokens %q, %q", a.Raw, b.Raw)
	}
	if h := HashRefreshRaw(a.Raw); len(h) != 64 || h == a.Raw || h != HashRefreshRaw(a.Raw) {
		t.Errorf("HashRefreshRaw() = %q", h)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(hash, "correct horse") || VerifyPassword(hash, "wrong") {
		t.Error("VerifyPassword() mismatch")
	}
	if VerifyPassword("", "") {
		t.Error("empty hash matched")
	}
	if _, err := HashPassword("short", 4); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("HashPassword(short) err = %v", err)
	}
	// out-of-range cost falls back to the default
	if _, err := HashPassword("correct horse", 99); err != nil {
		t.Errorf("HashPassword(cost 99) err = %v", err)
	}
}
