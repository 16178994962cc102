package auth

import (
	"strings"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID: "user-1",
		Email:  "a@x.com",
		Role:   "student",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", "issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.UserID != "user-1" || claims.Email != "a@x.com" || claims.Role != "student" {
		t.Fatalf("unexpected claims")
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject to mirror user id")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", -time.Minute, Claims{
		UserID: "user-1",
		Email:  "a@x.com",
		Role:   "student",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "issuer", token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID: "user-1",
		Email:  "a@x.com",
		Role:   "student",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected three token segments")
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := ParseToken("secret", "issuer", tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID: "user-1",
		Email:  "a@x.com",
		Role:   "student",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other-secret", "issuer", token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestWrongIssuerRejected(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID: "user-1",
		Email:  "a@x.com",
		Role:   "student",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "other-issuer", token); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}
}
