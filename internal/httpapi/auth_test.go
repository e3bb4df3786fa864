package httpapi

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestAuthManagerTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, "1234", "")

	resp, err := auth.LoginAdmin("1234")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Role != "admin" {
		t.Fatalf("expected admin actor, got %q", actor.Role)
	}
}

func TestAuthManagerRejectsWrongPIN(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour, "1234", "")

	if _, err := auth.LoginAdmin("9999"); err == nil {
		t.Fatalf("expected wrong pin to be rejected")
	}
	if _, err := auth.LoginAdmin(""); err == nil {
		t.Fatalf("expected empty pin to be rejected")
	}
}

func TestAuthManagerBcryptHashPath(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("731904"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash generation failed: %v", err)
	}
	auth := NewAuthManager("secret", time.Hour, "", string(hash))

	if _, err := auth.LoginAdmin("731904"); err != nil {
		t.Fatalf("expected hashed pin to verify, got %v", err)
	}
	if _, err := auth.LoginAdmin("000000"); err == nil {
		t.Fatalf("expected wrong pin against hash to fail")
	}
}

func TestAuthManagerDisabledWithoutPIN(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour, "", "")

	if _, err := auth.LoginAdmin("anything"); err == nil {
		t.Fatalf("admin login must be disabled when no pin is configured")
	}
}

func TestAuthManagerRejectsTamperedToken(t *testing.T) {
	auth := NewAuthManager("secret-one", time.Hour, "1234", "")
	other := NewAuthManager("secret-two", time.Hour, "1234", "")

	resp, err := auth.LoginAdmin("1234")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret must not verify")
	}
}
