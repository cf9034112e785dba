package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerifyToken(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	tok, err := issueToken("alice", secret, time.Hour)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	login, err := verifyToken(tok, secret)
	if err != nil {
		t.Fatalf("verifyToken error: %v", err)
	}
	if login != "alice" {
		t.Fatalf("login mismatch: got %q want %q", login, "alice")
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := issueToken("alice", secret, -1*time.Second)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	if _, err := verifyToken(tok, secret); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := issueToken("alice", []byte("right"), time.Hour)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	if _, err := verifyToken(tok, []byte("wrong")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyTokenMalformed(t *testing.T) {
	t.Parallel()

	if _, err := verifyToken("not.a.jwt", []byte("k")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
