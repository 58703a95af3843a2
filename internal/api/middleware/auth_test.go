package middleware_test

import (
	"testing"
	"time"

	"github.com/benasterisk/stemtube/internal/api/middleware"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := middleware.GenerateJWT(42, "alice", true, "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	userID, username, isAdmin, err := middleware.ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != 42 || username != "alice" || !isAdmin {
		t.Fatalf("claims = %d %q %v", userID, username, isAdmin)
	}
}

func TestJWTWrongSecretRejected(t *testing.T) {
	token, err := middleware.GenerateJWT(1, "bob", false, "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := middleware.ParseJWT(token, "other"); err == nil {
		t.Fatal("token signed with a different secret was accepted")
	}
}

func TestJWTExpiryEnforced(t *testing.T) {
	token, err := middleware.GenerateJWT(1, "bob", false, "secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := middleware.ParseJWT(token, "secret"); err == nil {
		t.Fatal("expired token was accepted")
	}
}

func TestSessionIDFor(t *testing.T) {
	if got := middleware.SessionIDFor(7); got != "user_7" {
		t.Fatalf("session id = %q", got)
	}
}
