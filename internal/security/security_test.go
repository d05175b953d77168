package security

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatal("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("wrong password accepted")
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, err := GenerateAdminToken("secret", "admin", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAdminToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Username != "admin" {
		t.Fatalf("username = %s, want admin", claims.Username)
	}
}

func TestAdminTokenWrongSecret(t *testing.T) {
	token, err := GenerateAdminToken("secret", "admin", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err = ParseAdminToken("other", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestAdminTokenExpired(t *testing.T) {
	token, err := GenerateAdminToken("secret", "admin", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err = ParseAdminToken("secret", token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
}
