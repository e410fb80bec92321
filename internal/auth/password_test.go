package auth

import (
	"context"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestPlainPassword(t *testing.T) {
	a := NewPasswordAuthenticator("PASSWORD")
	if err := a.Authenticate(context.Background(), "PASSWORD"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := a.Authenticate(context.Background(), "password"); err != domain.ErrInvalidPassword {
		t.Fatalf("expected invalid password, got %v", err)
	}
}

func TestHashedPassword(t *testing.T) {
	hashed, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a := NewPasswordAuthenticator(hashed)
	if !a.hashed {
		t.Fatalf("expected %q to be detected as bcrypt", hashed)
	}
	if err := a.Authenticate(context.Background(), "s3cret"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := a.Authenticate(context.Background(), hashed); err != domain.ErrInvalidPassword {
		t.Fatalf("the hash itself must not authenticate, got %v", err)
	}
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	a := NewPasswordAuthenticator("")
	if err := a.Authenticate(context.Background(), ""); err != domain.ErrInvalidPassword {
		t.Fatalf("expected invalid password, got %v", err)
	}
}
