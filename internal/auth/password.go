package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"live-quiz-service/internal/domain"
)

// PasswordAuthenticator checks the manager password. The configured secret is either
// a bcrypt hash or a plain string.
type PasswordAuthenticator struct {
	secret string
	hashed bool
}

func NewPasswordAuthenticator(secret string) *PasswordAuthenticator {
	return &PasswordAuthenticator{secret: secret, hashed: isBcryptHash(secret)}
}

func (a *PasswordAuthenticator) Authenticate(_ context.Context, password string) error {
	if a.secret == "" || password == "" {
		return domain.ErrInvalidPassword
	}
	if a.hashed {
		if err := bcrypt.CompareHashAndPassword([]byte(a.secret), []byte(password)); err != nil {
			return domain.ErrInvalidPassword
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(a.secret), []byte(password)) != 1 {
		return domain.ErrInvalidPassword
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for manager.password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
