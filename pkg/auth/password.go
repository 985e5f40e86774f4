package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 14
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// DummyHash is a throwaway bcrypt hash compared against when the account
// does not exist, so the response timing of unknown-email and wrong-password
// failures stays indistinguishable.
const DummyHash = "$2a$14$wHcsO4DUoTqnxq3lV9uWzOq0N1p7S3X3FZl8yBq0eGeJ5r0cY1h2K"

// HashPassword hashes a password with bcrypt at the configured cost
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if len(password) < MinPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	if len(password) > MaxPasswordLen {
		return "", fmt.Errorf("password must be at most %d characters", MaxPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
