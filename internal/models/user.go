package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the account record behind the credential verifier.
type User struct {
	ID           uuid.UUID  `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Role         string     `db:"role"`
	TOTPSecret   *string    `db:"totp_secret"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}
