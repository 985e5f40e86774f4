package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/database"
	"github.com/storely/gatehouse/internal/models"
)

// UserRepository handles user account data access. The storefront owns user
// profiles; this service only needs what the credential verifier and the
// step-up flow read.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUserRow(row rowScanner) (*models.User, error) {
	var user models.User

	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.TOTPSecret, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// GetByEmail retrieves a user by email address
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role, totp_secret, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, email))
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role, totp_secret, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, role, totp_secret, created_at, updated_at
	`

	created, err := scanUserRow(r.db.Pool.QueryRow(ctx, query, user.Email, user.PasswordHash, user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// SetTOTPSecret stores the step-up TOTP secret for a user
func (r *UserRepository) SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error {
	query := `
		UPDATE users
		SET totp_secret = $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, secret)
	if err != nil {
		return fmt.Errorf("failed to set totp secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
