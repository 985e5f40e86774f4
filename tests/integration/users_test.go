package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/repositories"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.TruncateAll(ctx))

	repo := repositories.NewUserRepository(testDB.DB)

	created, err := repo.Create(ctx, &models.User{
		Email:        "user@example.com",
		PasswordHash: "$2a$14$notarealhashbutlongenoughtostore00000000000000000000",
		Role:         "customer",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Nil(t, created.TOTPSecret)

	byEmail, err := repo.GetByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "customer", byEmail.Role)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", byID.Email)
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.TruncateAll(ctx))

	repo := repositories.NewUserRepository(testDB.DB)

	_, err := repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository_DuplicateEmailConflicts(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.TruncateAll(ctx))

	repo := repositories.NewUserRepository(testDB.DB)

	_, err := repo.Create(ctx, &models.User{Email: "user@example.com", PasswordHash: "h", Role: "customer"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.User{Email: "user@example.com", PasswordHash: "h", Role: "customer"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUserRepository_SetTOTPSecret(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.TruncateAll(ctx))

	repo := repositories.NewUserRepository(testDB.DB)

	created, err := repo.Create(ctx, &models.User{Email: "user@example.com", PasswordHash: "h", Role: "customer"})
	require.NoError(t, err)

	require.NoError(t, repo.SetTOTPSecret(ctx, created.ID, "JBSWY3DPEHPK3PXP"))

	user, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, user.TOTPSecret)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", *user.TOTPSecret)

	err = repo.SetTOTPSecret(ctx, uuid.New(), "JBSWY3DPEHPK3PXP")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
