package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/repositories"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		panic("failed to set up test database: " + err.Error())
	}
	testDB = db

	code := m.Run()

	testDB.Teardown(ctx)
	os.Exit(code)
}

func strPtr(s string) *string { return &s }

func TestSecurityEventRepository_CreateAndQuery(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.TruncateAll(ctx))

	repo := repositories.NewSecurityEventRepository(testDB.DB)
	userID := uuid.New()

	created, err := repo.Create(ctx, &models.SecurityEvent{
		EventType:  models.EventLockout,
		Severity:   models.SeverityCritical,
		UserID:     &userID,
		Identifier: strPtr("victim@example.com"),
		IPAddress:  strPtr("203.0.113.1"),
		UserAgent:  strPtr("Mozilla/5.0"),
		Details:    models.EventDetails{"attempts": float64(5)},
		Blocked:    true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byIdentifier, err := repo.GetByIdentifier(ctx, "victim@example.com", 10, 0)
	require.NoError(t, err)
	require.Len(t, byIdentifier, 1)
	assert.Equal(t, models.EventLockout, byIdentifier[0].EventType)
	assert.True(t, byIdentifier[0].Blocked)
	assert.Equal(t, float64(5), byIdentifier[0].Details["attempts"])

	byUser, err := repo.GetByUserID(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, created.ID, byUser[0].ID)
}

func TestSecurityEventRepository_QueryOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.TruncateAll(ctx))

	repo := repositories.NewSecurityEventRepository(testDB.DB)

	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, &models.SecurityEvent{
			EventType:  models.EventLoginAttempt,
			Severity:   models.SeverityLow,
			Identifier: strPtr("user@example.com"),
			Details:    models.EventDetails{"n": float64(i)},
		})
		require.NoError(t, err)
	}

	page, err := repo.GetByIdentifier(ctx, "user@example.com", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Most recent first
	assert.Equal(t, float64(4), page[0].Details["n"])

	page, err = repo.GetByIdentifier(ctx, "user@example.com", 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, float64(0), page[0].Details["n"])
}

func TestSecurityEventRepository_MetricsSince(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.TruncateAll(ctx))

	repo := repositories.NewSecurityEventRepository(testDB.DB)

	events := []*models.SecurityEvent{
		{EventType: models.EventLoginAttempt, Severity: models.SeverityLow, Details: models.EventDetails{"success": false}},
		{EventType: models.EventLoginAttempt, Severity: models.SeverityLow, Details: models.EventDetails{"success": true}},
		{EventType: models.EventLockout, Severity: models.SeverityCritical, Blocked: true},
		{EventType: models.EventSuspiciousActivity, Severity: models.SeverityCritical},
		{EventType: models.EventSessionCreated, Severity: models.SeverityLow},
		{EventType: models.EventSessionDestroyed, Severity: models.SeverityLow},
	}
	for _, e := range events {
		_, err := repo.Create(ctx, e)
		require.NoError(t, err)
	}

	metrics, err := repo.MetricsSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, int64(6), metrics.TotalEvents)
	assert.Equal(t, int64(1), metrics.BlockedAttempts)
	assert.Equal(t, int64(1), metrics.FailedLogins)
	assert.Equal(t, int64(1), metrics.Lockouts)
	assert.Equal(t, int64(1), metrics.SuspiciousActivity)
	assert.Equal(t, int64(1), metrics.SessionsCreated)
	assert.Equal(t, int64(1), metrics.SessionsDestroyed)
	assert.Equal(t, int64(2), metrics.CriticalEvents)

	// A window starting in the future sees nothing
	metrics, err = repo.MetricsSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), metrics.TotalEvents)
}

func TestSecurityEventRepository_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.TruncateAll(ctx))

	repo := repositories.NewSecurityEventRepository(testDB.DB)

	_, err := repo.Create(ctx, &models.SecurityEvent{
		EventType: models.EventLoginAttempt,
		Severity:  models.SeverityLow,
	})
	require.NoError(t, err)

	// Backdate a second event past the retention horizon
	_, err = testDB.Pool.Exec(ctx, `
		INSERT INTO security_events (event_type, severity, created_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP - INTERVAL '100 days')
	`, models.EventLoginAttempt, models.SeverityLow)
	require.NoError(t, err)

	trimmed, err := repo.DeleteOlderThan(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), trimmed)

	metrics, err := repo.MetricsSince(ctx, time.Now().Add(-200*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.TotalEvents)
}
