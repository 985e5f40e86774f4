package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/services"
)

func TestLogEvent_PersistsToRepository(t *testing.T) {
	var persisted []*models.SecurityEvent
	repo := &services.MockSecurityEventRepository{
		CreateFunc: func(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
			persisted = append(persisted, event)
			return event, nil
		},
	}
	svc := services.NewEventService(repo, nil, testLogger())

	identifier := "user@example.com"
	svc.LogEvent(context.Background(), &models.SecurityEvent{
		EventType:  models.EventLoginAttempt,
		Severity:   models.SeverityLow,
		Identifier: &identifier,
	})

	require.Len(t, persisted, 1)
	assert.Equal(t, models.EventLoginAttempt, persisted[0].EventType)
}

func TestLogEvent_SwallowsPersistenceErrors(t *testing.T) {
	repo := &services.MockSecurityEventRepository{
		CreateFunc: func(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
			return nil, errors.New("database down")
		},
	}
	svc := services.NewEventService(repo, nil, testLogger())

	// Must not panic or surface the error in any way
	svc.LogEvent(context.Background(), &models.SecurityEvent{
		EventType: models.EventLockout,
		Severity:  models.SeverityHigh,
	})
}

func TestLogEvent_NotifiesOnCriticalOnly(t *testing.T) {
	var mu sync.Mutex
	var notified []*models.SecurityEvent
	done := make(chan struct{}, 1)

	notifier := &services.MockAlertNotifier{
		NotifyFunc: func(ctx context.Context, event *models.SecurityEvent) error {
			mu.Lock()
			notified = append(notified, event)
			mu.Unlock()
			done <- struct{}{}
			return nil
		},
	}
	svc := services.NewEventService(&services.MockSecurityEventRepository{}, notifier, testLogger())

	svc.LogEvent(context.Background(), &models.SecurityEvent{
		EventType: models.EventSuspiciousActivity,
		Severity:  models.SeverityHigh,
	})
	svc.LogEvent(context.Background(), &models.SecurityEvent{
		EventType: models.EventSuspiciousActivity,
		Severity:  models.SeverityCritical,
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alert notifier was not invoked for critical event")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notified, 1)
	assert.Equal(t, models.SeverityCritical, notified[0].Severity)
}

func TestGetSecurityMetrics(t *testing.T) {
	var gotSince time.Time
	repo := &services.MockSecurityEventRepository{
		MetricsSinceFunc: func(ctx context.Context, since time.Time) (*models.SecurityMetrics, error) {
			gotSince = since
			return &models.SecurityMetrics{TotalEvents: 42, Lockouts: 3}, nil
		},
	}
	svc := services.NewEventService(repo, nil, testLogger())

	metrics, err := svc.GetSecurityMetrics(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(42), metrics.TotalEvents)
	assert.Equal(t, int64(3), metrics.Lockouts)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), gotSince, 5*time.Second)
}

func TestRecentForIdentifier_ClampsLimit(t *testing.T) {
	var gotLimit, gotOffset int
	repo := &services.MockSecurityEventRepository{
		GetByIdentifierFunc: func(ctx context.Context, identifier string, limit, offset int) ([]*models.SecurityEvent, error) {
			gotLimit = limit
			gotOffset = offset
			return []*models.SecurityEvent{}, nil
		},
	}
	svc := services.NewEventService(repo, nil, testLogger())

	_, err := svc.RecentForIdentifier(context.Background(), "user@example.com", 500, -3)
	require.NoError(t, err)
	assert.Equal(t, 50, gotLimit)
	assert.Equal(t, 0, gotOffset)
}

func TestRecentForUser_PropagatesErrors(t *testing.T) {
	repo := &services.MockSecurityEventRepository{
		GetByUserIDFunc: func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error) {
			return nil, errors.New("database down")
		},
	}
	svc := services.NewEventService(repo, nil, testLogger())

	_, err := svc.RecentForUser(context.Background(), uuid.New(), 10, 0)
	assert.Error(t, err)
}
