package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/models"
)

// RecordingEventLogger implements SecurityEventLogger for testing, capturing
// every event it receives.
type RecordingEventLogger struct {
	mu     sync.Mutex
	Events []*models.SecurityEvent
}

func (r *RecordingEventLogger) LogEvent(ctx context.Context, event *models.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
}

// ByType returns the captured events matching an event type
func (r *RecordingEventLogger) ByType(eventType string) []*models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SecurityEvent
	for _, e := range r.Events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MockSecurityEventRepository implements SecurityEventRepository for testing
type MockSecurityEventRepository struct {
	CreateFunc          func(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	GetByIdentifierFunc func(ctx context.Context, identifier string, limit, offset int) ([]*models.SecurityEvent, error)
	GetByUserIDFunc     func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error)
	MetricsSinceFunc    func(ctx context.Context, since time.Time) (*models.SecurityMetrics, error)
	DeleteOlderThanFunc func(ctx context.Context, retentionDays int) (int64, error)
}

func (m *MockSecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	return event, nil
}

func (m *MockSecurityEventRepository) GetByIdentifier(ctx context.Context, identifier string, limit, offset int) ([]*models.SecurityEvent, error) {
	if m.GetByIdentifierFunc != nil {
		return m.GetByIdentifierFunc(ctx, identifier, limit, offset)
	}
	return []*models.SecurityEvent{}, nil
}

func (m *MockSecurityEventRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID, limit, offset)
	}
	return []*models.SecurityEvent{}, nil
}

func (m *MockSecurityEventRepository) MetricsSince(ctx context.Context, since time.Time) (*models.SecurityMetrics, error) {
	if m.MetricsSinceFunc != nil {
		return m.MetricsSinceFunc(ctx, since)
	}
	return &models.SecurityMetrics{}, nil
}

func (m *MockSecurityEventRepository) DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, retentionDays)
	}
	return 0, nil
}

// MockAlertNotifier implements AlertNotifier for testing
type MockAlertNotifier struct {
	NotifyFunc func(ctx context.Context, event *models.SecurityEvent) error
}

func (m *MockAlertNotifier) Notify(ctx context.Context, event *models.SecurityEvent) error {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, event)
	}
	return nil
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByEmailFunc    func(ctx context.Context, email string) (*models.User, error)
	GetByIDFunc       func(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetTOTPSecretFunc func(ctx context.Context, id uuid.UUID, secret string) error
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error {
	if m.SetTOTPSecretFunc != nil {
		return m.SetTOTPSecretFunc(ctx, id, secret)
	}
	return nil
}
