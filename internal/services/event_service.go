package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/models"
)

// SecurityEventRepository defines the interface for security event persistence
type SecurityEventRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	GetByIdentifier(ctx context.Context, identifier string, limit, offset int) ([]*models.SecurityEvent, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error)
	MetricsSince(ctx context.Context, since time.Time) (*models.SecurityMetrics, error)
	DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// AlertNotifier delivers out-of-band notifications for critical events
type AlertNotifier interface {
	Notify(ctx context.Context, event *models.SecurityEvent) error
}

// SecurityEventLogger is the narrow interface the guard and session manager
// depend on. Implementations must never fail the caller's primary operation.
type SecurityEventLogger interface {
	LogEvent(ctx context.Context, event *models.SecurityEvent)
}

// EventService is the security event log: dual-write (slog + database) with
// best-effort persistence. Audit completeness is secondary to the auth
// decision itself, so persistence and alerting failures are swallowed.
type EventService struct {
	repo     SecurityEventRepository
	notifier AlertNotifier
	logger   *slog.Logger
}

// NewEventService creates a new EventService. The notifier is optional.
func NewEventService(repo SecurityEventRepository, notifier AlertNotifier, logger *slog.Logger) *EventService {
	return &EventService{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// LogEvent appends a security event. Fire-and-forget: errors are logged and
// swallowed, never returned.
func (s *EventService) LogEvent(ctx context.Context, event *models.SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity),
		slog.Bool("blocked", event.Blocked),
	}
	if event.UserID != nil {
		attrs = append(attrs, slog.String("user_id", event.UserID.String()))
	}
	if event.Identifier != nil {
		attrs = append(attrs, slog.String("identifier", *event.Identifier))
	}
	if event.IPAddress != nil {
		attrs = append(attrs, slog.String("ip_address", *event.IPAddress))
	}
	if event.Details != nil {
		attrs = append(attrs, slog.Any("details", event.Details))
	}

	level := slog.LevelInfo
	switch event.Severity {
	case models.SeverityMedium:
		level = slog.LevelWarn
	case models.SeverityHigh, models.SeverityCritical:
		level = slog.LevelError
	}
	s.logger.LogAttrs(ctx, level, "security event", attrs...)

	if s.repo != nil {
		if _, err := s.repo.Create(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist security event",
				slog.String("event_type", event.EventType),
				slog.Any("error", err),
			)
		}
	}

	if s.notifier != nil && event.Severity == models.SeverityCritical {
		// Detached from the request: alert delivery must not extend or fail
		// the auth decision.
		go s.sendAlert(event)
	}
}

func (s *EventService) sendAlert(event *models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Error("failed to deliver security alert",
			slog.String("event_type", event.EventType),
			slog.Any("error", err),
		)
	}
}

// GetSecurityMetrics aggregates event counts over the trailing window
func (s *EventService) GetSecurityMetrics(ctx context.Context, window time.Duration) (*models.SecurityMetrics, error) {
	if s.repo == nil {
		return nil, models.ErrInternalServer
	}

	metrics, err := s.repo.MetricsSince(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to get security metrics: %w", err)
	}
	return metrics, nil
}

// RecentForIdentifier returns recent events for an email or IP identifier
func (s *EventService) RecentForIdentifier(ctx context.Context, identifier string, limit, offset int) ([]*models.SecurityEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.repo.GetByIdentifier(ctx, identifier, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for identifier: %w", err)
	}
	return events, nil
}

// RecentForUser returns recent events for a user
func (s *EventService) RecentForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.repo.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for user: %w", err)
	}
	return events, nil
}
