package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storely/gatehouse/internal/database"
	"github.com/storely/gatehouse/internal/models"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// SecurityEventRepository handles the append-only security event table.
// Rows are never updated; the only delete path is retention trimming.
type SecurityEventRepository struct {
	db *database.DB
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent

	err := row.Scan(
		&event.ID, &event.EventType, &event.Severity, &event.UserID,
		&event.Identifier, &event.IPAddress, &event.UserAgent,
		&event.Details, &event.Blocked, &event.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Create appends a new security event
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	query := `
		INSERT INTO security_events (
			event_type, severity, user_id, identifier, ip_address, user_agent, details, blocked
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, event_type, severity, user_id, identifier, ip_address, user_agent,
		          details, blocked, created_at
	`

	result, err := scanSecurityEventRow(r.db.Pool.QueryRow(
		ctx, query,
		event.EventType, event.Severity, event.UserID, event.Identifier,
		event.IPAddress, event.UserAgent, event.Details, event.Blocked,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create security event: %w", err)
	}

	return result, nil
}

// GetByIdentifier retrieves recent events for an identifier (email or IP)
func (r *SecurityEventRepository) GetByIdentifier(ctx context.Context, identifier string, limit, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, event_type, severity, user_id, identifier, ip_address, user_agent,
		       details, blocked, created_at
		FROM security_events
		WHERE identifier = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, identifier, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// GetByUserID retrieves recent events for a user
func (r *SecurityEventRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, event_type, severity, user_id, identifier, ip_address, user_agent,
		       details, blocked, created_at
		FROM security_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// MetricsSince aggregates event counts over a trailing window in one pass.
func (r *SecurityEventRepository) MetricsSince(ctx context.Context, since time.Time) (*models.SecurityMetrics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE blocked),
			COUNT(*) FILTER (WHERE event_type = $2 AND (details->>'success')::boolean IS NOT TRUE),
			COUNT(*) FILTER (WHERE event_type = $3),
			COUNT(*) FILTER (WHERE event_type = $4),
			COUNT(*) FILTER (WHERE event_type = $5),
			COUNT(*) FILTER (WHERE event_type = $6),
			COUNT(*) FILTER (WHERE severity = $7)
		FROM security_events
		WHERE created_at >= $1
	`

	metrics := models.SecurityMetrics{WindowStart: since}
	err := r.db.Pool.QueryRow(ctx, query,
		since,
		models.EventLoginAttempt,
		models.EventLockout,
		models.EventSuspiciousActivity,
		models.EventSessionCreated,
		models.EventSessionDestroyed,
		models.SeverityCritical,
	).Scan(
		&metrics.TotalEvents,
		&metrics.BlockedAttempts,
		&metrics.FailedLogins,
		&metrics.Lockouts,
		&metrics.SuspiciousActivity,
		&metrics.SessionsCreated,
		&metrics.SessionsDestroyed,
		&metrics.CriticalEvents,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate security metrics: %w", err)
	}

	return &metrics, nil
}

// DeleteOlderThan trims events past the retention horizon
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	query := `
		DELETE FROM security_events
		WHERE created_at < CURRENT_TIMESTAMP - INTERVAL '1 day' * $1
	`

	result, err := r.db.Pool.Exec(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to trim security events: %w", err)
	}

	return result.RowsAffected(), nil
}
