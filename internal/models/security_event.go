package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for the security log
const (
	EventLoginAttempt       = "login_attempt"
	EventCaptchaRequired    = "captcha_required"
	EventLockout            = "lockout"
	EventAttemptsReset      = "attempts_reset"
	EventSessionCreated     = "session_created"
	EventSessionDestroyed   = "session_destroyed"
	EventSuspiciousActivity = "suspicious_activity"
	EventStepUpVerified     = "stepup_verified"
)

// Severities
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SecurityEvent is an immutable audit record. Rows are append-only; nothing
// in the normal flow updates or deletes them (retention trimming runs as a
// background job).
type SecurityEvent struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	EventType  string       `db:"event_type" json:"event_type"`
	Severity   string       `db:"severity" json:"severity"`
	UserID     *uuid.UUID   `db:"user_id" json:"user_id,omitempty"`
	Identifier *string      `db:"identifier" json:"identifier,omitempty"`
	IPAddress  *string      `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  *string      `db:"user_agent" json:"user_agent,omitempty"`
	Details    EventDetails `db:"details" json:"details,omitempty"`
	Blocked    bool         `db:"blocked" json:"blocked"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// EventDetails holds the structured detail payload for an event
type EventDetails map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *EventDetails) Scan(value interface{}) error {
	if value == nil {
		*d = make(EventDetails)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*d = EventDetails(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d EventDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// SecurityMetrics aggregates event counts over a trailing window, consumed
// by the ops dashboard.
type SecurityMetrics struct {
	WindowStart        time.Time `json:"window_start"`
	TotalEvents        int64     `json:"total_events"`
	BlockedAttempts    int64     `json:"blocked_attempts"`
	FailedLogins       int64     `json:"failed_logins"`
	Lockouts           int64     `json:"lockouts"`
	SuspiciousActivity int64     `json:"suspicious_activity"`
	SessionsCreated    int64     `json:"sessions_created"`
	SessionsDestroyed  int64     `json:"sessions_destroyed"`
	CriticalEvents     int64     `json:"critical_events"`
}
