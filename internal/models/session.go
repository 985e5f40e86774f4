package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState describes where a session sits in its lifecycle, derived from
// the stored timestamps at read time. A session that cannot be loaded at all
// has no state; readers surface that as ErrSessionNotFound.
type SessionState string

const (
	SessionActive          SessionState = "active"
	SessionIdleExpired     SessionState = "idle_expired"
	SessionAbsoluteExpired SessionState = "absolute_expired"
)

// Destruction reasons recorded on session_destroyed events.
const (
	DestroyReasonLogout       = "logout"
	DestroyReasonIdleTimeout  = "idle_timeout"
	DestroyReasonExpiry       = "absolute_expiry"
	DestroyReasonSessionLimit = "concurrent_session_limit"
	DestroyReasonRevocation   = "security_revocation"
	DestroyReasonCorrupted    = "corrupted_record"
	DestroyReasonAdmin        = "admin_revocation"
)

// Session represents one authenticated client context. The ID is opaque and
// cryptographically random; email and role are denormalized so authorization
// checks do not need a user lookup on every request.
type Session struct {
	ID           string    `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// State derives the lifecycle state from the stored timestamps. Absolute
// expiry wins over idle expiry when both have lapsed.
func (s *Session) State(now time.Time, idleTimeout time.Duration) SessionState {
	if now.After(s.ExpiresAt) {
		return SessionAbsoluteExpired
	}
	if idleTimeout > 0 && now.Sub(s.LastActivity) > idleTimeout {
		return SessionIdleExpired
	}
	return SessionActive
}

// Age returns how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Touch bumps the activity timestamp. The timestamp is monotonically
// non-decreasing even if the caller passes a stale clock reading.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// ValidationResult is the verdict returned for a presented session ID.
// Negative outcomes (absent, expired) are expressed here, not as errors.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Session          *Session `json:"session,omitempty"`
	ShouldRefresh    bool     `json:"should_refresh"`
	SecurityWarnings []string `json:"security_warnings,omitempty"`
	RequiresReauth   bool     `json:"requires_reauth"`
}
