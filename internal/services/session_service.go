package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/store"
)

// SessionConfig holds session lifecycle configuration
type SessionConfig struct {
	MaxAge                time.Duration // absolute session lifetime
	IdleTimeout           time.Duration // inactivity before a session lapses
	MaxConcurrentSessions int           // cap per user; oldest evicted first
	RefreshLookahead      time.Duration // window before expiry where ShouldRefresh flips on
	RequireReauth         bool          // enable step-up on warnings / old sessions
	ReauthInterval        time.Duration // session age after which step-up is demanded
	TrackDevices          bool          // record a device fingerprint on sessions
}

// DefaultSessionConfig returns stock session lifecycle settings
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxAge:                24 * time.Hour,
		IdleTimeout:           30 * time.Minute,
		MaxConcurrentSessions: 5,
		RefreshLookahead:      5 * time.Minute,
		RequireReauth:         true,
		ReauthInterval:        1 * time.Hour,
		TrackDevices:          true,
	}
}

// SessionService owns session records in the key-value store. The per-user
// session index is a back-reference updated non-atomically relative to the
// records it points to; readers repair dangling entries instead of assuming
// transactional consistency.
type SessionService struct {
	kv     store.KV
	events SecurityEventLogger
	config SessionConfig
	logger *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(kv store.KV, events SecurityEventLogger, config SessionConfig, logger *slog.Logger) *SessionService {
	return &SessionService{
		kv:     kv,
		events: events,
		config: config,
		logger: logger,
	}
}

// newSessionID returns a 256-bit random identifier, URL-safe encoded.
func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateSession issues a new session for a user who has already passed the
// credential check. If the user is at the concurrency cap, the least
// recently active sessions are evicted until a slot is free. Eviction works
// from a snapshot read: under heavy concurrent creation it may evict more
// than the strict minimum, never fewer.
func (s *SessionService) CreateSession(ctx context.Context, userID uuid.UUID, email, role, ip, userAgent string) (string, *models.Session, error) {
	existing, err := s.GetUserSessions(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to enumerate existing sessions: %w", err)
	}

	if over := len(existing) - s.config.MaxConcurrentSessions + 1; over > 0 {
		sort.Slice(existing, func(i, j int) bool {
			return existing[i].LastActivity.Before(existing[j].LastActivity)
		})
		for _, victim := range existing[:over] {
			s.destroy(ctx, victim, models.DestroyReasonSessionLimit)
		}
	}

	sessionID, err := newSessionID()
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	session := &models.Session{
		ID:           sessionID,
		UserID:       userID,
		Email:        email,
		Role:         role,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.config.MaxAge),
	}
	if s.config.TrackDevices {
		session.Fingerprint = DeviceFingerprint(ip, userAgent)
	}

	if err := s.writeSession(ctx, session); err != nil {
		return "", nil, err
	}

	indexKey := store.UserSessionsKey(userID.String())
	if err := s.kv.SAdd(ctx, indexKey, sessionID); err != nil {
		return "", nil, fmt.Errorf("failed to index session: %w", err)
	}
	// Let an orphaned index self-expire even if cleanup never runs.
	_ = s.kv.Expire(ctx, indexKey, s.config.MaxAge)

	s.events.LogEvent(ctx, &models.SecurityEvent{
		EventType: models.EventSessionCreated,
		Severity:  models.SeverityLow,
		UserID:    &session.UserID,
		IPAddress: &session.IPAddress,
		UserAgent: &session.UserAgent,
		Details:   models.EventDetails{"role": role},
	})

	return sessionID, session, nil
}

// ValidateSession checks a presented session ID and returns a verdict.
// Negative outcomes (absent, expired, corrupted) come back with
// IsValid=false and a nil error; an error means the store is unreachable
// and the caller must deny.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err == models.ErrSessionNotFound {
		return &models.ValidationResult{IsValid: false}, nil
	}
	if err == models.ErrCorruptedRecord {
		return &models.ValidationResult{
			IsValid:          false,
			SecurityWarnings: []string{"Session data corrupted"},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()

	switch session.State(now, s.config.IdleTimeout) {
	case models.SessionAbsoluteExpired:
		s.destroy(ctx, session, models.DestroyReasonExpiry)
		return &models.ValidationResult{IsValid: false, ShouldRefresh: true}, nil
	case models.SessionIdleExpired:
		s.destroy(ctx, session, models.DestroyReasonIdleTimeout)
		return &models.ValidationResult{IsValid: false, ShouldRefresh: true}, nil
	}

	var warnings []string
	ipChanged := ip != "" && ip != session.IPAddress
	if ipChanged {
		warnings = append(warnings, fmt.Sprintf("IP address changed from %s to %s", session.IPAddress, ip))
		s.events.LogEvent(ctx, &models.SecurityEvent{
			EventType: models.EventSuspiciousActivity,
			Severity:  models.SeverityMedium,
			UserID:    &session.UserID,
			IPAddress: &ip,
			UserAgent: &userAgent,
			Details: models.EventDetails{
				"reason":      "ip_change",
				"original_ip": session.IPAddress,
			},
		})
	}
	if userAgent != "" && userAgent != session.UserAgent {
		// Advisory only: browsers update themselves mid-session.
		warnings = append(warnings, "User-Agent changed since login")
		s.events.LogEvent(ctx, &models.SecurityEvent{
			EventType: models.EventSuspiciousActivity,
			Severity:  models.SeverityLow,
			UserID:    &session.UserID,
			IPAddress: &ip,
			UserAgent: &userAgent,
			Details:   models.EventDetails{"reason": "user_agent_change"},
		})
	}

	session.Touch(now)
	if err := s.writeSession(ctx, session); err != nil {
		// Last-writer-wins on the activity timestamp; a lost update only
		// skews the idle calculation slightly.
		s.logger.Warn("failed to persist session activity",
			slog.String("user_id", session.UserID.String()),
			slog.Any("error", err))
	}

	return &models.ValidationResult{
		IsValid:          true,
		Session:          session,
		ShouldRefresh:    session.ExpiresAt.Sub(now) <= s.config.RefreshLookahead,
		SecurityWarnings: warnings,
		RequiresReauth:   s.config.RequireReauth && (ipChanged || session.Age(now) > s.config.ReauthInterval),
	}, nil
}

// RefreshSession extends the absolute expiry to now + MaxAge and bumps the
// activity timestamp. Fails with ErrSessionNotFound if the session is gone.
func (s *SessionService) RefreshSession(ctx context.Context, sessionID string) (time.Time, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err == models.ErrCorruptedRecord {
		return time.Time{}, models.ErrSessionNotFound
	}
	if err != nil {
		return time.Time{}, err
	}

	now := time.Now()
	session.ExpiresAt = now.Add(s.config.MaxAge)
	session.Touch(now)

	if err := s.writeSession(ctx, session); err != nil {
		return time.Time{}, err
	}
	_ = s.kv.Expire(ctx, store.UserSessionsKey(session.UserID.String()), s.config.MaxAge)

	return session.ExpiresAt, nil
}

// DestroySession removes a session. Idempotent: destroying an id that no
// longer exists is a no-op, not an error.
func (s *SessionService) DestroySession(ctx context.Context, sessionID string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err == models.ErrSessionNotFound || err == models.ErrCorruptedRecord {
		return nil
	}
	if err != nil {
		return err
	}

	s.destroy(ctx, session, models.DestroyReasonLogout)
	return nil
}

// DestroyAllUserSessions revokes every session a user holds ("log out
// everywhere"), optionally sparing one. Returns the number destroyed.
func (s *SessionService) DestroyAllUserSessions(ctx context.Context, userID uuid.UUID, exceptSessionID string) (int, error) {
	return s.destroyAll(ctx, userID, exceptSessionID, models.DestroyReasonRevocation)
}

// AdminRevokeUserSessions is the operator override: every session the user
// holds is destroyed, current one included, and the audit trail records the
// admin origin.
func (s *SessionService) AdminRevokeUserSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.destroyAll(ctx, userID, "", models.DestroyReasonAdmin)
}

func (s *SessionService) destroyAll(ctx context.Context, userID uuid.UUID, exceptSessionID, reason string) (int, error) {
	indexKey := store.UserSessionsKey(userID.String())
	members, err := s.kv.SMembers(ctx, indexKey)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate user sessions: %w", err)
	}

	destroyed := 0
	for _, sessionID := range members {
		if sessionID == exceptSessionID {
			continue
		}
		session, err := s.loadSession(ctx, sessionID)
		if err != nil {
			// Already gone or unreadable: repair the index entry.
			_ = s.kv.SRem(ctx, indexKey, sessionID)
			continue
		}
		s.destroy(ctx, session, reason)
		destroyed++
	}

	return destroyed, nil
}

// GetUserSessions enumerates the sessions a user holds that are still valid
// at read time. Expired or corrupted records discovered during the scan are
// destroyed and excluded, and dangling index entries are removed.
func (s *SessionService) GetUserSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	indexKey := store.UserSessionsKey(userID.String())
	members, err := s.kv.SMembers(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate user sessions: %w", err)
	}

	now := time.Now()
	sessions := make([]*models.Session, 0, len(members))

	for _, sessionID := range members {
		session, err := s.loadSession(ctx, sessionID)
		if err == models.ErrSessionNotFound || err == models.ErrCorruptedRecord {
			// Missing record means already cleaned elsewhere: drop the
			// index entry and move on.
			_ = s.kv.SRem(ctx, indexKey, sessionID)
			continue
		}
		if err != nil {
			return nil, err
		}

		switch session.State(now, s.config.IdleTimeout) {
		case models.SessionAbsoluteExpired:
			s.destroy(ctx, session, models.DestroyReasonExpiry)
		case models.SessionIdleExpired:
			s.destroy(ctx, session, models.DestroyReasonIdleTimeout)
		default:
			sessions = append(sessions, session)
		}
	}

	return sessions, nil
}

// CleanupExpiredSessions sweeps every session record, destroying anything
// past expiry or idle timeout and anything unparseable. It operates
// per-record, so it is safe to run concurrently with normal traffic.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, store.SessionKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate sessions: %w", err)
	}

	now := time.Now()
	removed := 0

	for _, key := range keys {
		sessionID := strings.TrimPrefix(key, store.SessionKeyPrefix)

		session, err := s.loadSession(ctx, sessionID)
		if err == models.ErrCorruptedRecord {
			removed++
			continue
		}
		if err != nil {
			// Disappeared mid-sweep (TTL or concurrent destroy): already clean.
			continue
		}

		switch session.State(now, s.config.IdleTimeout) {
		case models.SessionAbsoluteExpired:
			s.destroy(ctx, session, models.DestroyReasonExpiry)
			removed++
		case models.SessionIdleExpired:
			s.destroy(ctx, session, models.DestroyReasonIdleTimeout)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("expired session cleanup completed", slog.Int("removed", removed))
	}

	return removed, nil
}

// ActiveSessionCount reports how many session records the store currently
// holds, for the metrics endpoint.
func (s *SessionService) ActiveSessionCount(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, store.SessionKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate sessions: %w", err)
	}
	return len(keys), nil
}

// loadSession reads and decodes one session record. A record that fails to
// decode is destroyed on the spot (self-healing) and reported as corrupted.
func (s *SessionService) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	raw, err := s.kv.Get(ctx, store.SessionKey(sessionID))
	if err == store.ErrKeyNotFound {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.logger.Warn("destroying corrupted session record",
			slog.String("session_key", store.SessionKey(sessionID)))
		_ = s.kv.Del(ctx, store.SessionKey(sessionID))
		s.events.LogEvent(ctx, &models.SecurityEvent{
			EventType: models.EventSessionDestroyed,
			Severity:  models.SeverityMedium,
			Details:   models.EventDetails{"reason": models.DestroyReasonCorrupted},
		})
		return nil, models.ErrCorruptedRecord
	}
	session.ID = sessionID

	return &session, nil
}

func (s *SessionService) writeSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.kv.Set(ctx, store.SessionKey(session.ID), string(data), ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// destroy removes a session record and its index membership and emits the
// audit event. Best-effort on each step; a failed SRem leaves a dangling
// index entry that the self-healing readers remove later.
func (s *SessionService) destroy(ctx context.Context, session *models.Session, reason string) {
	if err := s.kv.Del(ctx, store.SessionKey(session.ID)); err != nil {
		s.logger.Warn("failed to delete session record",
			slog.String("user_id", session.UserID.String()),
			slog.Any("error", err))
	}
	if err := s.kv.SRem(ctx, store.UserSessionsKey(session.UserID.String()), session.ID); err != nil {
		s.logger.Warn("failed to remove session index entry",
			slog.String("user_id", session.UserID.String()),
			slog.Any("error", err))
	}

	severity := models.SeverityLow
	switch reason {
	case models.DestroyReasonSessionLimit, models.DestroyReasonRevocation, models.DestroyReasonAdmin:
		severity = models.SeverityMedium
	}

	s.events.LogEvent(ctx, &models.SecurityEvent{
		EventType: models.EventSessionDestroyed,
		Severity:  severity,
		UserID:    &session.UserID,
		IPAddress: &session.IPAddress,
		UserAgent: &session.UserAgent,
		Details:   models.EventDetails{"reason": reason},
	})
}
