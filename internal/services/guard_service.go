package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/store"
)

// GuardConfig holds brute-force protection thresholds. The defaults are
// tunable operational knobs, not load-bearing constants.
type GuardConfig struct {
	CaptchaThreshold int           // failed attempts before a CAPTCHA is required
	LockoutThreshold int           // failed attempts before a temporary lockout
	LockoutDuration  time.Duration // how long a lockout lasts
	AttemptWindow    time.Duration // inactivity TTL on attempt counters
}

// DefaultGuardConfig returns the stock thresholds (3 captcha, 5 lockout, 15m)
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		CaptchaThreshold: 3,
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
		AttemptWindow:    1 * time.Hour,
	}
}

// GuardService tracks failed login attempts per identifier (email or IP) and
// enforces progressive thresholds: CAPTCHA first, temporary lockout after.
//
// Fail direction is split by method and deliberate: CheckLockout and
// CheckLoginAttempt return errors on store failure and callers must deny
// (fail closed); GetAccountStatus degrades to a zero-value status (fail open)
// because a monitoring read must never block a legitimate login flow.
type GuardService struct {
	kv     store.KV
	events SecurityEventLogger
	config GuardConfig
	logger *slog.Logger
}

// NewGuardService creates a new GuardService
func NewGuardService(kv store.KV, events SecurityEventLogger, config GuardConfig, logger *slog.Logger) *GuardService {
	return &GuardService{
		kv:     kv,
		events: events,
		config: config,
		logger: logger,
	}
}

// CheckLockout reports whether the identifier is currently locked out.
// This is the fail-closed pre-gate the login route runs before touching
// credentials. A store error means the answer is unknown; the caller must
// treat it as blocked.
func (s *GuardService) CheckLockout(ctx context.Context, identifier string) (bool, *time.Time, error) {
	until, err := s.lockoutUntil(ctx, identifier)
	if err != nil {
		return false, nil, err
	}
	if until != nil && time.Now().Before(*until) {
		return true, until, nil
	}
	return false, nil, nil
}

// CheckLoginAttempt records the outcome of one login attempt and returns the
// guard's verdict. Success fully resets the attempt record. While a lockout
// is active the counter is not incremented, so hammering cannot extend the
// lockout window.
func (s *GuardService) CheckLoginAttempt(ctx context.Context, identifier, ip, userAgent string, wasSuccessful bool) (*models.LoginCheck, error) {
	now := time.Now()

	until, err := s.lockoutUntil(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("lockout check failed: %w", err)
	}
	if until != nil && now.Before(*until) {
		s.events.LogEvent(ctx, &models.SecurityEvent{
			EventType:  models.EventLoginAttempt,
			Severity:   models.SeverityMedium,
			Identifier: &identifier,
			IPAddress:  &ip,
			UserAgent:  &userAgent,
			Blocked:    true,
			Details:    models.EventDetails{"locked": true, "lockout_until": until.Format(time.RFC3339)},
		})
		return &models.LoginCheck{
			Allowed:         false,
			RequiresCaptcha: true,
			LockoutUntil:    until,
		}, nil
	}

	if wasSuccessful {
		cleared, err := s.clearAttempts(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("attempt reset failed: %w", err)
		}
		s.events.LogEvent(ctx, &models.SecurityEvent{
			EventType:  models.EventLoginAttempt,
			Severity:   models.SeverityLow,
			Identifier: &identifier,
			IPAddress:  &ip,
			UserAgent:  &userAgent,
			Details:    models.EventDetails{"success": true, "attempts_cleared": cleared},
		})
		return &models.LoginCheck{Allowed: true}, nil
	}

	count, err := s.kv.Incr(ctx, store.AttemptCountKey(identifier))
	if err != nil {
		return nil, fmt.Errorf("attempt increment failed: %w", err)
	}
	if count == 1 {
		if err := s.kv.Expire(ctx, store.AttemptCountKey(identifier), s.config.AttemptWindow); err != nil {
			return nil, fmt.Errorf("attempt window failed: %w", err)
		}
		if _, err := s.kv.SetNX(ctx, store.AttemptFirstKey(identifier), now.Format(time.RFC3339), s.config.AttemptWindow); err != nil {
			return nil, fmt.Errorf("attempt record failed: %w", err)
		}
	}
	if err := s.kv.Set(ctx, store.AttemptLastKey(identifier), now.Format(time.RFC3339), s.config.AttemptWindow); err != nil {
		return nil, fmt.Errorf("attempt record failed: %w", err)
	}

	attempts := int(count)

	if attempts >= s.config.LockoutThreshold {
		lockedUntil := now.Add(s.config.LockoutDuration)
		if err := s.kv.Set(ctx, store.AttemptLockKey(identifier), lockedUntil.Format(time.RFC3339), s.config.LockoutDuration); err != nil {
			return nil, fmt.Errorf("lockout write failed: %w", err)
		}

		s.logger.Warn("account locked out",
			slog.String("identifier", identifier),
			slog.Int("failed_attempts", attempts),
			slog.Duration("lockout_duration", s.config.LockoutDuration))

		// Lockouts are critical so the alert notifier picks them up.
		s.events.LogEvent(ctx, &models.SecurityEvent{
			EventType:  models.EventLockout,
			Severity:   models.SeverityCritical,
			Identifier: &identifier,
			IPAddress:  &ip,
			UserAgent:  &userAgent,
			Blocked:    true,
			Details: models.EventDetails{
				"attempts":      attempts,
				"lockout_until": lockedUntil.Format(time.RFC3339),
			},
		})

		return &models.LoginCheck{
			Allowed:         false,
			RequiresCaptcha: true,
			LockoutUntil:    &lockedUntil,
		}, nil
	}

	requiresCaptcha := attempts >= s.config.CaptchaThreshold
	if attempts == s.config.CaptchaThreshold {
		s.events.LogEvent(ctx, &models.SecurityEvent{
			EventType:  models.EventCaptchaRequired,
			Severity:   models.SeverityMedium,
			Identifier: &identifier,
			IPAddress:  &ip,
			UserAgent:  &userAgent,
			Details:    models.EventDetails{"attempts": attempts},
		})
	}

	s.events.LogEvent(ctx, &models.SecurityEvent{
		EventType:  models.EventLoginAttempt,
		Severity:   models.SeverityLow,
		Identifier: &identifier,
		IPAddress:  &ip,
		UserAgent:  &userAgent,
		Details:    models.EventDetails{"success": false, "attempts": attempts},
	})

	remaining := s.config.LockoutThreshold - attempts
	return &models.LoginCheck{
		Allowed:           true,
		RequiresCaptcha:   requiresCaptcha,
		RemainingAttempts: &remaining,
	}, nil
}

// AttemptRecord assembles the full attempt-tracking state for one identifier
// from its store keys. This is the fail-closed read behind the admin attempt
// inspection endpoint; a store error is returned, not masked.
func (s *GuardService) AttemptRecord(ctx context.Context, identifier string) (*models.AttemptRecord, error) {
	record := &models.AttemptRecord{Identifier: identifier}

	if val, err := s.kv.Get(ctx, store.AttemptCountKey(identifier)); err == nil {
		if n, parseErr := strconv.Atoi(val); parseErr == nil {
			record.Attempts = n
		}
	} else if err != store.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if val, err := s.kv.Get(ctx, store.AttemptFirstKey(identifier)); err == nil {
		if ts, parseErr := time.Parse(time.RFC3339, val); parseErr == nil {
			record.FirstAttempt = ts
		}
	} else if err != store.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	if val, err := s.kv.Get(ctx, store.AttemptLastKey(identifier)); err == nil {
		if ts, parseErr := time.Parse(time.RFC3339, val); parseErr == nil {
			record.LastAttempt = ts
		}
	} else if err != store.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	until, err := s.lockoutUntil(ctx, identifier)
	if err != nil {
		return nil, err
	}
	record.LockoutUntil = until
	record.CaptchaRequired = record.Attempts >= s.config.CaptchaThreshold || record.Locked(time.Now())

	return record, nil
}

// GetAccountStatus is a pure advisory read used by the login form to pre-warn
// the user. Store failures degrade to the zero value instead of blocking.
func (s *GuardService) GetAccountStatus(ctx context.Context, identifier string) *models.AccountStatus {
	record, err := s.AttemptRecord(ctx, identifier)
	if err != nil {
		s.logger.Warn("account status read degraded",
			slog.String("identifier", identifier),
			slog.Any("error", err))
		return &models.AccountStatus{}
	}

	status := &models.AccountStatus{
		Attempts:        record.Attempts,
		RequiresCaptcha: record.CaptchaRequired,
	}
	if record.Locked(time.Now()) {
		status.LockoutUntil = record.LockoutUntil
	}

	return status
}

// ResetAccountAttempts is the administrative override used by support
// tooling. It bypasses normal flow and clears lockouts immediately.
func (s *GuardService) ResetAccountAttempts(ctx context.Context, identifier string) error {
	cleared, err := s.clearAttempts(ctx, identifier)
	if err != nil {
		return fmt.Errorf("attempt reset failed: %w", err)
	}

	s.events.LogEvent(ctx, &models.SecurityEvent{
		EventType:  models.EventAttemptsReset,
		Severity:   models.SeverityMedium,
		Identifier: &identifier,
		Details:    models.EventDetails{"attempts_cleared": cleared, "admin_override": true},
	})

	return nil
}

// lockoutUntil reads the lockout marker. A marker that cannot be parsed is
// corrupted state: it is deleted and treated as unlocked.
func (s *GuardService) lockoutUntil(ctx context.Context, identifier string) (*time.Time, error) {
	val, err := s.kv.Get(ctx, store.AttemptLockKey(identifier))
	if err == store.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	until, parseErr := time.Parse(time.RFC3339, val)
	if parseErr != nil {
		s.logger.Warn("corrupted lockout marker removed",
			slog.String("identifier", identifier))
		_ = s.kv.Del(ctx, store.AttemptLockKey(identifier))
		return nil, nil
	}

	return &until, nil
}

func (s *GuardService) clearAttempts(ctx context.Context, identifier string) (int, error) {
	cleared := 0
	if val, err := s.kv.Get(ctx, store.AttemptCountKey(identifier)); err == nil {
		if n, parseErr := strconv.Atoi(val); parseErr == nil {
			cleared = n
		}
	}

	err := s.kv.Del(ctx,
		store.AttemptCountKey(identifier),
		store.AttemptFirstKey(identifier),
		store.AttemptLastKey(identifier),
		store.AttemptLockKey(identifier),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return cleared, nil
}

// DeviceFingerprint hashes IP + User-Agent into a short device identifier
func DeviceFingerprint(ip, userAgent string) string {
	hash := sha256.Sum256([]byte(ip + ":" + userAgent))
	return fmt.Sprintf("%x", hash)[:32]
}
