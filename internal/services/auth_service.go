package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/models"
	pkgauth "github.com/storely/gatehouse/pkg/auth"
	pkglogger "github.com/storely/gatehouse/pkg/logger"
)

// UserRepository defines the interface for user account lookups
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error
}

// LoginResult is what the login route branches on. Authenticated=false with
// Check.Allowed=true means bad credentials; Check.Allowed=false means the
// guard denied the attempt regardless of credentials.
type LoginResult struct {
	Authenticated bool
	SessionID     string
	Session       *models.Session
	Check         *models.LoginCheck
}

// AuthService orchestrates a login: guard pre-gate, credential check, guard
// outcome recording, session issuance.
type AuthService struct {
	users    UserRepository
	guard    *GuardService
	sessions *SessionService
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserRepository, guard *GuardService, sessions *SessionService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		guard:    guard,
		sessions: sessions,
		logger:   logger,
	}
}

// Login runs the full authentication flow for one request. A store failure
// on the guard path is returned as an error and the caller must deny.
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	locked, until, err := s.guard.CheckLockout(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("login denied, lockout state unknown: %w", err)
	}
	if locked {
		return &LoginResult{
			Check: &models.LoginCheck{
				Allowed:         false,
				RequiresCaptcha: true,
				LockoutUntil:    until,
			},
		}, nil
	}

	user, verifyErr := s.verifyCredentials(ctx, email, password)
	success := verifyErr == nil

	check, err := s.guard.CheckLoginAttempt(ctx, email, ip, userAgent, success)
	if err != nil {
		return nil, fmt.Errorf("login denied, attempt tracking unavailable: %w", err)
	}

	if !success {
		s.logger.Info("login failed",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("ip_address", ip))
		return &LoginResult{Authenticated: false, Check: check}, nil
	}

	sessionID, session, err := s.sessions.CreateSession(ctx, user.ID, user.Email, user.Role, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("login succeeded",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("user_id", user.ID.String()))

	return &LoginResult{
		Authenticated: true,
		SessionID:     sessionID,
		Session:       session,
		Check:         check,
	}, nil
}

// verifyCredentials is the credential-verifier collaborator: it never
// distinguishes unknown-email from wrong-password to the caller.
func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a hash comparison anyway so response timing does not
			// leak account existence.
			pkgauth.CheckPassword(pkgauth.DummyHash, password)
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !pkgauth.CheckPassword(user.PasswordHash, password) {
		return nil, models.ErrInvalidCredentials
	}

	return user, nil
}

// Logout destroys the presented session. Idempotent.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.DestroySession(ctx, sessionID)
}

// LogoutAll revokes every session the user holds except, optionally, the
// one making the request.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID, exceptSessionID string) (int, error) {
	return s.sessions.DestroyAllUserSessions(ctx, userID, exceptSessionID)
}
