package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/middleware"
	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/services"
	pkghttp "github.com/storely/gatehouse/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, userID uuid.UUID, exceptSessionID string) (int, error)
}

// GuardServiceInterface defines the guard operations the HTTP layer needs
type GuardServiceInterface interface {
	GetAccountStatus(ctx context.Context, identifier string) *models.AccountStatus
}

// SessionRefresher extends a session's absolute expiry
type SessionRefresher interface {
	RefreshSession(ctx context.Context, sessionID string) (time.Time, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	guard    GuardServiceInterface
	sessions SessionRefresher
	ipConfig *pkghttp.IPConfig
	secure   bool
}

// NewAuthHandler creates a new AuthHandler. secure controls the Secure flag
// on issued session cookies.
func NewAuthHandler(service AuthServiceInterface, guard GuardServiceInterface, sessions SessionRefresher, ipConfig *pkghttp.IPConfig, secure bool) *AuthHandler {
	return &AuthHandler{
		service:  service,
		guard:    guard,
		sessions: sessions,
		ipConfig: ipConfig,
		secure:   secure,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginDeniedResponse is returned when credentials fail or the guard blocks
type LoginDeniedResponse struct {
	Error             string     `json:"error"`
	RequiresCaptcha   bool       `json:"requires_captcha,omitempty"`
	RemainingAttempts *int       `json:"remaining_attempts,omitempty"`
	LockoutUntil      *time.Time `json:"lockout_until,omitempty"`
}

// AccountStatusResponse reports guard state for a pre-login form
type AccountStatusResponse struct {
	Attempts        int        `json:"attempts"`
	RequiresCaptcha bool       `json:"requires_captcha"`
	LockoutUntil    *time.Time `json:"lockout_until,omitempty"`
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		// Guard state was unreadable; deny rather than skip the lockout check.
		pkghttp.WriteServiceUnavailable(w, "Authentication temporarily unavailable")
		return
	}

	if result.Check != nil && !result.Check.Allowed {
		pkghttp.WriteJSON(w, http.StatusTooManyRequests, LoginDeniedResponse{
			Error:           "Too many failed login attempts. Please try again later.",
			RequiresCaptcha: true,
			LockoutUntil:    result.Check.LockoutUntil,
		})
		return
	}

	if !result.Authenticated {
		// Generic message for both unknown account and wrong password
		resp := LoginDeniedResponse{Error: "Authentication failed"}
		if result.Check != nil {
			resp.RequiresCaptcha = result.Check.RequiresCaptcha
			resp.RemainingAttempts = result.Check.RemainingAttempts
		}
		pkghttp.WriteJSON(w, http.StatusUnauthorized, resp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.SessionID,
		Path:     "/",
		Expires:  result.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		SessionID: result.SessionID,
		UserID:    result.Session.UserID.String(),
		Email:     result.Session.Email,
		Role:      result.Session.Role,
		ExpiresAt: result.Session.ExpiresAt,
	})
}

// Logout destroys the caller's session and clears the cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.SessionFromContext(r.Context())
	if !ok || result.Session == nil {
		pkghttp.WriteUnauthorized(w, "Missing session")
		return
	}

	if err := h.service.Logout(r.Context(), result.Session.ID); err != nil {
		pkghttp.WriteServiceUnavailable(w, "Unable to destroy session")
		return
	}

	clearSessionCookie(w, h.secure)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// LogoutAll revokes every other session the user holds
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.SessionFromContext(r.Context())
	if !ok || result.Session == nil {
		pkghttp.WriteUnauthorized(w, "Missing session")
		return
	}

	revoked, err := h.service.LogoutAll(r.Context(), result.Session.UserID, result.Session.ID)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Unable to revoke sessions")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}

// Refresh extends the caller's session lifetime and re-issues the cookie
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.SessionFromContext(r.Context())
	if !ok || result.Session == nil {
		pkghttp.WriteUnauthorized(w, "Missing session")
		return
	}

	expiresAt, err := h.sessions.RefreshSession(r.Context(), result.Session.ID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			pkghttp.WriteUnauthorized(w, "Session no longer exists")
			return
		}
		pkghttp.WriteServiceUnavailable(w, "Unable to refresh session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.Session.ID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	pkghttp.WriteJSON(w, http.StatusOK, map[string]time.Time{"expires_at": expiresAt})
}

// AccountStatus reports whether a login form should present a captcha.
// The read is advisory: on store trouble it reports a clean account.
func (h *AuthHandler) AccountStatus(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		pkghttp.WriteBadRequest(w, "Missing email parameter")
		return
	}

	status := h.guard.GetAccountStatus(r.Context(), email)
	pkghttp.WriteJSON(w, http.StatusOK, AccountStatusResponse{
		Attempts:        status.Attempts,
		RequiresCaptcha: status.RequiresCaptcha,
		LockoutUntil:    status.LockoutUntil,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
