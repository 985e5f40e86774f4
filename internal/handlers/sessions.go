package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/auth"
	"github.com/storely/gatehouse/internal/middleware"
	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/services"
	pkghttp "github.com/storely/gatehouse/pkg/http"
)

// SessionManagerInterface defines the session operations the HTTP layer needs
type SessionManagerInterface interface {
	GetUserSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)
	DestroySession(ctx context.Context, sessionID string) error
}

// StepUpUserStore is the slice of the user repository step-up needs
type StepUpUserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error
}

// SessionHandler handles session introspection and step-up endpoints
type SessionHandler struct {
	sessions SessionManagerInterface
	users    StepUpUserStore
	stepup   *auth.StepUpManager
	events   services.SecurityEventLogger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionManagerInterface, users StepUpUserStore, stepup *auth.StepUpManager, events services.SecurityEventLogger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		users:    users,
		stepup:   stepup,
		events:   events,
	}
}

// SessionInfo is the client-facing view of one active session
type SessionInfo struct {
	ID           string    `json:"id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current"`
}

// StepUpVerifyRequest carries a TOTP code for step-up verification
type StepUpVerifyRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// StepUpProofResponse returns the signed proof for sensitive requests
type StepUpProofResponse struct {
	Proof     string    `json:"proof"`
	ExpiresAt time.Time `json:"expires_at"`
}

// List returns every active session the caller holds
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.SessionFromContext(r.Context())
	if !ok || result.Session == nil {
		pkghttp.WriteUnauthorized(w, "Missing session")
		return
	}

	sessions, err := h.sessions.GetUserSessions(r.Context(), result.Session.UserID)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Unable to list sessions")
		return
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			ID:           s.ID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.ID == result.Session.ID,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": infos})
}

// Revoke destroys one of the caller's own sessions by ID
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.SessionFromContext(r.Context())
	if !ok || result.Session == nil {
		pkghttp.WriteUnauthorized(w, "Missing session")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "Missing session ID")
		return
	}

	// Ownership check: the target must appear in the caller's own index
	sessions, err := h.sessions.GetUserSessions(r.Context(), result.Session.UserID)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Unable to verify session ownership")
		return
	}

	owned := false
	for _, s := range sessions {
		if s.ID == sessionID {
			owned = true
			break
		}
	}
	if !owned {
		pkghttp.WriteNotFound(w, "Session not found")
		return
	}

	if err := h.sessions.DestroySession(r.Context(), sessionID); err != nil {
		pkghttp.WriteServiceUnavailable(w, "Unable to destroy session")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Session revoked"})
}

// StepUpEnroll generates a TOTP secret for the caller and returns the
// otpauth URL plus a QR code for authenticator apps
func (h *SessionHandler) StepUpEnroll(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.SessionFromContext(r.Context())
	if !ok || result.Session == nil {
		pkghttp.WriteUnauthorized(w, "Missing session")
		return
	}

	enrollment, err := h.stepup.GenerateEnrollment(result.Session.Email)
	if err != nil {
		pkghttp.WriteInternalError(w, "Unable to generate enrollment")
		return
	}

	if err := h.users.SetTOTPSecret(r.Context(), result.Session.UserID, enrollment.Secret); err != nil {
		pkghttp.WriteInternalError(w, "Unable to store enrollment")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, enrollment)
}

// StepUpVerify checks a TOTP code and, on success, issues a short-lived
// proof bound to the caller's session
func (h *SessionHandler) StepUpVerify(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.SessionFromContext(r.Context())
	if !ok || result.Session == nil {
		pkghttp.WriteUnauthorized(w, "Missing session")
		return
	}

	var req StepUpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.users.GetByID(r.Context(), result.Session.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Unable to load account")
		return
	}
	if user.TOTPSecret == nil {
		pkghttp.WriteBadRequest(w, "Step-up not enrolled")
		return
	}

	if !h.stepup.VerifyCode(*user.TOTPSecret, req.Code) {
		pkghttp.WriteUnauthorized(w, "Invalid code")
		return
	}

	proof, err := h.stepup.IssueProof(result.Session.ID, user.ID.String())
	if err != nil {
		pkghttp.WriteInternalError(w, "Unable to issue proof")
		return
	}

	h.events.LogEvent(r.Context(), &models.SecurityEvent{
		EventType: models.EventStepUpVerified,
		Severity:  models.SeverityLow,
		UserID:    &user.ID,
		IPAddress: &result.Session.IPAddress,
		Details:   models.EventDetails{"session_id": result.Session.ID},
	})

	pkghttp.WriteJSON(w, http.StatusOK, StepUpProofResponse{
		Proof:     proof,
		ExpiresAt: time.Now().Add(h.stepup.ProofTTL()),
	})
}
