package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/models"
	pkghttp "github.com/storely/gatehouse/pkg/http"
)

// GuardAdminInterface defines the guard operations exposed to operators
type GuardAdminInterface interface {
	ResetAccountAttempts(ctx context.Context, identifier string) error
	AttemptRecord(ctx context.Context, identifier string) (*models.AttemptRecord, error)
}

// SessionAdminInterface defines the session operations exposed to operators
type SessionAdminInterface interface {
	AdminRevokeUserSessions(ctx context.Context, userID uuid.UUID) (int, error)
	ActiveSessionCount(ctx context.Context) (int, error)
}

// EventQueryInterface defines the audit queries exposed to operators
type EventQueryInterface interface {
	GetSecurityMetrics(ctx context.Context, window time.Duration) (*models.SecurityMetrics, error)
	RecentForIdentifier(ctx context.Context, identifier string, limit, offset int) ([]*models.SecurityEvent, error)
	RecentForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.SecurityEvent, error)
}

// AdminHandler handles operator endpoints for the security subsystem
type AdminHandler struct {
	guard    GuardAdminInterface
	sessions SessionAdminInterface
	events   EventQueryInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(guard GuardAdminInterface, sessions SessionAdminInterface, events EventQueryInterface) *AdminHandler {
	return &AdminHandler{
		guard:    guard,
		sessions: sessions,
		events:   events,
	}
}

// ResetAttemptsRequest identifies the account to unlock
type ResetAttemptsRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
}

// ResetAttempts clears the failed-attempt counter and any lockout for an account
func (h *AdminHandler) ResetAttempts(w http.ResponseWriter, r *http.Request) {
	var req ResetAttemptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Identifier = strings.ToLower(strings.TrimSpace(req.Identifier))

	if err := h.guard.ResetAccountAttempts(r.Context(), req.Identifier); err != nil {
		pkghttp.WriteServiceUnavailable(w, "Unable to reset attempts")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Attempts reset"})
}

// AttemptDetail reports the raw attempt-tracking record for an identifier,
// including first/last attempt timestamps
func (h *AdminHandler) AttemptDetail(w http.ResponseWriter, r *http.Request) {
	identifier := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("identifier")))
	if identifier == "" {
		pkghttp.WriteBadRequest(w, "Provide identifier")
		return
	}

	record, err := h.guard.AttemptRecord(r.Context(), identifier)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Attempt record unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, record)
}

// RevokeUserSessions destroys every session a user holds
func (h *AdminHandler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user ID")
		return
	}

	revoked, err := h.sessions.AdminRevokeUserSessions(r.Context(), userID)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Unable to revoke sessions")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}

// MetricsResponse combines aggregate audit counts with the live session gauge
type MetricsResponse struct {
	Window         string                  `json:"window"`
	ActiveSessions int                     `json:"active_sessions"`
	Metrics        *models.SecurityMetrics `json:"metrics"`
}

// Metrics reports security metrics over a window (default 24h)
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			pkghttp.WriteBadRequest(w, "Invalid window duration")
			return
		}
		window = parsed
	}

	metrics, err := h.events.GetSecurityMetrics(r.Context(), window)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Unable to compute metrics")
		return
	}

	// The gauge is best-effort; a store hiccup should not fail the report
	active, err := h.sessions.ActiveSessionCount(r.Context())
	if err != nil {
		active = -1
	}

	pkghttp.WriteJSON(w, http.StatusOK, MetricsResponse{
		Window:         window.String(),
		ActiveSessions: active,
		Metrics:        metrics,
	})
}

// RecentEvents lists audit events filtered by identifier or user ID
func (h *AdminHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)

	if identifier := strings.TrimSpace(r.URL.Query().Get("identifier")); identifier != "" {
		events, err := h.events.RecentForIdentifier(r.Context(), strings.ToLower(identifier), limit, offset)
		if err != nil {
			pkghttp.WriteServiceUnavailable(w, "Unable to query events")
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events})
		return
	}

	if rawUserID := r.URL.Query().Get("user_id"); rawUserID != "" {
		userID, err := uuid.Parse(rawUserID)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid user ID")
			return
		}
		events, err := h.events.RecentForUser(r.Context(), userID, limit, offset)
		if err != nil {
			pkghttp.WriteServiceUnavailable(w, "Unable to query events")
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events})
		return
	}

	pkghttp.WriteBadRequest(w, "Provide identifier or user_id")
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
