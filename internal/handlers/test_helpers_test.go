package handlers_test

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/storely/gatehouse/internal/middleware"
	"github.com/storely/gatehouse/internal/models"
)

var testUserID = uuid.New()

// requestWithSession attaches an authenticated session context to a request,
// mirroring what the session middleware does.
func requestWithSession(r *http.Request, sessionID string) *http.Request {
	result := &models.ValidationResult{
		IsValid: true,
		Session: &models.Session{
			ID:           sessionID,
			UserID:       testUserID,
			Email:        "user@example.com",
			Role:         "customer",
			IPAddress:    "203.0.113.1",
			UserAgent:    "Mozilla/5.0",
			CreatedAt:    time.Now(),
			LastActivity: time.Now(),
			ExpiresAt:    time.Now().Add(24 * time.Hour),
		},
	}
	return r.WithContext(middleware.ContextWithSession(r.Context(), result))
}
