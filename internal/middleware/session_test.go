package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storely/gatehouse/internal/auth"
	"github.com/storely/gatehouse/internal/middleware"
	"github.com/storely/gatehouse/internal/models"
)

type mockValidator struct {
	ValidateSessionFunc func(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error)
}

func (m *mockValidator) ValidateSession(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error) {
	return m.ValidateSessionFunc(ctx, sessionID, ip, userAgent)
}

func validResult(role string) *models.ValidationResult {
	return &models.ValidationResult{
		IsValid: true,
		Session: &models.Session{
			ID:     "session-abc",
			UserID: uuid.New(),
			Email:  "user@example.com",
			Role:   role,
		},
	}
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionAuth_ValidCookie(t *testing.T) {
	var gotSessionID string
	validator := &mockValidator{
		ValidateSessionFunc: func(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error) {
			gotSessionID = sessionID
			return validResult("customer"), nil
		},
	}

	var called bool
	handler := middleware.SessionAuth(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		result, ok := middleware.SessionFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "session-abc", result.Session.ID)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "cookie-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cookie-session", gotSessionID)
}

func TestSessionAuth_BearerFallback(t *testing.T) {
	var gotSessionID string
	validator := &mockValidator{
		ValidateSessionFunc: func(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error) {
			gotSessionID = sessionID
			return validResult("customer"), nil
		},
	}

	var called bool
	handler := middleware.SessionAuth(validator, nil)(okHandler(&called))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer header-session")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.True(t, called)
	assert.Equal(t, "header-session", gotSessionID)
}

func TestSessionAuth_MissingSession(t *testing.T) {
	validator := &mockValidator{
		ValidateSessionFunc: func(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error) {
			t.Fatal("validator must not be called without a session id")
			return nil, nil
		},
	}

	var called bool
	handler := middleware.SessionAuth(validator, nil)(okHandler(&called))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionAuth_ExpiredSessionSignalsRefresh(t *testing.T) {
	validator := &mockValidator{
		ValidateSessionFunc: func(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error) {
			return &models.ValidationResult{IsValid: false, ShouldRefresh: true}, nil
		},
	}

	var called bool
	handler := middleware.SessionAuth(validator, nil)(okHandler(&called))

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "stale"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["should_refresh"])
}

func TestSessionAuth_StoreErrorIs503(t *testing.T) {
	validator := &mockValidator{
		ValidateSessionFunc: func(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error) {
			return nil, errors.New("store down")
		},
	}

	var called bool
	handler := middleware.SessionAuth(validator, nil)(okHandler(&called))

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "any"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func withSession(r *http.Request, result *models.ValidationResult) *http.Request {
	validator := &mockValidator{
		ValidateSessionFunc: func(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error) {
			return result, nil
		},
	}
	var captured *http.Request
	handler := middleware.SessionAuth(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		captured = req
	}))
	r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"})
	handler.ServeHTTP(httptest.NewRecorder(), r)
	return captured
}

func TestRequireRole(t *testing.T) {
	var called bool
	handler := middleware.RequireRole("admin")(okHandler(&called))

	r := withSession(httptest.NewRequest("GET", "/", nil), validResult("customer"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = withSession(httptest.NewRequest("GET", "/", nil), validResult("admin"))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func newStepUpManager(t *testing.T) *auth.StepUpManager {
	t.Helper()
	m, err := auth.NewStepUpManager(auth.StepUpConfig{
		Issuer:    "gatehouse-test",
		JWTSecret: "0123456789abcdef0123456789abcdef",
		ProofTTL:  time.Minute,
	})
	require.NoError(t, err)
	return m
}

func TestRequireStepUp_PassesWhenNoReauthNeeded(t *testing.T) {
	stepup := newStepUpManager(t)

	var called bool
	handler := middleware.RequireStepUp(stepup)(okHandler(&called))

	r := withSession(httptest.NewRequest("GET", "/", nil), validResult("admin"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.True(t, called)
}

func TestRequireStepUp_DemandsProofOnReauth(t *testing.T) {
	stepup := newStepUpManager(t)

	result := validResult("admin")
	result.RequiresReauth = true

	var called bool
	handler := middleware.RequireStepUp(stepup)(okHandler(&called))

	// No proof header
	r := withSession(httptest.NewRequest("GET", "/", nil), result)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid proof bound to the session
	proof, err := stepup.IssueProof("session-abc", "user-1")
	require.NoError(t, err)

	base := httptest.NewRequest("GET", "/", nil)
	base.Header.Set(middleware.StepUpProofHeader, proof)
	r = withSession(base, result)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.True(t, called)

	// Proof bound to a different session
	called = false
	otherProof, err := stepup.IssueProof("session-other", "user-1")
	require.NoError(t, err)

	base = httptest.NewRequest("GET", "/", nil)
	base.Header.Set(middleware.StepUpProofHeader, otherProof)
	r = withSession(base, result)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
