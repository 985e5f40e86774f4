package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storely/gatehouse/internal/handlers"
	"github.com/storely/gatehouse/internal/middleware"
	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/services"
)

type mockAuthService struct {
	LoginFunc     func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error)
	LogoutFunc    func(ctx context.Context, sessionID string) error
	LogoutAllFunc func(ctx context.Context, userID uuid.UUID, exceptSessionID string) (int, error)
}

func (m *mockAuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error) {
	return m.LoginFunc(ctx, email, password, ip, userAgent)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) LogoutAll(ctx context.Context, userID uuid.UUID, exceptSessionID string) (int, error) {
	if m.LogoutAllFunc != nil {
		return m.LogoutAllFunc(ctx, userID, exceptSessionID)
	}
	return 0, nil
}

type mockGuardService struct {
	GetAccountStatusFunc func(ctx context.Context, identifier string) *models.AccountStatus
}

func (m *mockGuardService) GetAccountStatus(ctx context.Context, identifier string) *models.AccountStatus {
	if m.GetAccountStatusFunc != nil {
		return m.GetAccountStatusFunc(ctx, identifier)
	}
	return &models.AccountStatus{}
}

type mockRefresher struct {
	RefreshSessionFunc func(ctx context.Context, sessionID string) (time.Time, error)
}

func (m *mockRefresher) RefreshSession(ctx context.Context, sessionID string) (time.Time, error) {
	return m.RefreshSessionFunc(ctx, sessionID)
}

func newAuthHandler(service *mockAuthService, guard *mockGuardService, refresher *mockRefresher) *handlers.AuthHandler {
	if guard == nil {
		guard = &mockGuardService{}
	}
	return handlers.NewAuthHandler(service, guard, refresher, nil, false)
}

func postLogin(t *testing.T, handler *handlers.AuthHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.Login(w, r)
	return w
}

func TestLoginHandler_Success(t *testing.T) {
	userID := uuid.New()
	service := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error) {
			assert.Equal(t, "user@example.com", email)
			return &services.LoginResult{
				Authenticated: true,
				SessionID:     "session-abc",
				Session: &models.Session{
					ID:        "session-abc",
					UserID:    userID,
					Email:     email,
					Role:      "customer",
					ExpiresAt: time.Now().Add(24 * time.Hour),
				},
				Check: &models.LoginCheck{Allowed: true},
			}, nil
		},
	}

	w := postLogin(t, newAuthHandler(service, nil, nil), `{"email":"User@Example.COM","password":"hunter22"}`)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "session-abc", resp.SessionID)
	assert.Equal(t, "customer", resp.Role)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)
	assert.Equal(t, "session-abc", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLoginHandler_InvalidBody(t *testing.T) {
	service := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error) {
			t.Fatal("service must not be called on invalid input")
			return nil, nil
		},
	}

	w := postLogin(t, newAuthHandler(service, nil, nil), `{"em`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postLogin(t, newAuthHandler(service, nil, nil), `{"email":"not-an-email","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginHandler_GuardDenied(t *testing.T) {
	until := time.Now().Add(15 * time.Minute)
	service := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{
				Check: &models.LoginCheck{
					Allowed:         false,
					RequiresCaptcha: true,
					LockoutUntil:    &until,
				},
			}, nil
		},
	}

	w := postLogin(t, newAuthHandler(service, nil, nil), `{"email":"user@example.com","password":"hunter22"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp handlers.LoginDeniedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.RequiresCaptcha)
	assert.NotNil(t, resp.LockoutUntil)
}

func TestLoginHandler_BadCredentialsAreGeneric(t *testing.T) {
	remaining := 3
	service := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{
				Authenticated: false,
				Check: &models.LoginCheck{
					Allowed:           true,
					RemainingAttempts: &remaining,
				},
			}, nil
		},
	}

	w := postLogin(t, newAuthHandler(service, nil, nil), `{"email":"user@example.com","password":"wrong-password"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp handlers.LoginDeniedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Authentication failed", resp.Error)
	if assert.NotNil(t, resp.RemainingAttempts) {
		assert.Equal(t, 3, *resp.RemainingAttempts)
	}
}

func TestLoginHandler_StoreErrorIs503(t *testing.T) {
	service := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, errors.New("store down")
		},
	}

	w := postLogin(t, newAuthHandler(service, nil, nil), `{"email":"user@example.com","password":"hunter22"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAccountStatusHandler(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	guard := &mockGuardService{
		GetAccountStatusFunc: func(ctx context.Context, identifier string) *models.AccountStatus {
			assert.Equal(t, "user@example.com", identifier)
			return &models.AccountStatus{Attempts: 4, RequiresCaptcha: true, LockoutUntil: &until}
		},
	}
	handler := newAuthHandler(&mockAuthService{}, guard, nil)

	r := httptest.NewRequest("GET", "/auth/status?email=User@Example.com", nil)
	w := httptest.NewRecorder()
	handler.AccountStatus(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.AccountStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Attempts)
	assert.True(t, resp.RequiresCaptcha)
	assert.NotNil(t, resp.LockoutUntil)
}

func TestAccountStatusHandler_MissingEmail(t *testing.T) {
	handler := newAuthHandler(&mockAuthService{}, nil, nil)

	r := httptest.NewRequest("GET", "/auth/status", nil)
	w := httptest.NewRecorder()
	handler.AccountStatus(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshHandler_MissingSessionIs401(t *testing.T) {
	refresher := &mockRefresher{
		RefreshSessionFunc: func(ctx context.Context, sessionID string) (time.Time, error) {
			return time.Time{}, models.ErrSessionNotFound
		},
	}
	handler := newAuthHandler(&mockAuthService{}, nil, refresher)

	r := requestWithSession(httptest.NewRequest("POST", "/auth/refresh", nil), "session-abc")
	w := httptest.NewRecorder()
	handler.Refresh(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutHandler(t *testing.T) {
	var loggedOut string
	service := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, nil
		},
		LogoutFunc: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}
	handler := newAuthHandler(service, nil, nil)

	r := requestWithSession(httptest.NewRequest("POST", "/auth/logout", nil), "session-abc")
	w := httptest.NewRecorder()
	handler.Logout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "session-abc", loggedOut)

	// Cookie is cleared
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
