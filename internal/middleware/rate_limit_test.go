package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/storely/gatehouse/internal/middleware"
)

func TestRateLimitByIP(t *testing.T) {
	limited := middleware.RateLimitByIP(middleware.RateLimitConfig{Requests: 2, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	doRequest := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, doRequest("203.0.113.1:1000").Code)
	assert.Equal(t, http.StatusOK, doRequest("203.0.113.1:1001").Code)

	rec := doRequest("203.0.113.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Rate limit exceeded"}`, rec.Body.String())

	// A different client is keyed separately
	assert.Equal(t, http.StatusOK, doRequest("198.51.100.7:1000").Code)
}

func TestRateLimitTiers(t *testing.T) {
	assert.Greater(t, middleware.StatusRateLimit().Requests, middleware.LoginRateLimit().Requests)
}
