package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds per-route rate limiting settings
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// LoginRateLimit throttles credential submissions ahead of the guard
// thresholds: the limiter caps raw request volume per IP, the guard caps
// failures per account.
func LoginRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: 1 * time.Minute}
}

// StatusRateLimit is looser than the login limit; the status read is an
// advisory poll from login forms and carries no credentials.
func StatusRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 30, Window: 1 * time.Minute}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Rate limit exceeded"}`))
		}),
	)
}
