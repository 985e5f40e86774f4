package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/storely/gatehouse/internal/auth"
	"github.com/storely/gatehouse/internal/models"
	pkghttp "github.com/storely/gatehouse/pkg/http"
)

// SessionCookieName is the cookie carrying the opaque session identifier
const SessionCookieName = "gh_session"

// StepUpProofHeader carries the signed step-up proof on sensitive requests
const StepUpProofHeader = "X-StepUp-Proof"

type contextKey string

const sessionContextKey contextKey = "session"

// SessionValidator defines the interface for session validation
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID, ip, userAgent string) (*models.ValidationResult, error)
}

// SessionAuth validates the presented session and injects the validation
// result into the request context. Invalid or expired sessions get a 401
// carrying the should_refresh hint so the client can distinguish "lapsed,
// retry after re-login" from "never existed". A store outage is a 503: the
// middleware fails closed.
func SessionAuth(validator SessionValidator, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := extractSessionID(r)
			if sessionID == "" {
				pkghttp.WriteUnauthorized(w, "Missing session")
				return
			}

			ip := pkghttp.ExtractClientIP(r, ipConfig)
			userAgent := r.Header.Get("User-Agent")

			result, err := validator.ValidateSession(r.Context(), sessionID, ip, userAgent)
			if err != nil {
				pkghttp.WriteServiceUnavailable(w, "Unable to verify session")
				return
			}

			if !result.IsValid {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				if result.ShouldRefresh {
					w.Write([]byte(`{"error":"session_expired","should_refresh":true}`))
				} else {
					w.Write([]byte(`{"error":"session_invalid","should_refresh":false}`))
				}
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the validation result stored by SessionAuth
func SessionFromContext(ctx context.Context) (*models.ValidationResult, bool) {
	result, ok := ctx.Value(sessionContextKey).(*models.ValidationResult)
	return result, ok
}

// ContextWithSession injects a validation result the way SessionAuth does.
// Used by handler tests and internal dispatch.
func ContextWithSession(ctx context.Context, result *models.ValidationResult) context.Context {
	return context.WithValue(ctx, sessionContextKey, result)
}

// RequireRole rejects requests whose session does not carry the given role
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := SessionFromContext(r.Context())
			if !ok || result.Session == nil {
				pkghttp.WriteUnauthorized(w, "Missing session")
				return
			}
			if result.Session.Role != role {
				pkghttp.WriteForbidden(w, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStepUp enforces step-up authentication on sensitive endpoints.
// When the session's validation demanded re-auth, the request must carry a
// valid proof bound to this session; otherwise it is rejected with a
// machine-readable reauth_required error and the session stays alive.
func RequireStepUp(stepup *auth.StepUpManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, ok := SessionFromContext(r.Context())
			if !ok || result.Session == nil {
				pkghttp.WriteUnauthorized(w, "Missing session")
				return
			}

			if result.RequiresReauth {
				proof := r.Header.Get(StepUpProofHeader)
				if proof == "" {
					pkghttp.WriteError(w, http.StatusUnauthorized, "reauth_required", "Step-up authentication required")
					return
				}
				if _, err := stepup.VerifyProof(proof, result.Session.ID); err != nil {
					pkghttp.WriteError(w, http.StatusUnauthorized, "reauth_required", "Step-up proof rejected")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractSessionID reads the session identifier from the cookie, falling
// back to a Bearer token for non-browser clients.
func extractSessionID(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	return ""
}
