package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/storely/gatehouse/internal/auth"
	"github.com/storely/gatehouse/internal/handlers"
	"github.com/storely/gatehouse/internal/middleware"
	pkghttp "github.com/storely/gatehouse/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	adminHandler *handlers.AdminHandler,
	validator middleware.SessionValidator,
	stepup *auth.StepUpManager,
	ipConfig *pkghttp.IPConfig,
) {
	// Public routes - no session required
	router.With(middleware.RateLimitByIP(middleware.LoginRateLimit())).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(middleware.StatusRateLimit())).Get("/auth/status", authHandler.AccountStatus)

	// Session-authenticated routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(validator, ipConfig))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Post("/auth/refresh", authHandler.Refresh)

		r.Get("/sessions", sessionHandler.List)
		r.Delete("/sessions/{sessionID}", sessionHandler.Revoke)

		r.Post("/stepup/enroll", sessionHandler.StepUpEnroll)
		r.Post("/stepup/verify", sessionHandler.StepUpVerify)

		// Admin-only routes; sensitive actions demand step-up when the
		// session validation flagged re-auth
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Use(middleware.RequireStepUp(stepup))

			r.Post("/admin/attempts/reset", adminHandler.ResetAttempts)
			r.Get("/admin/attempts", adminHandler.AttemptDetail)
			r.Delete("/admin/users/{userID}/sessions", adminHandler.RevokeUserSessions)
			r.Get("/admin/metrics", adminHandler.Metrics)
			r.Get("/admin/events", adminHandler.RecentEvents)
		})
	})
}
