package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/storely/gatehouse/internal/auth"
	"github.com/storely/gatehouse/internal/background"
	"github.com/storely/gatehouse/internal/config"
	"github.com/storely/gatehouse/internal/database"
	"github.com/storely/gatehouse/internal/handlers"
	middlewareCustom "github.com/storely/gatehouse/internal/middleware"
	"github.com/storely/gatehouse/internal/models"
	"github.com/storely/gatehouse/internal/repositories"
	"github.com/storely/gatehouse/internal/routes"
	"github.com/storely/gatehouse/internal/services"
	"github.com/storely/gatehouse/internal/store"
	pkgauth "github.com/storely/gatehouse/pkg/auth"
	pkghttp "github.com/storely/gatehouse/pkg/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Postgres holds accounts and the security event log
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Key-value store holds sessions, indexes and attempt counters
	kv, closeKV, err := newKVStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeKV()

	userRepo := repositories.NewUserRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	var notifier services.AlertNotifier
	if cfg.Alerts.Enabled {
		sesNotifier, err := services.NewSESAlertNotifier(cfg.Alerts.SESRegion, cfg.Alerts.FromEmail, cfg.Alerts.ToEmail, logger)
		if err != nil {
			logger.Error("failed to initialize alert notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	eventService := services.NewEventService(eventRepo, notifier, logger)

	guardService := services.NewGuardService(kv, eventService, services.GuardConfig{
		CaptchaThreshold: cfg.Guard.CaptchaThreshold,
		LockoutThreshold: cfg.Guard.LockoutThreshold,
		LockoutDuration:  cfg.Guard.LockoutDuration,
		AttemptWindow:    cfg.Guard.AttemptWindow,
	}, logger)

	sessionService := services.NewSessionService(kv, eventService, services.SessionConfig{
		MaxAge:                cfg.Sessions.MaxAge,
		IdleTimeout:           cfg.Sessions.IdleTimeout,
		MaxConcurrentSessions: cfg.Sessions.MaxConcurrentSessions,
		RefreshLookahead:      cfg.Sessions.RefreshLookahead,
		RequireReauth:         cfg.Sessions.RequireReauth,
		ReauthInterval:        cfg.Sessions.ReauthInterval,
		TrackDevices:          cfg.Sessions.TrackDevices,
	}, logger)

	authService := services.NewAuthService(userRepo, guardService, sessionService, logger)

	stepupManager, err := auth.NewStepUpManager(auth.StepUpConfig{
		Issuer:    cfg.StepUp.Issuer,
		JWTSecret: cfg.StepUp.JWTSecret,
		ProofTTL:  cfg.StepUp.ProofTTL,
	})
	if err != nil {
		logger.Error("failed to initialize step-up manager", slog.Any("error", err))
		os.Exit(1)
	}

	cleanupManager := background.NewCleanupManager(sessionService, eventRepo, background.CleanupConfig{
		SessionSweepSchedule:   cfg.Cleanup.SessionSweepSchedule,
		EventRetentionSchedule: cfg.Cleanup.EventRetentionSchedule,
		EventRetentionDays:     cfg.Cleanup.EventRetentionDays,
	}, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	secureCookies := cfg.Server.Env == "production"

	authHandler := handlers.NewAuthHandler(authService, guardService, sessionService, ipConfig, secureCookies)
	sessionHandler := handlers.NewSessionHandler(sessionService, userRepo, stepupManager, eventService)
	adminHandler := handlers.NewAdminHandler(guardService, sessionService, eventService)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, sessionHandler, adminHandler, sessionService, stepupManager, ipConfig)

	// Health check covering both backing stores
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		if err := kv.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","store":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := cleanupManager.Start(); err != nil {
		logger.Error("failed to start cleanup manager", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newKVStore builds the configured backend. The memory backend exists for
// local development and tests; production deployments should run Redis.
func newKVStore(cfg *config.Config, logger *slog.Logger) (store.KV, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		rs, err := store.NewRedisStore(cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis store")
		return rs, func() { rs.Close() }, nil
	case "memory":
		logger.Warn("using in-memory store, sessions will not survive restarts")
		return store.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Role:         "admin",
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
