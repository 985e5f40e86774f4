package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Store    StoreConfig
	Guard    GuardConfig
	Sessions SessionConfig
	StepUp   StepUpConfig
	Alerts   AlertConfig
	Cleanup  CleanupConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

// StoreConfig selects and configures the session/attempt key-value backend
type StoreConfig struct {
	Backend  string // "redis" or "memory"
	RedisURL string
}

type GuardConfig struct {
	CaptchaThreshold int
	LockoutThreshold int
	LockoutDuration  time.Duration
	AttemptWindow    time.Duration
}

type SessionConfig struct {
	MaxAge                time.Duration
	IdleTimeout           time.Duration
	MaxConcurrentSessions int
	RefreshLookahead      time.Duration
	RequireReauth         bool
	ReauthInterval        time.Duration
	TrackDevices          bool
}

type StepUpConfig struct {
	Issuer    string
	JWTSecret string
	ProofTTL  time.Duration
}

type AlertConfig struct {
	Enabled   bool
	SESRegion string
	FromEmail string
	ToEmail   string
}

type CleanupConfig struct {
	SessionSweepSchedule   string
	EventRetentionSchedule string
	EventRetentionDays     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("STEPUP_JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("STEPUP_JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES"),
		},
		Store: StoreConfig{
			Backend:  getEnv("STORE_BACKEND", "redis"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Guard: GuardConfig{
			CaptchaThreshold: getEnvAsInt("GUARD_CAPTCHA_THRESHOLD", 3),
			LockoutThreshold: getEnvAsInt("GUARD_LOCKOUT_THRESHOLD", 5),
			LockoutDuration:  getEnvAsDuration("GUARD_LOCKOUT_DURATION", 15*time.Minute),
			AttemptWindow:    getEnvAsDuration("GUARD_ATTEMPT_WINDOW", 1*time.Hour),
		},
		Sessions: SessionConfig{
			MaxAge:                getEnvAsDuration("SESSION_MAX_AGE", 24*time.Hour),
			IdleTimeout:           getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			MaxConcurrentSessions: getEnvAsInt("SESSION_MAX_CONCURRENT", 5),
			RefreshLookahead:      getEnvAsDuration("SESSION_REFRESH_LOOKAHEAD", 5*time.Minute),
			RequireReauth:         getEnvAsBool("SESSION_REQUIRE_REAUTH", true),
			ReauthInterval:        getEnvAsDuration("SESSION_REAUTH_INTERVAL", 1*time.Hour),
			TrackDevices:          getEnvAsBool("SESSION_TRACK_DEVICES", true),
		},
		StepUp: StepUpConfig{
			Issuer:    getEnv("STEPUP_ISSUER", "gatehouse"),
			JWTSecret: jwtSecret,
			ProofTTL:  getEnvAsDuration("STEPUP_PROOF_TTL", 5*time.Minute),
		},
		Alerts: AlertConfig{
			Enabled:   getEnvAsBool("ALERTS_ENABLED", false),
			SESRegion: getEnv("ALERTS_SES_REGION", "us-east-1"),
			FromEmail: getEnv("ALERTS_FROM_EMAIL", ""),
			ToEmail:   getEnv("ALERTS_TO_EMAIL", ""),
		},
		Cleanup: CleanupConfig{
			SessionSweepSchedule:   getEnv("CLEANUP_SESSION_SCHEDULE", "*/15 * * * *"),
			EventRetentionSchedule: getEnv("CLEANUP_EVENT_SCHEDULE", "30 3 * * *"),
			EventRetentionDays:     getEnvAsInt("CLEANUP_EVENT_RETENTION_DAYS", 90),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Store.Backend != "redis" && cfg.Store.Backend != "memory" {
		return nil, fmt.Errorf("STORE_BACKEND must be redis or memory, got %q", cfg.Store.Backend)
	}

	if cfg.Guard.CaptchaThreshold >= cfg.Guard.LockoutThreshold {
		return nil, fmt.Errorf("GUARD_CAPTCHA_THRESHOLD (%d) must be below GUARD_LOCKOUT_THRESHOLD (%d)",
			cfg.Guard.CaptchaThreshold, cfg.Guard.LockoutThreshold)
	}

	if cfg.Sessions.IdleTimeout > cfg.Sessions.MaxAge {
		return nil, fmt.Errorf("SESSION_IDLE_TIMEOUT cannot exceed SESSION_MAX_AGE")
	}

	if cfg.Alerts.Enabled && (cfg.Alerts.FromEmail == "" || cfg.Alerts.ToEmail == "") {
		return nil, fmt.Errorf("ALERTS_FROM_EMAIL and ALERTS_TO_EMAIL are required when alerts are enabled")
	}

	if err := validateStepUpSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateStepUpSecret enforces minimum strength for the proof-signing secret
func validateStepUpSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("STEPUP_JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("STEPUP_JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
