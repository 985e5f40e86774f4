package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storely/gatehouse/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STEPUP_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DB_PASSWORD", "postgres-password")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, "gatehouse", cfg.Database.Name)
	assert.Equal(t, "redis", cfg.Store.Backend)

	assert.Equal(t, 3, cfg.Guard.CaptchaThreshold)
	assert.Equal(t, 5, cfg.Guard.LockoutThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Guard.LockoutDuration)

	assert.Equal(t, 24*time.Hour, cfg.Sessions.MaxAge)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 5, cfg.Sessions.MaxConcurrentSessions)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.RefreshLookahead)
	assert.True(t, cfg.Sessions.RequireReauth)

	assert.Equal(t, 90, cfg.Cleanup.EventRetentionDays)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("GUARD_LOCKOUT_THRESHOLD", "10")
	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("SESSION_REQUIRE_REAUTH", "false")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Guard.LockoutThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.IdleTimeout)
	assert.False(t, cfg.Sessions.RequireReauth)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Server.TrustedProxies)
}

func TestLoad_RequiresStepUpSecret(t *testing.T) {
	t.Setenv("STEPUP_JWT_SECRET", "")
	t.Setenv("DB_PASSWORD", "postgres-password")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_RequiresDBPassword(t *testing.T) {
	t.Setenv("STEPUP_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DB_PASSWORD", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_RejectsWeakSecretInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DB_PASSWORD", "postgres-password")
	t.Setenv("STEPUP_JWT_SECRET", "short-secret")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STORE_BACKEND", "cassandra")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GUARD_CAPTCHA_THRESHOLD", "5")
	t.Setenv("GUARD_LOCKOUT_THRESHOLD", "5")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_RejectsIdleBeyondMaxAge(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_MAX_AGE", "1h")
	t.Setenv("SESSION_IDLE_TIMEOUT", "2h")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_AlertsRequireAddresses(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALERTS_ENABLED", "true")

	_, err := config.Load()
	assert.Error(t, err)
}
