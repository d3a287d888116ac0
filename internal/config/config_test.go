package config_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv is a helper that sets environment variables for a test and restores them after.
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

// cleanEnv blanks every variable Load reads so defaults are observable.
func cleanEnv() map[string]string {
	return map[string]string{
		"M365DASH_PORT":              "",
		"M365DASH_ENV":               "",
		"BACKEND_BASE_URL":           "",
		"BACKEND_TIMEOUT":            "",
		"BACKEND_RATE_LIMIT":         "",
		"RETRY_MAX_ATTEMPTS":         "",
		"RETRY_DELAY":                "",
		"RETRY_EXPONENTIAL":          "",
		"HEALTH_MAX_ATTEMPTS":        "",
		"HEALTH_RETRY_DELAY":         "",
		"CACHE_BACKEND":              "",
		"CACHE_TTL":                  "",
		"CACHE_MAX_ENTRIES":          "",
		"REDIS_URL":                  "",
		"DATABASE_URL":               "",
		"DASHBOARD_REFRESH_INTERVAL": "",
		"AGGREGATE_MAX_CONCURRENCY":  "",
		"CORS_ALLOWED_ORIGINS":       "",
		"RATE_LIMIT_PER_MINUTE":      "",
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, cleanEnv())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 60, cfg.Server.RateLimitPerMinute)
	assert.Contains(t, cfg.Server.CORSAllowedOrigins, "http://localhost:5173")

	assert.Equal(t, "http://127.0.0.1:5000/api", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Zero(t, cfg.Backend.RateLimit)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.Delay)
	assert.False(t, cfg.Retry.Exponential)
	assert.Equal(t, 3, cfg.Health.MaxAttempts)
	assert.True(t, cfg.Health.Exponential)

	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)

	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "migrations", cfg.Database.MigrationsDir)
	assert.Zero(t, cfg.Dashboard.RefreshInterval)
}

func TestLoad_CustomPort(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("M365DASH_PORT", "9090")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_InvalidPortFallsBackToDefault(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("M365DASH_PORT", "not-a-number")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_BackendURLTrailingSlashTrimmed(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("BACKEND_BASE_URL", "https://m365.example.com/api/")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://m365.example.com/api", cfg.Backend.BaseURL)
}

func TestLoad_BackendURLMustStartWithHTTP(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("BACKEND_BASE_URL", "ftp://127.0.0.1:5000/api")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_BASE_URL")
}

func TestLoad_NegativeBackendRateLimit(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("BACKEND_RATE_LIMIT", "-1")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_RATE_LIMIT")
}

func TestLoad_RetrySettings(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("RETRY_EXPONENTIAL", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.True(t, cfg.Retry.Exponential)
}

func TestLoad_ZeroRetryAttempts(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_MAX_ATTEMPTS")
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("CACHE_BACKEND", "memcached")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_BACKEND")
}

func TestLoad_RedisBackendRequiresURL(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("CACHE_BACKEND", "redis")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_RedisBackend(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
}

func TestLoad_NonPositiveCacheTTL(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("CACHE_TTL", "0s")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestLoad_CORSOriginsList(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
}

func TestLoad_DashboardSettings(t *testing.T) {
	setEnv(t, cleanEnv())
	t.Setenv("DASHBOARD_REFRESH_INTERVAL", "1m")
	t.Setenv("AGGREGATE_MAX_CONCURRENCY", "4")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Dashboard.RefreshInterval)
	assert.Equal(t, 4, cfg.Dashboard.MaxConcurrency)
}
