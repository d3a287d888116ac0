package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the m365dash service and CLI.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Retry     RetryConfig
	Health    RetryConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Dashboard DashboardConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// BackendConfig points at the remote API that wraps Microsoft Graph.
type BackendConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 = unlimited
}

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Exponential bool
}

type CacheConfig struct {
	Backend    string
	TTL        time.Duration
	MaxEntries int
}

type RedisConfig struct {
	URL string
}

// DatabaseConfig is optional: an empty URL runs the service without
// API-key auth and without snapshot history.
type DatabaseConfig struct {
	URL             string
	MigrationsDir   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type DashboardConfig struct {
	RefreshInterval time.Duration
	MaxConcurrency  int
}

const DefaultBackendURL = "http://127.0.0.1:5000/api"

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:8080",
}

var validCacheBackends = map[string]bool{
	"memory": true,
	"redis":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory, if present, seeds variables that are not already set.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("M365DASH_PORT", 8080),
			Env:                envString("M365DASH_ENV", "development"),
			CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Backend: BackendConfig{
			BaseURL:   strings.TrimRight(envString("BACKEND_BASE_URL", DefaultBackendURL), "/"),
			Timeout:   envDuration("BACKEND_TIMEOUT", 30*time.Second),
			RateLimit: envFloat("BACKEND_RATE_LIMIT", 0),
		},
		Retry: RetryConfig{
			MaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 3),
			Delay:       envDuration("RETRY_DELAY", 2*time.Second),
			Exponential: envBool("RETRY_EXPONENTIAL", false),
		},
		Health: RetryConfig{
			MaxAttempts: envInt("HEALTH_MAX_ATTEMPTS", 3),
			Delay:       envDuration("HEALTH_RETRY_DELAY", 1*time.Second),
			Exponential: true,
		},
		Cache: CacheConfig{
			Backend:    envString("CACHE_BACKEND", "memory"),
			TTL:        envDuration("CACHE_TTL", 5*time.Minute),
			MaxEntries: envInt("CACHE_MAX_ENTRIES", 1024),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Dashboard: DashboardConfig{
			RefreshInterval: envDuration("DASHBOARD_REFRESH_INTERVAL", 0),
			MaxConcurrency:  envInt("AGGREGATE_MAX_CONCURRENCY", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL must not be empty")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("BACKEND_BASE_URL must start with http:// or https://, got %q", c.Backend.BaseURL)
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT must not be negative, got %v", c.Backend.RateLimit)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Health.MaxAttempts < 1 {
		return fmt.Errorf("HEALTH_MAX_ATTEMPTS must be at least 1, got %d", c.Health.MaxAttempts)
	}

	if !validCacheBackends[c.Cache.Backend] {
		return fmt.Errorf("CACHE_BACKEND must be one of memory, redis; got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND is redis")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.Cache.MaxEntries)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
