package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Composer-Insights application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Piano     PianoConfig
	Relay     RelayConfig
	Trends    TrendsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PianoConfig configures the upstream Piano Composer reporting API.
type PianoConfig struct {
	BaseURL      string
	DefaultAID   string
	DefaultExpID string
	Timeout      time.Duration
}

// RelayConfig configures bearer-token capture and relay.
type RelayConfig struct {
	// WatchedURLPatterns lists the request URL patterns (prefixes with
	// optional `*` wildcards) whose Authorization headers are captured.
	WatchedURLPatterns []string
	// TokenWait bounds how long a token request blocks before giving up.
	TokenWait time.Duration
}

// TrendsConfig configures the per-period trend builder.
type TrendsConfig struct {
	CacheTTL time.Duration
	// MaxDays caps how many daily periods a trends request fetches.
	MaxDays int
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled   bool
	RPS       float64
	Burst     int
	MgmtRPS   float64
	MgmtBurst int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
	Port    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("COMPOSER_INSIGHTS_HTTP_ADDR", ":8080"),
			Env:             getEnv("COMPOSER_INSIGHTS_ENV", "development"),
			ShutdownTimeout: getDurationEnv("COMPOSER_INSIGHTS_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("COMPOSER_INSIGHTS_DB_HOST", "localhost"),
			Port:     getIntEnv("COMPOSER_INSIGHTS_DB_PORT", 5432),
			User:     getEnv("COMPOSER_INSIGHTS_DB_USER", "insights"),
			Password: getEnv("COMPOSER_INSIGHTS_DB_PASSWORD", "insights_secret"),
			DBName:   getEnv("COMPOSER_INSIGHTS_DB_NAME", "insights"),
			SSLMode:  getEnv("COMPOSER_INSIGHTS_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("COMPOSER_INSIGHTS_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("COMPOSER_INSIGHTS_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("COMPOSER_INSIGHTS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("COMPOSER_INSIGHTS_REDIS_PASSWORD", ""),
			DB:       getIntEnv("COMPOSER_INSIGHTS_REDIS_DB", 0),
		},
		Piano: PianoConfig{
			BaseURL:      getEnv("COMPOSER_INSIGHTS_PIANO_BASE_URL", "https://prod-ai-report-api.piano.io/report/composer/conversion"),
			DefaultAID:   getEnv("COMPOSER_INSIGHTS_PIANO_DEFAULT_AID", "N8sydUSDcX"),
			DefaultExpID: getEnv("COMPOSER_INSIGHTS_PIANO_DEFAULT_EXP_ID", "EXCTYT87DM0F"),
			Timeout:      getDurationEnv("COMPOSER_INSIGHTS_PIANO_TIMEOUT", 30*time.Second),
		},
		Relay: RelayConfig{
			WatchedURLPatterns: getSliceEnv("COMPOSER_INSIGHTS_RELAY_WATCHED_URLS", []string{
				"https://prod-ai-report-api.piano.io/report/composer/conversion",
				"https://dashboard.piano.io/publisher/composer/edit/*/conversionReport*",
			}),
			TokenWait: getDurationEnv("COMPOSER_INSIGHTS_RELAY_TOKEN_WAIT", 2*time.Second),
		},
		Trends: TrendsConfig{
			CacheTTL: getDurationEnv("COMPOSER_INSIGHTS_TRENDS_CACHE_TTL", 15*time.Minute),
			MaxDays:  getIntEnv("COMPOSER_INSIGHTS_TRENDS_MAX_DAYS", 14),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("COMPOSER_INSIGHTS_AUTH_ENABLED", false),
			MasterKey: getEnv("COMPOSER_INSIGHTS_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("COMPOSER_INSIGHTS_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getBoolEnv("COMPOSER_INSIGHTS_RATE_LIMIT_ENABLED", true),
			RPS:       getFloatEnv("COMPOSER_INSIGHTS_RATE_LIMIT_RPS", 50),
			Burst:     getIntEnv("COMPOSER_INSIGHTS_RATE_LIMIT_BURST", 25),
			MgmtRPS:   getFloatEnv("COMPOSER_INSIGHTS_RATE_LIMIT_MGMT_RPS", 10),
			MgmtBurst: getIntEnv("COMPOSER_INSIGHTS_RATE_LIMIT_MGMT_BURST", 5),
		},
		Log: LogConfig{
			Level:  getEnv("COMPOSER_INSIGHTS_LOG_LEVEL", "info"),
			Format: getEnv("COMPOSER_INSIGHTS_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("COMPOSER_INSIGHTS_METRICS_ENABLED", true),
			Path:    getEnv("COMPOSER_INSIGHTS_METRICS_PATH", "/metrics"),
			Port:    getEnv("COMPOSER_INSIGHTS_METRICS_PORT", "9090"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("COMPOSER_INSIGHTS_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Piano.BaseURL == "" {
		return fmt.Errorf("COMPOSER_INSIGHTS_PIANO_BASE_URL must not be empty")
	}
	if c.Trends.MaxDays <= 0 {
		return fmt.Errorf("COMPOSER_INSIGHTS_TRENDS_MAX_DAYS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
