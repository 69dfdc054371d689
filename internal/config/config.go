// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Analytics sink modes.
const (
	AnalyticsInline = "inline"
	AnalyticsStream = "stream"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Base URL the tracking links are printed with (e.g., https://qr.example.com)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Document store
	StoreBackend  string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"qrtracker"`

	// Redis is optional. Without it the link cache, the analytics stream
	// and the shared rate limiter are disabled.
	RedisURL     string        `env:"REDIS_URL"`
	LinkCacheTTL time.Duration `env:"LINK_CACHE_TTL" envDefault:"60s"`

	// Edge relay trust
	WorkerHMACSecret string        `env:"WORKER_HMAC_SECRET"`
	SignatureWindow  time.Duration `env:"SIGNATURE_WINDOW" envDefault:"300s"`
	RequireSignature bool          `env:"REQUIRE_SIGNATURE" envDefault:"false"`

	// Hit derivation
	StoreIPHash         bool          `env:"STORE_IP_HASH" envDefault:"false"`
	IPHashSalt          string        `env:"IP_HASH_SALT"`
	GeoIPDBPath         string        `env:"GEOIP_DB_PATH"`
	GeoIPAPIURL         string        `env:"GEOIP_API_URL"`
	GeoIPAPITimeout     time.Duration `env:"GEOIP_API_TIMEOUT" envDefault:"1500ms"`
	HitTTLDays          int           `env:"HIT_TTL_DAYS" envDefault:"0"`
	SyntheticUserAgents []string      `env:"SYNTHETIC_USER_AGENTS" envSeparator:"," envDefault:"HealthMonitor/"`

	// Analytics dispatch
	AnalyticsMode      string `env:"ANALYTICS_MODE" envDefault:"inline"`
	AnalyticsWorkers   int    `env:"ANALYTICS_WORKERS" envDefault:"4"`
	AnalyticsQueueSize int    `env:"ANALYTICS_QUEUE_SIZE" envDefault:"1024"`

	// Rate limiting
	RateLimitRedirectEnabled bool `env:"RATE_LIMIT_REDIRECT_ENABLED" envDefault:"true"`
	RateLimitRedirectRPS     int  `env:"RATE_LIMIT_REDIRECT_RPS" envDefault:"100"`
	RateLimitRedirectBurst   int  `env:"RATE_LIMIT_REDIRECT_BURST" envDefault:"20"`

	// Housekeeping (cron expressions, empty disables the job)
	PurgeSchedule    string   `env:"HOUSEKEEPING_PURGE_SCHEDULE" envDefault:"@hourly"`
	RecountSchedule  string   `env:"HOUSEKEEPING_RECOUNT_SCHEDULE"`
	RecountCampaigns []string `env:"HOUSEKEEPING_RECOUNT_CAMPAIGNS" envSeparator:","`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// HitTTL returns the expiry applied to recorded hits, zero when disabled.
func (c *Config) HitTTL() time.Duration {
	if c.HitTTLDays <= 0 {
		return 0
	}
	return time.Duration(c.HitTTLDays) * 24 * time.Hour
}

// Validate checks cross-field rules that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.AnalyticsMode {
	case AnalyticsInline:
	case AnalyticsStream:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for ANALYTICS_MODE=stream"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ANALYTICS_MODE %q", c.AnalyticsMode))
	}

	if c.StoreIPHash && strings.TrimSpace(c.IPHashSalt) == "" {
		errs = append(errs, errors.New("IP_HASH_SALT is required when STORE_IP_HASH is set"))
	}
	if c.RequireSignature && c.WorkerHMACSecret == "" {
		errs = append(errs, errors.New("WORKER_HMAC_SECRET is required when REQUIRE_SIGNATURE is set"))
	}
	if c.SignatureWindow <= 0 {
		errs = append(errs, errors.New("SIGNATURE_WINDOW must be positive"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing or inconsistent.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.WorkerHMACSecret = trimQuotes(cfg.WorkerHMACSecret)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// trimQuotes strips one layer of matching quotes that deployment tooling
// sometimes leaves around secrets.
func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
