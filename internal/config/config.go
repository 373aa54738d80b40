// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port    int    `env:"PORT" envDefault:"8080"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Backend endpoint and key. The service cannot start without them.
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`

	// Optional. Sessions, the signed URL cache and cross-instance
	// notifications fall back to in-process implementations when empty.
	RedisURL string `env:"REDIS_URL"`

	// Object storage (any S3-compatible provider)
	StorageEndpoint  string `env:"STORAGE_ENDPOINT,required,notEmpty"`
	StorageAccessKey string `env:"STORAGE_ACCESS_KEY,required,notEmpty"`
	StorageSecretKey string `env:"STORAGE_SECRET_KEY,required,notEmpty"`
	StorageBucket    string `env:"STORAGE_BUCKET" envDefault:"user-images"`
	StorageRegion    string `env:"STORAGE_REGION"`
	StorageUseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`

	SignedURLTTL    time.Duration `env:"SIGNED_URL_TTL" envDefault:"1h"`
	SignedURLCache  bool          `env:"SIGNED_URL_CACHE" envDefault:"false"`
	SignConcurrency int           `env:"SIGN_CONCURRENCY" envDefault:"8"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	DisplayTZ       string        `env:"DISPLAY_TZ" envDefault:"UTC"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0"`
	ReconcileMinAge   time.Duration `env:"RECONCILE_MIN_AGE" envDefault:"1h"`
	ReconcileRemove   bool          `env:"RECONCILE_REMOVE" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Comma-separated list of allowed origins
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from a .env file (if present) and environment variables.
// Returns an error if a required variable is missing or a value does not parse.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading from environment")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive, got %s", c.SignedURLTTL)
	}
	if c.SignConcurrency < 1 {
		return fmt.Errorf("SIGN_CONCURRENCY must be at least 1, got %d", c.SignConcurrency)
	}
	if _, err := time.LoadLocation(c.DisplayTZ); err != nil {
		return fmt.Errorf("invalid DISPLAY_TZ %q: %w", c.DisplayTZ, err)
	}
	return nil
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// DisplayLocation returns the time zone used to format display dates.
func (c *Config) DisplayLocation() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) AllowedOrigins() []string {
	var result []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
