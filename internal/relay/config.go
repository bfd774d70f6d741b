// Package relay provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay service.
package relay

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds the server configuration settings including security controls.
// All values are read from RELAY_* environment variables.
type Config struct {
	Port            string        `envconfig:"PORT" default:":8080"`
	Environment     string        `envconfig:"ENVIRONMENT" default:"development"`
	APIKey          string        `envconfig:"API_KEY"`
	AuthURL         string        `envconfig:"AUTH_URL" default:"http://localhost:3000"`
	AuthTimeout     time.Duration `envconfig:"AUTH_TIMEOUT" default:"5s"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize  int64         `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`
	RateLimit       float64       `envconfig:"RATE_LIMIT" default:"5"`
	RateBurst       int           `envconfig:"RATE_BURST" default:"10"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadConfig reads the configuration from the environment, falling back to
// defaults for anything unset and sanitizing invalid values.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("relay", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "load relay config")
	}
	return sanitizeConfig(cfg), nil
}

// IsProduction reports whether the unauthenticated development bypass must be
// disabled.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if !strings.HasPrefix(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}
