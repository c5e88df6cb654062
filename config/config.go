// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration. Defaults mirror a local
// development setup; JWT_SECRET has no default and must be provided.
type Config struct {
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":8787"`
	Domain       string `env:"APP_DOMAIN" envDefault:"example.com"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"walletgate.db"`
	RedisURL     string `env:"REDIS_URL"`

	JWTSecret string `env:"JWT_SECRET,required"`
	// JWTPreviousSecrets accepts rotated-out secrets for verification only,
	// newest first.
	JWTPreviousSecrets []string `env:"JWT_PREVIOUS_SECRETS" envSeparator:","`

	ChallengeTTL time.Duration `env:"CHALLENGE_TTL" envDefault:"5m"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"168h"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if len(cfg.JWTSecret) < 16 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	return cfg, nil
}
