// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the service reads at startup.
type Config struct {
	Addr    string `env:"GATEKEEPER_ADDR" envDefault:":8080"`
	PGDSN   string `env:"GATEKEEPER_PG_DSN"`
	Version string `env:"GATEKEEPER_VERSION" envDefault:"dev"`

	AuthSecret   string        `env:"GATEKEEPER_AUTH_SECRET"`
	Issuer       string        `env:"GATEKEEPER_ISSUER" envDefault:"gatekeeper"`
	TokenTTL     time.Duration `env:"GATEKEEPER_TOKEN_TTL" envDefault:"15m"`
	ResetTTL     time.Duration `env:"GATEKEEPER_RESET_TTL" envDefault:"24h"`
	ResetBaseURL string        `env:"GATEKEEPER_FRONTEND_URL" envDefault:"http://localhost:3000"`

	RateLimitCapacity   int           `env:"GATEKEEPER_RATE_CAPACITY" envDefault:"20"`
	RateLimitWindow     time.Duration `env:"GATEKEEPER_RATE_WINDOW" envDefault:"1m"`
	RateLimitMaxClients int           `env:"GATEKEEPER_RATE_MAX_CLIENTS" envDefault:"16384"`

	// TrustedProxies lists peer CIDRs whose X-Forwarded-For header is
	// honored for client identity. Empty means trust every peer, which
	// matches the historically observed behavior but should be narrowed in
	// production.
	TrustedProxies []string `env:"GATEKEEPER_TRUSTED_PROXIES" envSeparator:","`

	MaxBodyBytes int64 `env:"GATEKEEPER_MAX_BODY_BYTES" envDefault:"1048576"`

	SMTPAddr string `env:"GATEKEEPER_SMTP_ADDR"`
	SMTPFrom string `env:"GATEKEEPER_SMTP_FROM" envDefault:"noreply@example.com"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
