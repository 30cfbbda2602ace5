// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. An optional .env file
is loaded first with 'joho/godotenv'; variables already present in the process
environment always win.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to the token codec, cookie transport and admission gate via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// # Configuration Schema

// Config holds all runtime configuration for the authgate API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL). Empty selects the in-memory account store
	// outside production.
	DatabaseURL string `env:"DATABASE_URL"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis). Empty selects the in-process rate limiter outside production.
	RedisURL string `env:"REDIS_URL"`

	// Session signing
	JWTSecret  string `env:"JWT_SECRET"`
	BcryptCost int    `env:"BCRYPT_COST" envDefault:"10"`

	// CookieSameSite is either "strict" or "lax".
	CookieSameSite string `env:"COOKIE_SAME_SITE" envDefault:"strict"`

	// Cross-Origin Resource Sharing
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// TrustedProxies lists CIDRs or addresses allowed to report the client IP
	// through X-Forwarded-For / X-Real-IP. Empty means the TCP peer is the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Admission layer
	AdmissionEnforce bool          `env:"ADMISSION_ENFORCE" envDefault:"false"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitAdmin   int           `env:"RATE_LIMIT_ADMIN"  envDefault:"20"`
	RateLimitUser    int           `env:"RATE_LIMIT_USER"   envDefault:"10"`
	RateLimitGuest   int           `env:"RATE_LIMIT_GUEST"  envDefault:"5"`

	// Coarse per-IP flood guard ahead of the admission layer
	FloodGuardRPS   float64 `env:"FLOOD_GUARD_RPS"   envDefault:"100"`
	FloodGuardBurst int     `env:"FLOOD_GUARD_BURST" envDefault:"150"`
}

// MinSecretLength is the minimum accepted JWT secret size in production.
const MinSecretLength = 32

// # Configuration Loading

// Load reads an optional .env file, parses environment variables into a
// [Config] struct and validates it.
func Load() (*Config, error) {

	// A missing .env file is the normal case in containers.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the invariants that must hold before the server starts.
func (c *Config) Validate() error {
	switch strings.ToLower(c.CookieSameSite) {
	case "strict", "lax":
	default:
		return fmt.Errorf("config: COOKIE_SAME_SITE must be strict or lax, got %q", c.CookieSameSite)
	}

	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimitAdmin <= 0 || c.RateLimitUser <= 0 || c.RateLimitGuest <= 0 {
		return fmt.Errorf("config: rate limit budgets must be positive")
	}

	if !c.IsProduction() {
		return nil
	}

	// Production refuses to start on anything that would weaken the gate.
	if len(c.JWTSecret) < MinSecretLength {
		return fmt.Errorf("config: JWT_SECRET must be set to at least %d bytes in production", MinSecretLength)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required in production")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("config: REDIS_URL is required in production")
	}

	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// EnforceAdmission reports whether the admission layer throttles and classifies traffic.
func (c *Config) EnforceAdmission() bool {
	return c.IsProduction() || c.AdmissionEnforce
}
