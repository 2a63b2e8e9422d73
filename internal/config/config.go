// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits with an
// error. A local .env file is honoured when present (development only).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the dashboard service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	AuthURL    string // base URL of the GoTrue-style auth API
	AuthAPIKey string
	JWTSecret  string // shared HMAC secret for access-token verification

	ResyncIntervalMinutes int // how often the resync heartbeat fires
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	// Optional: local development convenience. Real deployments set the
	// environment directly.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	authURL := os.Getenv("AUTH_URL")
	if authURL == "" {
		return nil, fmt.Errorf("AUTH_URL is required")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	interval := 30
	if s := os.Getenv("RESYNC_INTERVAL_MINUTES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("RESYNC_INTERVAL_MINUTES must be a positive integer, got %q", s)
		}
		interval = v
	}

	port := os.Getenv("DASHBOARD_PORT")
	if port == "" {
		port = "8083"
	}

	return &Config{
		Port:                  port,
		DatabaseURL:           dbURL,
		RedisURL:              redisURL,
		AuthURL:               authURL,
		AuthAPIKey:            os.Getenv("AUTH_API_KEY"),
		JWTSecret:             secret,
		ResyncIntervalMinutes: interval,
	}, nil
}
