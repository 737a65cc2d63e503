// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment provider
	StripeSecretKey   string // Stripe secret key (sk_test_... / sk_live_...)
	CheckoutReturnURL string // Where embedded checkout lands after payment

	// Plan catalog bindings (provider price ids per tier)
	PriceIDSolo string
	PriceIDPro  string
	PriceIDTeam string

	// Security
	AdminSecret  string // Admin API secret (account admin routes disabled if empty)
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

// Defaults
const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultRateLimit = 120

	// DefaultReturnURL points at the local frontend's confirmation page.
	// Stripe substitutes the session id into the template placeholder.
	DefaultReturnURL = "http://localhost:3000/checkout/return?session_id={CHECKOUT_SESSION_ID}"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeSecretKey:   os.Getenv("STRIPE_SECRET_KEY"),
		CheckoutReturnURL: getEnv("CHECKOUT_RETURN_URL", DefaultReturnURL),
		PriceIDSolo:       getEnv("PRICE_ID_SOLO", "price_solo_dev"),
		PriceIDPro:        getEnv("PRICE_ID_PRO", "price_pro_dev"),
		PriceIDTeam:       getEnv("PRICE_ID_TEAM", "price_team_dev"),
		AdminSecret:       os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if !strings.HasPrefix(c.StripeSecretKey, "sk_") && !strings.HasPrefix(c.StripeSecretKey, "rk_") {
		return fmt.Errorf("STRIPE_SECRET_KEY must be a secret or restricted key (sk_.../rk_...)")
	}
	if c.CheckoutReturnURL == "" {
		return fmt.Errorf("CHECKOUT_RETURN_URL is required")
	}
	if c.PriceIDSolo == "" || c.PriceIDPro == "" || c.PriceIDTeam == "" {
		return fmt.Errorf("all plan price id bindings are required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
