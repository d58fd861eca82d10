// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// ProviderTimeout bounds every call to the billing provider.
	ProviderTimeout time.Duration

	// Internal API authentication (shared secret for the seats API).
	// Webhook endpoints authenticate via Stripe signatures instead.
	APIKey string

	// Feature flag defaults, used when a flag has no row in the database.
	HWMSeatBillingDefault   bool
	MonthlyProrationDefault bool

	// Proration worker
	ProrationSchedule string // cron expression
	ProrationEnabled  bool

	// CORS
	CORSOrigins []string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:seatsync.db?_journal=WAL&_timeout=5000"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		ProviderTimeout:     getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),

		APIKey: getEnv("API_KEY", ""),

		HWMSeatBillingDefault:   getEnvBool("HWM_SEAT_BILLING_ENABLED", true),
		MonthlyProrationDefault: getEnvBool("MONTHLY_PRORATION_ENABLED", true),

		// Default: 03:00 UTC on the first day of each month.
		ProrationSchedule: getEnv("PRORATION_SCHEDULE", "0 3 1 * *"),
		ProrationEnabled:  getEnvBool("PRORATION_WORKER_ENABLED", true),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.StripeWebhookSecret == "" {
		// Not fatal: webhooks are rejected until the secret is configured,
		// but the seats API and proration batch still work.
		fmt.Fprintln(os.Stderr, "warning: STRIPE_WEBHOOK_SECRET not set, webhook verification will fail")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
