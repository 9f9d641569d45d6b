// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Anomaly scoring
	ZThreshold      float64 // score at or above which a transaction is flagged
	AmountThreshold float64 // absolute amount at or above which the large-amount rule fires

	// Explanations
	EnableExplanations bool
	GeminiAPIKey       string
	GeminiModel        string
	InsightWorkers     int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint, tracing disabled when empty

	// Security
	RateLimitRPM int
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultZThreshold      = 3.0
	DefaultAmountThreshold = 10000
	DefaultInsightWorkers  = 4
	DefaultRateLimit       = 300
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ZThreshold:         getEnvFloat("ANOMALY_Z_THRESHOLD", DefaultZThreshold),
		AmountThreshold:    getEnvFloat("ANOMALY_AMOUNT_THRESHOLD", DefaultAmountThreshold),
		EnableExplanations: getEnvBool("ENABLE_EXPLANATIONS", false),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        os.Getenv("GEMINI_MODEL"),
		InsightWorkers:     int(getEnvInt64("INSIGHT_WORKERS", DefaultInsightWorkers)),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.ZThreshold < 0 {
		return fmt.Errorf("ANOMALY_Z_THRESHOLD must be non-negative, got %v", c.ZThreshold)
	}
	if c.AmountThreshold < 0 {
		return fmt.Errorf("ANOMALY_AMOUNT_THRESHOLD must be non-negative, got %v", c.AmountThreshold)
	}
	if c.EnableExplanations && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when ENABLE_EXPLANATIONS is set")
	}
	if c.InsightWorkers < 1 {
		return fmt.Errorf("INSIGHT_WORKERS must be at least 1, got %d", c.InsightWorkers)
	}
	if c.RateLimitRPM < 1 {
		return fmt.Errorf("RATE_LIMIT_RPM must be at least 1, got %d", c.RateLimitRPM)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
