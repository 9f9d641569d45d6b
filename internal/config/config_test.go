package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ANOMALY_Z_THRESHOLD", "2.5")
	setEnv(t, "ENABLE_EXPLANATIONS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2.5, cfg.ZThreshold)
	assert.Equal(t, float64(DefaultAmountThreshold), cfg.AmountThreshold)
	assert.Equal(t, DefaultInsightWorkers, cfg.InsightWorkers)
	assert.False(t, cfg.EnableExplanations)
}

func TestLoad_ExplanationsWithoutAPIKey(t *testing.T) {
	setEnv(t, "ENABLE_EXPLANATIONS", "true")
	setEnv(t, "GEMINI_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			ZThreshold:      3.0,
			AmountThreshold: 10000,
			InsightWorkers:  4,
			RateLimitRPM:    300,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "negative z threshold",
			mutate:  func(c *Config) { c.ZThreshold = -1 },
			wantErr: "ANOMALY_Z_THRESHOLD",
		},
		{
			name:    "negative amount threshold",
			mutate:  func(c *Config) { c.AmountThreshold = -5 },
			wantErr: "ANOMALY_AMOUNT_THRESHOLD",
		},
		{
			name:    "explanations without key",
			mutate:  func(c *Config) { c.EnableExplanations = true },
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "zero insight workers",
			mutate:  func(c *Config) { c.InsightWorkers = 0 },
			wantErr: "INSIGHT_WORKERS",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimitRPM = 0 },
			wantErr: "RATE_LIMIT_RPM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "1.75")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, 1.75, getEnvFloat("TEST_FLOAT", 0))
	assert.Equal(t, 9.5, getEnvFloat("NONEXISTENT_VAR", 9.5))
	assert.Equal(t, 9.5, getEnvFloat("TEST_INVALID", 9.5)) // Falls back on parse error
}

func TestGetEnvBool(t *testing.T) {
	setEnv(t, "TEST_BOOL", "true")
	setEnv(t, "TEST_INVALID", "maybe")

	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("NONEXISTENT_VAR", true))
	assert.False(t, getEnvBool("TEST_INVALID", false))
}
