package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "ring-generator-service", cfg.ServiceName)
	assert.Equal(t, 8003, cfg.Port)
	assert.Equal(t, "claude-opus-4-6", cfg.ClaudeModel)
	assert.Equal(t, "claude-sonnet-4-6", cfg.ClaudeSonnet)
	assert.Equal(t, 3, cfg.MaxErrorRetries)
	assert.Equal(t, 5.0, cfg.MaxCostPerRequestUSD)
	assert.Equal(t, 300*time.Second, cfg.BlenderTimeout)
	assert.Equal(t, 64, cfg.MaxQueueSize)
	assert.Equal(t, time.Hour, cfg.FinishedJobTTL)
	assert.Equal(t, 2000, cfg.MaxJobRecords)
	assert.GreaterOrEqual(t, cfg.MaxConcurrentJobs, 1)
	assert.LessOrEqual(t, cfg.MaxConcurrentJobs, 32)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RINGGEN_PORT", "9090")
	t.Setenv("RINGGEN_MAX_ERROR_RETRIES", "5")
	t.Setenv("RINGGEN_MAX_COST_PER_REQUEST_USD", "1.25")
	t.Setenv("RINGGEN_BLENDER_TIMEOUT_SECONDS", "60")
	t.Setenv("RINGGEN_LOG_LEVEL", "DEBUG")
	t.Setenv("RINGGEN_STORAGE_DIR", "/var/ringgen")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5, cfg.MaxErrorRetries)
	assert.Equal(t, 1.25, cfg.MaxCostPerRequestUSD)
	assert.Equal(t, time.Minute, cfg.BlenderTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "/var/ringgen/sessions", cfg.SessionsDir)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RINGGEN_PORT", "not-a-port")
	t.Setenv("RINGGEN_MAX_COST_PER_REQUEST_USD", "free")

	cfg := Load()
	assert.Equal(t, 8003, cfg.Port)
	assert.Equal(t, 5.0, cfg.MaxCostPerRequestUSD)
}

func TestProviderAvailability(t *testing.T) {
	cfg := Config{}
	assert.False(t, cfg.ClaudeAvailable())
	assert.False(t, cfg.GeminiAvailable())

	cfg.AnthropicAPIKey = "sk-test"
	cfg.GeminiAPIKey = "g-test"
	assert.True(t, cfg.ClaudeAvailable())
	assert.True(t, cfg.GeminiAvailable())
}
