// Package config holds environment-driven configuration for the ring
// generation service.
package config

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// Service
	ServiceName string
	Host        string
	Port        int
	APIKey      string // when set, requests must carry X-API-Key

	// LLM providers
	AnthropicAPIKey string
	ClaudeModel     string
	ClaudeSonnet    string
	GeminiAPIKey    string
	GeminiModel     string
	OllamaHost      string
	OllamaModel     string
	BedrockModel    string
	MaxLLMTokens    int

	// Blender
	BlenderExecutable string
	BlenderTimeout    time.Duration

	// Pipeline defaults (per-request overridable)
	MaxErrorRetries      int
	MaxCostPerRequestUSD float64

	// Prompts and pricing
	MasterPromptPath string
	PricingPath      string

	// Storage
	StorageDir   string
	SessionsDir  string
	ArtifactsDir string

	// Job execution
	MaxConcurrentJobs int
	MaxQueueSize      int
	SyncWaitTimeout   time.Duration
	FinishedJobTTL    time.Duration
	CleanupInterval   time.Duration
	MaxJobRecords     int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from RINGGEN_* environment variables with
// defaults matching the original service deployment.
func Load() Config {
	storageDir := getEnv("RINGGEN_STORAGE_DIR", "./data")
	return Config{
		ServiceName: getEnv("RINGGEN_SERVICE_NAME", "ring-generator-service"),
		Host:        getEnv("RINGGEN_HOST", "0.0.0.0"),
		Port:        getEnvInt("RINGGEN_PORT", 8003),
		APIKey:      getEnv("RINGGEN_API_KEY", ""),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ClaudeModel:     getEnv("RINGGEN_CLAUDE_MODEL", "claude-opus-4-6"),
		ClaudeSonnet:    getEnv("RINGGEN_CLAUDE_SONNET_MODEL", "claude-sonnet-4-6"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-3-pro-preview"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:     getEnv("RINGGEN_OLLAMA_MODEL", "qwen2.5-coder:32b"),
		BedrockModel:    getEnv("RINGGEN_BEDROCK_MODEL", ""),
		MaxLLMTokens:    getEnvInt("RINGGEN_MAX_LLM_TOKENS", 20000),

		BlenderExecutable: findBlender(),
		BlenderTimeout:    getEnvSeconds("RINGGEN_BLENDER_TIMEOUT_SECONDS", 300),

		MaxErrorRetries:      getEnvInt("RINGGEN_MAX_ERROR_RETRIES", 3),
		MaxCostPerRequestUSD: getEnvFloat("RINGGEN_MAX_COST_PER_REQUEST_USD", 5.0),

		MasterPromptPath: getEnv("RINGGEN_MASTER_PROMPT_PATH", "./prompts/master_prompt.txt"),
		PricingPath:      getEnv("RINGGEN_PRICING_PATH", ""),

		StorageDir:   storageDir,
		SessionsDir:  filepath.Join(storageDir, "sessions"),
		ArtifactsDir: getEnv("RINGGEN_ARTIFACTS_DIR", ""),

		MaxConcurrentJobs: getEnvInt("RINGGEN_MAX_CONCURRENT_JOBS", defaultConcurrency()),
		MaxQueueSize:      getEnvInt("RINGGEN_MAX_QUEUE_SIZE", 64),
		SyncWaitTimeout:   getEnvSeconds("RINGGEN_SYNC_WAIT_TIMEOUT_SECONDS", 600),
		FinishedJobTTL:    getEnvSeconds("RINGGEN_FINISHED_JOB_TTL_SECONDS", 3600),
		CleanupInterval:   getEnvSeconds("RINGGEN_CLEANUP_INTERVAL_SECONDS", 30),
		MaxJobRecords:     getEnvInt("RINGGEN_MAX_JOB_RECORDS", 2000),

		LogFile:  getEnv("RINGGEN_LOG_FILE", "/tmp/ringgen.log"),
		LogLevel: parseLogLevel(getEnv("RINGGEN_LOG_LEVEL", "INFO")),
	}
}

// ClaudeAvailable reports whether Anthropic-backed generation can run.
func (c Config) ClaudeAvailable() bool { return c.AnthropicAPIKey != "" }

// GeminiAvailable reports whether Gemini-backed generation can run.
func (c Config) GeminiAvailable() bool { return c.GeminiAPIKey != "" }

// defaultConcurrency derives the worker count from hardware parallelism,
// clamped to [1,32].
func defaultConcurrency() int {
	cpu := runtime.NumCPU()
	return min(max(cpu, 1), 32)
}

// findBlender resolves the Blender executable from env overrides, PATH,
// then a well-known install location.
func findBlender() string {
	candidates := []string{
		os.Getenv("RINGGEN_BLENDER_EXECUTABLE"),
		os.Getenv("BLENDER_PATH"),
		os.Getenv("BLENDER_EXEC"),
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	if path, err := exec.LookPath("blender"); err == nil {
		return path
	}
	return "/usr/bin/blender"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
