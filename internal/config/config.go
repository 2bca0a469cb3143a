package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	AutoMigrate      bool
	ServerPort       string
	BaseURL          string
	FrontendURL      string
	EnableHSTS       bool
	RedisURL         string
	MemoryCacheSize  int
	RabbitMQURL      string
	RabbitMQPrefetch int
	DLQRetention     time.Duration
	RateLimit        string

	AIProvider      string
	OpenAIKey       string
	OpenAIModel     string
	OpenAIBase      string
	GeminiKey       string
	GeminiModel     string
	ContextCoalesce bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	SessionSecret      string
	SessionTTL         time.Duration

	WorkerDebugMode bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	e := env(getenv)
	cfg := &Config{
		DatabaseURL:      e.str("DATABASE_URL", ""),
		AutoMigrate:      e.bool("AUTO_MIGRATE", false),
		ServerPort:       e.str("SERVER_PORT", "8080"),
		BaseURL:          e.str("BASE_URL", "http://localhost:8080"),
		FrontendURL:      e.str("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:       e.bool("ENABLE_HSTS", false),
		RedisURL:         e.str("REDIS_URL", ""),
		MemoryCacheSize:  e.int("MEMORY_CACHE_SIZE", 1024),
		RabbitMQURL:      e.str("RABBITMQ_URL", ""),
		RabbitMQPrefetch: e.int("RABBITMQ_PREFETCH", 1),
		DLQRetention:     e.duration("DLQ_RETENTION", 7*24*time.Hour),
		RateLimit:        e.str("RATE_LIMIT", "100-M"),

		AIProvider:      e.str("AI_PROVIDER", "openai"),
		OpenAIKey:       e.str("OPENAI_API_KEY", ""),
		OpenAIModel:     e.str("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBase:      e.str("OPENAI_BASE_URL", ""),
		GeminiKey:       e.str("GEMINI_API_KEY", ""),
		GeminiModel:     e.str("GEMINI_MODEL", "gemini-2.0-flash"),
		ContextCoalesce: e.bool("CONTEXT_COALESCE", false),

		GoogleClientID:     e.str("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: e.str("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  e.str("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		SessionSecret:      e.str("SESSION_SECRET", ""),
		SessionTTL:         e.duration("SESSION_TTL", 7*24*time.Hour),

		WorkerDebugMode: e.bool("WORKER_DEBUG_MODE", false),
		ServerDebugMode: e.bool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     e.bool("OTEL_ENABLED", false),
		OTELEndpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.AIProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q (expected openai or gemini)", cfg.AIProvider)
	}

	return cfg, nil
}

// AIKey returns the API key of the selected provider.
func (c *Config) AIKey() string {
	if c.AIProvider == "gemini" {
		return c.GeminiKey
	}
	return c.OpenAIKey
}

type env func(string) string

func (e env) str(key, defaultValue string) string {
	if value := e(key); value != "" {
		return value
	}
	return defaultValue
}

func (e env) bool(key string, defaultValue bool) bool {
	if value := e(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e env) int(key string, defaultValue int) int {
	if value := e(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e env) duration(key string, defaultValue time.Duration) time.Duration {
	if value := e(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
