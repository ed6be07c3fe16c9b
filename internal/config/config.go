// Package config provides configuration management for Blackbox.
// It loads settings from environment variables with the BLACKBOX_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration settings for the Blackbox evaluation system.
type Config struct {
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Eval      EvalConfig
	Notify    NotifyConfig
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath    string // Path to data directory for SQLite (default: ./data)
	PostgresDSN string // lib/pq connection string when Engine is postgres
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider      string  // Embedding provider: ollama, openai (default: ollama)
	OllamaURL     string  // Ollama API URL (default: http://localhost:11434)
	OllamaModel   string  // Ollama embedding model (default: nomic-embed-text)
	OpenAIAPIKey  string  // OpenAI API key
	OpenAIModel   string  // OpenAI embedding model (default: text-embedding-3-small)
	OpenAIBaseURL string  // OpenAI API base URL
	Dimension     int     // Vector dimensionality, fixed per provider (default: 768)
	CacheSize     int     // In-memory LRU cache entries (default: 4096)
	RatePerSecond float64 // Sustained embedding request rate, 0 = unlimited (default: 0)
	RateBurst     int     // Burst size for the rate limiter (default: 16)
}

// EvalConfig contains similarity and correlation evaluation settings.
type EvalConfig struct {
	// MaxConcurrentEmbeds bounds how many embedding requests one
	// similarity or evaluation batch may have in flight (default: 8).
	MaxConcurrentEmbeds int
}

// NotifyConfig contains filesystem event notification settings.
type NotifyConfig struct {
	// EventsPath is the directory where capture/evaluation event files
	// are written for external watchers. Empty disables notifications.
	EventsPath string
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the BLACKBOX_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			Engine:      getEnv("BLACKBOX_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("BLACKBOX_DATA_PATH", "./data"),
			PostgresDSN: getEnv("BLACKBOX_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:      getEnv("BLACKBOX_EMBEDDING_PROVIDER", "ollama"),
			OllamaURL:     getEnv("BLACKBOX_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("BLACKBOX_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:  getEnv("BLACKBOX_OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("BLACKBOX_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			OpenAIBaseURL: getEnv("BLACKBOX_OPENAI_BASE_URL", ""),
			Dimension:     getEnvInt("BLACKBOX_EMBEDDING_DIMENSION", 768),
			CacheSize:     getEnvInt("BLACKBOX_EMBEDDING_CACHE_SIZE", 4096),
			RatePerSecond: getEnvFloat("BLACKBOX_EMBEDDING_RATE_PER_SECOND", 0),
			RateBurst:     getEnvInt("BLACKBOX_EMBEDDING_RATE_BURST", 16),
		},
		Eval: EvalConfig{
			MaxConcurrentEmbeds: getEnvInt("BLACKBOX_MAX_CONCURRENT_EMBEDS", 8),
		},
		Notify: NotifyConfig{
			EventsPath: getEnv("BLACKBOX_EVENTS_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that env parsing cannot catch.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.Engine)
	}

	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: BLACKBOX_POSTGRES_DSN is required when storage engine is postgres")
	}

	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unsupported embedding provider %q", c.Embedding.Provider)
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}

	if c.Eval.MaxConcurrentEmbeds <= 0 {
		return fmt.Errorf("config: max concurrent embeds must be positive, got %d", c.Eval.MaxConcurrentEmbeds)
	}

	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as a float,
// it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
