package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.OllamaModel)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 4096, cfg.Embedding.CacheSize)
	assert.Equal(t, 8, cfg.Eval.MaxConcurrentEmbeds)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BLACKBOX_STORAGE_ENGINE", "postgres")
	t.Setenv("BLACKBOX_POSTGRES_DSN", "postgres://localhost/blackbox?sslmode=disable")
	t.Setenv("BLACKBOX_EMBEDDING_PROVIDER", "openai")
	t.Setenv("BLACKBOX_OPENAI_API_KEY", "sk-test")
	t.Setenv("BLACKBOX_EMBEDDING_DIMENSION", "1536")
	t.Setenv("BLACKBOX_EMBEDDING_RATE_PER_SECOND", "2.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.OpenAIAPIKey)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 2.5, cfg.Embedding.RatePerSecond)
}

func TestLoadConfigInvalidIntFallsBack(t *testing.T) {
	t.Setenv("BLACKBOX_EMBEDDING_DIMENSION", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestValidateRejectsBadEngine(t *testing.T) {
	t.Setenv("BLACKBOX_STORAGE_ENGINE", "cassandra")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateRequiresPostgresDSN(t *testing.T) {
	t.Setenv("BLACKBOX_STORAGE_ENGINE", "postgres")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateRejectsBadProvider(t *testing.T) {
	t.Setenv("BLACKBOX_EMBEDDING_PROVIDER", "anthropic")

	_, err := LoadConfig()
	assert.Error(t, err)
}
