package embedding

import (
	"fmt"

	"github.com/scrypster/blackbox/internal/config"
	"github.com/scrypster/blackbox/internal/storage"
)

// NewProvider creates the appropriate embedding Provider from config.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}

// NewCachedProviderFromConfig builds the full provider stack used by the
// similarity engine: provider client, rate limiting, and two-level cache.
// persistent may be nil to run without the storage-backed cache.
func NewCachedProviderFromConfig(cfg config.EmbeddingConfig, persistent storage.EmbeddingCache) (*CachedProvider, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewCachedProvider(provider, CacheConfig{
		LRUSize:       cfg.CacheSize,
		RatePerSecond: cfg.RatePerSecond,
		RateBurst:     cfg.RateBurst,
		Persistent:    persistent,
	})
}
