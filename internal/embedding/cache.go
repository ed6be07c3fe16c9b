package embedding

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/scrypster/blackbox/internal/storage"
)

// ContentKey returns the cache key for a serialized value under a model:
// the SHA-256 hex digest of model and text. Including the model prevents
// vectors from different providers being compared against each other.
func ContentKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// CacheConfig holds configuration for the cached provider.
type CacheConfig struct {
	// LRUSize is the number of vectors kept in memory (default: 4096).
	LRUSize int

	// RatePerSecond limits sustained provider calls; 0 means unlimited.
	RatePerSecond float64

	// RateBurst is the limiter burst size (default: 16).
	RateBurst int

	// Persistent is an optional second-level cache (the storage layer's
	// embeddings table). Nil disables persistence.
	Persistent storage.EmbeddingCache
}

// CachedProvider wraps a Provider with an in-memory LRU cache, an
// optional persistent cache, in-flight deduplication, and client-side
// rate limiting. The same labeled example is embedded once and compared
// many times, so the cache carries most of the evaluation workload.
type CachedProvider struct {
	provider   Provider
	cache      *lru.Cache[string, []float32]
	persistent storage.EmbeddingCache
	limiter    *rate.Limiter
	group      singleflight.Group
}

// NewCachedProvider creates a caching wrapper around a provider.
func NewCachedProvider(provider Provider, cfg CacheConfig) (*CachedProvider, error) {
	if provider == nil {
		return nil, errors.New("embedding: provider is required")
	}

	size := cfg.LRUSize
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create LRU cache: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 16
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &CachedProvider{
		provider:   provider,
		cache:      cache,
		persistent: cfg.Persistent,
		limiter:    limiter,
	}, nil
}

// Model returns the wrapped provider's model identifier.
func (c *CachedProvider) Model() string {
	return c.provider.Model()
}

// Embed returns the vector for text, from cache when possible.
//
// Concurrent requests for the same key share a single provider call.
// A caller whose context is cancelled stops waiting immediately, but the
// dispatched provider call runs to completion on a detached context and
// its result still lands in the cache, so the work is not wasted.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := ContentKey(c.provider.Model(), text)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetch(context.WithoutCancel(ctx), key, text)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

// fetch consults the persistent cache, then the provider, populating both
// cache levels on the way out.
func (c *CachedProvider) fetch(ctx context.Context, key, text string) ([]float32, error) {
	if c.persistent != nil {
		vec, err := c.persistent.GetEmbedding(ctx, key)
		if err == nil {
			c.cache.Add(key, vec)
			return vec, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("embedding: persistent cache read failed for %.12s: %v", key, err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)

	if c.persistent != nil {
		if err := c.persistent.PutEmbedding(ctx, key, c.provider.Model(), vec); err != nil {
			// Cache population is best effort; the vector is already
			// in memory for this process.
			log.Printf("embedding: persistent cache write failed for %.12s: %v", key, err)
		}
	}

	return vec, nil
}
