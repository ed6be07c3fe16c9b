// Package embedding provides clients for external embedding providers and
// the caching/limiting layer the similarity engine calls through.
package embedding

import "context"

// Provider is the interface for generating vector embeddings.
// Vector dimensionality is fixed per provider configuration; vectors from
// different providers or models must never be compared against each other.
type Provider interface {
	// Embed maps a serialized value to a fixed-length vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the model identifier, used in cache keys so that
	// vectors from different models never collide.
	Model() string
}
