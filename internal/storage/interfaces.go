// Package storage provides composable storage interfaces for the Blackbox
// evaluation system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Both the SQLite and
// PostgreSQL backends implement the full Store interface.
package storage

import (
	"context"

	"github.com/scrypster/blackbox/pkg/types"
)

// SignatureStore persists versioned function signatures. Signature rows
// are append-only: versions are never updated or deleted once created.
type SignatureStore interface {
	// CreateSignature inserts a new signature version. It returns
	// ErrSignatureConflict when a row with the same (function_name,
	// descriptor_hash) or (function_name, version) already exists, which
	// is how concurrent resolutions of the same change collapse into a
	// single version.
	CreateSignature(ctx context.Context, sig *types.FunctionSignature) error

	// LatestSignature returns the highest version for a function name.
	// Returns ErrNotFound when the function has never been resolved.
	LatestSignature(ctx context.Context, functionName string) (*types.FunctionSignature, error)

	// GetSignature returns one specific version.
	// Returns ErrNotFound if it doesn't exist.
	GetSignature(ctx context.Context, functionName string, version int) (*types.FunctionSignature, error)

	// GetSignatureByHash looks a version up by its content hash.
	// Returns ErrNotFound if no version of the function has that hash.
	GetSignatureByHash(ctx context.Context, functionName, descriptorHash string) (*types.FunctionSignature, error)

	// ListSignatures returns all versions of a function, ascending.
	ListSignatures(ctx context.Context, functionName string) ([]*types.FunctionSignature, error)
}

// ExampleStore persists captured examples. Example rows are immutable;
// labeling attaches a logically replacing label record without touching
// the captured input/output.
type ExampleStore interface {
	// PutExample inserts a new example. The caller (the capture service)
	// is responsible for structural validation against the signature.
	PutExample(ctx context.Context, example *types.Example) error

	// GetExample retrieves an example by ID, with its current label if
	// one has been attached. Returns ErrNotFound if it doesn't exist.
	GetExample(ctx context.Context, id string) (*types.Example, error)

	// ListExamples retrieves examples for a function in insertion order,
	// filtered per opts.
	ListExamples(ctx context.Context, functionName string, opts ListOptions) ([]*types.Example, error)

	// LabelExample attaches or replaces the quality label on an example
	// and returns the updated read view. The captured input, output, and
	// version fields are never modified. Returns ErrNotFound if the
	// example doesn't exist.
	LabelExample(ctx context.Context, id string, label float64) (*types.Example, error)
}

// EmbeddingCache persists embedding vectors keyed by a content hash of
// the serialized value plus the model name. Entries are a pure cache:
// safe to evict at any time, recomputed on miss.
type EmbeddingCache interface {
	// GetEmbedding returns the cached vector for a key.
	// Returns ErrNotFound on a cache miss.
	GetEmbedding(ctx context.Context, key string) ([]float32, error)

	// PutEmbedding stores a vector under a key (upsert semantics).
	PutEmbedding(ctx context.Context, key, model string, embedding []float32) error
}

// Store is the full storage contract implemented by each backend.
type Store interface {
	SignatureStore
	ExampleStore
	EmbeddingCache

	// Close releases any resources held by the store.
	Close() error
}
