// Package postgres provides the PostgreSQL implementation of the storage
// interfaces.
package postgres

// Schema contains the SQL statements to create the database schema for
// PostgreSQL. The embeddings table carries an optional pgvector column
// (embedding_vec) created separately when the extension is available.
const Schema = `
-- Signatures table: append-only versioned function signatures
CREATE TABLE IF NOT EXISTS signatures (
    function_name TEXT NOT NULL,
    version INTEGER NOT NULL,
    descriptor_hash TEXT NOT NULL,
    input_descriptor JSONB NOT NULL,
    return_descriptor JSONB NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    list_policy TEXT NOT NULL DEFAULT 'unordered',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (function_name, version),
    UNIQUE (function_name, descriptor_hash)
);

-- Examples table: immutable captured input/output pairs
CREATE TABLE IF NOT EXISTS examples (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL,
    function_name TEXT NOT NULL,
    version INTEGER NOT NULL,
    input JSONB NOT NULL,
    output JSONB NOT NULL,
    source TEXT NOT NULL,
    trace_id TEXT NOT NULL DEFAULT '',
    span_id TEXT NOT NULL DEFAULT '',
    parent_span_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (function_name, version) REFERENCES signatures(function_name, version)
);

CREATE INDEX IF NOT EXISTS idx_examples_function_version
    ON examples(function_name, version);

-- Labels table: current quality label per example
CREATE TABLE IF NOT EXISTS labels (
    example_id TEXT PRIMARY KEY REFERENCES examples(id),
    label DOUBLE PRECISION NOT NULL CHECK (label >= 0.0 AND label <= 1.0),
    labeled_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Embeddings table: persistent embedding cache keyed by content hash
CREATE TABLE IF NOT EXISTS embeddings (
    content_hash TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    embedding BYTEA NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// VectorSchema is applied when the pgvector extension is present.
// The dimension is fixed per deployment by the embedding provider config.
const VectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
ALTER TABLE embeddings ADD COLUMN IF NOT EXISTS embedding_vec vector(%d);
`
