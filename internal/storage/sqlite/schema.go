// Package sqlite provides the SQLite implementation of the storage interfaces.
package sqlite

// Schema contains the SQL statements to create the database schema.
// Signature and example rows are append-only; labels live in their own
// table so that labeling never rewrites a captured record.
const Schema = `
-- Signatures table: append-only versioned function signatures
CREATE TABLE IF NOT EXISTS signatures (
    function_name TEXT NOT NULL,
    version INTEGER NOT NULL,
    descriptor_hash TEXT NOT NULL,
    input_descriptor TEXT NOT NULL,
    return_descriptor TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    list_policy TEXT NOT NULL DEFAULT 'unordered',
    created_at TIMESTAMP NOT NULL,

    PRIMARY KEY (function_name, version),
    UNIQUE (function_name, descriptor_hash)
);

-- Examples table: immutable captured input/output pairs
CREATE TABLE IF NOT EXISTS examples (
    id TEXT PRIMARY KEY,
    function_name TEXT NOT NULL,
    version INTEGER NOT NULL,
    input TEXT NOT NULL,
    output TEXT NOT NULL,
    source TEXT NOT NULL,
    trace_id TEXT NOT NULL DEFAULT '',
    span_id TEXT NOT NULL DEFAULT '',
    parent_span_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,

    FOREIGN KEY (function_name, version) REFERENCES signatures(function_name, version)
);

CREATE INDEX IF NOT EXISTS idx_examples_function_version
    ON examples(function_name, version);

-- Labels table: current quality label per example. Upsert semantics keep
-- the examples table untouched when a reviewer labels or relabels.
CREATE TABLE IF NOT EXISTS labels (
    example_id TEXT PRIMARY KEY REFERENCES examples(id),
    label REAL NOT NULL CHECK (label >= 0.0 AND label <= 1.0),
    labeled_at TIMESTAMP NOT NULL
);

-- Embeddings table: persistent embedding cache keyed by content hash
CREATE TABLE IF NOT EXISTS embeddings (
    content_hash TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    embedding BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`
