package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/blackbox/internal/storage"
	"github.com/scrypster/blackbox/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode, and creates the
// schema. The dsn is a file path or ":memory:" for tests.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode allows concurrent readers to proceed
	// without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so that callers wait instead of getting an immediate
	// SQLITE_BUSY error when the connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isConstraintViolation reports whether err is a SQLite uniqueness or
// primary key violation. modernc.org/sqlite exposes these only through
// the error text.
func isConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// CreateSignature inserts a new append-only signature version.
// Returns storage.ErrSignatureConflict when another writer already
// created a row for the same (function_name, hash) or version.
func (s *Store) CreateSignature(ctx context.Context, sig *types.FunctionSignature) error {
	if sig == nil {
		return storage.ErrInvalidInput
	}
	if sig.FunctionName == "" {
		return fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}
	if sig.Version < 1 {
		return fmt.Errorf("%w: version must be >= 1", storage.ErrInvalidInput)
	}
	if sig.DescriptorHash == "" {
		return fmt.Errorf("%w: descriptor hash is required", storage.ErrInvalidInput)
	}

	inputJSON, err := json.Marshal(sig.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input descriptor: %w", err)
	}
	returnJSON, err := json.Marshal(sig.Return)
	if err != nil {
		return fmt.Errorf("failed to marshal return descriptor: %w", err)
	}

	policy := sig.ListPolicy
	if policy == "" {
		policy = types.ListUnordered
	}

	createdAt := sig.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO signatures (function_name, version, descriptor_hash,
			input_descriptor, return_descriptor, description, list_policy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		sig.FunctionName, sig.Version, sig.DescriptorHash,
		string(inputJSON), string(returnJSON), sig.Description, string(policy), createdAt)
	if err != nil {
		if isConstraintViolation(err) {
			return storage.ErrSignatureConflict
		}
		return fmt.Errorf("failed to insert signature: %w", err)
	}

	return nil
}

const signatureColumns = `function_name, version, descriptor_hash,
	input_descriptor, return_descriptor, description, list_policy, created_at`

// scanSignature reads one signature row from a row scanner.
func scanSignature(row interface{ Scan(...any) error }) (*types.FunctionSignature, error) {
	var sig types.FunctionSignature
	var inputJSON, returnJSON, policy string

	err := row.Scan(&sig.FunctionName, &sig.Version, &sig.DescriptorHash,
		&inputJSON, &returnJSON, &sig.Description, &policy, &sig.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan signature: %w", err)
	}

	if err := json.Unmarshal([]byte(inputJSON), &sig.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input descriptor: %w", err)
	}
	if err := json.Unmarshal([]byte(returnJSON), &sig.Return); err != nil {
		return nil, fmt.Errorf("failed to unmarshal return descriptor: %w", err)
	}
	sig.ListPolicy = types.ListPolicy(policy)

	return &sig, nil
}

// LatestSignature returns the highest version for a function name.
func (s *Store) LatestSignature(ctx context.Context, functionName string) (*types.FunctionSignature, error) {
	if functionName == "" {
		return nil, fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + signatureColumns + `
		FROM signatures WHERE function_name = ?
		ORDER BY version DESC LIMIT 1`

	return scanSignature(s.db.QueryRowContext(ctx, query, functionName))
}

// GetSignature returns one specific version.
func (s *Store) GetSignature(ctx context.Context, functionName string, version int) (*types.FunctionSignature, error) {
	if functionName == "" {
		return nil, fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + signatureColumns + `
		FROM signatures WHERE function_name = ? AND version = ?`

	return scanSignature(s.db.QueryRowContext(ctx, query, functionName, version))
}

// GetSignatureByHash looks a version up by its content hash.
func (s *Store) GetSignatureByHash(ctx context.Context, functionName, descriptorHash string) (*types.FunctionSignature, error) {
	if functionName == "" || descriptorHash == "" {
		return nil, fmt.Errorf("%w: function name and hash are required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + signatureColumns + `
		FROM signatures WHERE function_name = ? AND descriptor_hash = ?`

	return scanSignature(s.db.QueryRowContext(ctx, query, functionName, descriptorHash))
}

// ListSignatures returns all versions of a function in ascending order.
func (s *Store) ListSignatures(ctx context.Context, functionName string) ([]*types.FunctionSignature, error) {
	if functionName == "" {
		return nil, fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + signatureColumns + `
		FROM signatures WHERE function_name = ? ORDER BY version ASC`

	rows, err := s.db.QueryContext(ctx, query, functionName)
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	defer rows.Close()

	var sigs []*types.FunctionSignature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// PutExample inserts a new immutable example row.
func (s *Store) PutExample(ctx context.Context, example *types.Example) error {
	if example == nil {
		return storage.ErrInvalidInput
	}
	if example.ID == "" {
		return fmt.Errorf("%w: example ID is required", storage.ErrInvalidInput)
	}
	if example.FunctionName == "" {
		return fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}
	if example.Version < 1 {
		return fmt.Errorf("%w: version must be >= 1", storage.ErrInvalidInput)
	}

	inputJSON, err := json.Marshal(example.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}
	outputJSON, err := json.Marshal(example.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	createdAt := example.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO examples (id, function_name, version, input, output,
			source, trace_id, span_id, parent_span_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		example.ID, example.FunctionName, example.Version,
		string(inputJSON), string(outputJSON), string(example.Source),
		example.TraceID, example.SpanID, example.ParentSpanID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert example: %w", err)
	}

	// An example may arrive pre-labeled (dataset import).
	if example.Label != nil {
		if _, err := s.LabelExample(ctx, example.ID, *example.Label); err != nil {
			return err
		}
	}

	return nil
}

const exampleColumns = `e.id, e.function_name, e.version, e.input, e.output,
	e.source, e.trace_id, e.span_id, e.parent_span_id, e.created_at, l.label`

// scanExample reads one example row (joined with its label) from a scanner.
func scanExample(row interface{ Scan(...any) error }) (*types.Example, error) {
	var e types.Example
	var inputJSON, outputJSON, source string
	var label sql.NullFloat64

	err := row.Scan(&e.ID, &e.FunctionName, &e.Version, &inputJSON, &outputJSON,
		&source, &e.TraceID, &e.SpanID, &e.ParentSpanID, &e.CreatedAt, &label)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan example: %w", err)
	}

	if err := json.Unmarshal([]byte(inputJSON), &e.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}
	if err := json.Unmarshal([]byte(outputJSON), &e.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	e.Source = types.SourceTag(source)
	if label.Valid {
		v := label.Float64
		e.Label = &v
	}

	return &e, nil
}

// GetExample retrieves an example by ID with its current label.
func (s *Store) GetExample(ctx context.Context, id string) (*types.Example, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: example ID is required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + exampleColumns + `
		FROM examples e LEFT JOIN labels l ON l.example_id = e.id
		WHERE e.id = ?`

	return scanExample(s.db.QueryRowContext(ctx, query, id))
}

// ListExamples retrieves examples for a function in insertion order.
func (s *Store) ListExamples(ctx context.Context, functionName string, opts storage.ListOptions) ([]*types.Example, error) {
	if functionName == "" {
		return nil, fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}
	opts.Normalize()

	join := "LEFT JOIN"
	if opts.LabeledOnly {
		join = "INNER JOIN"
	}

	conditions := []string{"e.function_name = ?"}
	args := []any{functionName}

	if opts.MinVersion > 0 {
		conditions = append(conditions, "e.version >= ?")
		args = append(args, opts.MinVersion)
	}
	if opts.MaxVersion > 0 {
		conditions = append(conditions, "e.version <= ?")
		args = append(args, opts.MaxVersion)
	}
	if opts.Source != "" {
		conditions = append(conditions, "e.source = ?")
		args = append(args, string(opts.Source))
	}

	query := `SELECT ` + exampleColumns + `
		FROM examples e ` + join + ` labels l ON l.example_id = e.id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY e.rowid ASC
		LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list examples: %w", err)
	}
	defer rows.Close()

	var examples []*types.Example
	for rows.Next() {
		e, err := scanExample(rows)
		if err != nil {
			return nil, err
		}
		examples = append(examples, e)
	}
	return examples, rows.Err()
}

// LabelExample attaches or replaces the quality label on an example.
// The examples row itself is never touched.
func (s *Store) LabelExample(ctx context.Context, id string, label float64) (*types.Example, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: example ID is required", storage.ErrInvalidInput)
	}
	if !types.ValidLabel(label) {
		return nil, fmt.Errorf("%w: label %v outside [0,1]", storage.ErrInvalidInput, label)
	}

	// Verify the example exists before upserting the label; the labels
	// table FK alone would produce an opaque constraint error.
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM examples WHERE id = ?", id).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to check example: %w", err)
	}

	query := `
		INSERT INTO labels (example_id, label, labeled_at)
		VALUES (?, ?, ?)
		ON CONFLICT(example_id) DO UPDATE SET
			label = excluded.label,
			labeled_at = excluded.labeled_at
	`

	if _, err := s.db.ExecContext(ctx, query, id, label, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to upsert label: %w", err)
	}

	return s.GetExample(ctx, id)
}

// GetEmbedding returns the cached vector for a content-hash key.
func (s *Store) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: cache key is required", storage.ErrInvalidInput)
	}

	var buf []byte
	var dimension int
	err := s.db.QueryRowContext(ctx,
		"SELECT embedding, dimension FROM embeddings WHERE content_hash = ?", key).
		Scan(&buf, &dimension)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	return deserializeEmbedding(buf, dimension)
}

// PutEmbedding stores a vector under a content-hash key (upsert).
func (s *Store) PutEmbedding(ctx context.Context, key, model string, embedding []float32) error {
	if key == "" {
		return fmt.Errorf("%w: cache key is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if model == "" {
		return fmt.Errorf("%w: model is required", storage.ErrInvalidInput)
	}

	query := `
		INSERT INTO embeddings (content_hash, model, dimension, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			model = excluded.model,
			dimension = excluded.dimension,
			embedding = excluded.embedding
	`

	_, err := s.db.ExecContext(ctx, query,
		key, model, len(embedding), serializeEmbedding(embedding), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// serializeEmbedding encodes a vector as little-endian float32 bytes.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes little-endian float32 bytes.
func deserializeEmbedding(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}

	embedding := make([]float32, dimension)
	for i := 0; i < dimension; i++ {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding, nil
}
