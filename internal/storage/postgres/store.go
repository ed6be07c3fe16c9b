package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/blackbox/internal/storage"
	"github.com/scrypster/blackbox/pkg/types"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// Config holds connection settings for the PostgreSQL store.
type Config struct {
	// DSN is the lib/pq connection string.
	DSN string

	// VectorDimension is the embedding dimensionality used to declare the
	// pgvector column. Must match the configured embedding provider.
	VectorDimension int
}

// NewStore connects to PostgreSQL, creates the schema, and probes for the
// pgvector extension. When pgvector is unavailable the embedding cache
// falls back to BYTEA-only storage.
func NewStore(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{db: db}

	if cfg.VectorDimension > 0 {
		if _, err := db.Exec(fmt.Sprintf(VectorSchema, cfg.VectorDimension)); err != nil {
			log.Printf("postgres: pgvector unavailable, embedding cache uses BYTEA only: %v", err)
		} else {
			s.pgvectorAvailable = true
		}
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateSignature inserts a new append-only signature version.
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		sig.FunctionName, sig.Version, sig.DescriptorHash,
		inputJSON, returnJSON, sig.Description, string(policy), createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrSignatureConflict
		}
		return fmt.Errorf("failed to insert signature: %w", err)
	}

	return nil
}

const signatureColumns = `function_name, version, descriptor_hash,
	input_descriptor, return_descriptor, description, list_policy, created_at`

func scanSignature(row interface{ Scan(...any) error }) (*types.FunctionSignature, error) {
	var sig types.FunctionSignature
	var inputJSON, returnJSON []byte
	var policy string

	err := row.Scan(&sig.FunctionName, &sig.Version, &sig.DescriptorHash,
		&inputJSON, &returnJSON, &sig.Description, &policy, &sig.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan signature: %w", err)
	}

	if err := json.Unmarshal(inputJSON, &sig.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input descriptor: %w", err)
	}
	if err := json.Unmarshal(returnJSON, &sig.Return); err != nil {
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
		FROM signatures WHERE function_name = $1
		ORDER BY version DESC LIMIT 1`

	return scanSignature(s.db.QueryRowContext(ctx, query, functionName))
}

// GetSignature returns one specific version.
func (s *Store) GetSignature(ctx context.Context, functionName string, version int) (*types.FunctionSignature, error) {
	if functionName == "" {
		return nil, fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + signatureColumns + `
		FROM signatures WHERE function_name = $1 AND version = $2`

	return scanSignature(s.db.QueryRowContext(ctx, query, functionName, version))
}

// GetSignatureByHash looks a version up by its content hash.
func (s *Store) GetSignatureByHash(ctx context.Context, functionName, descriptorHash string) (*types.FunctionSignature, error) {
	if functionName == "" || descriptorHash == "" {
		return nil, fmt.Errorf("%w: function name and hash are required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + signatureColumns + `
		FROM signatures WHERE function_name = $1 AND descriptor_hash = $2`

	return scanSignature(s.db.QueryRowContext(ctx, query, functionName, descriptorHash))
}

// ListSignatures returns all versions of a function in ascending order.
func (s *Store) ListSignatures(ctx context.Context, functionName string) ([]*types.FunctionSignature, error) {
	if functionName == "" {
		return nil, fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + signatureColumns + `
		FROM signatures WHERE function_name = $1 ORDER BY version ASC`

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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.db.ExecContext(ctx, query,
		example.ID, example.FunctionName, example.Version,
		inputJSON, outputJSON, string(example.Source),
		example.TraceID, example.SpanID, example.ParentSpanID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert example: %w", err)
	}

	if example.Label != nil {
		if _, err := s.LabelExample(ctx, example.ID, *example.Label); err != nil {
			return err
		}
	}

	return nil
}

const exampleColumns = `e.id, e.function_name, e.version, e.input, e.output,
	e.source, e.trace_id, e.span_id, e.parent_span_id, e.created_at, l.label`

func scanExample(row interface{ Scan(...any) error }) (*types.Example, error) {
	var e types.Example
	var inputJSON, outputJSON []byte
	var source string
	var label sql.NullFloat64

	err := row.Scan(&e.ID, &e.FunctionName, &e.Version, &inputJSON, &outputJSON,
		&source, &e.TraceID, &e.SpanID, &e.ParentSpanID, &e.CreatedAt, &label)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan example: %w", err)
	}

	if err := json.Unmarshal(inputJSON, &e.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}
	if err := json.Unmarshal(outputJSON, &e.Output); err != nil {
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
		WHERE e.id = $1`

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

	conditions := []string{"e.function_name = $1"}
	args := []any{functionName}

	if opts.MinVersion > 0 {
		args = append(args, opts.MinVersion)
		conditions = append(conditions, fmt.Sprintf("e.version >= $%d", len(args)))
	}
	if opts.MaxVersion > 0 {
		args = append(args, opts.MaxVersion)
		conditions = append(conditions, fmt.Sprintf("e.version <= $%d", len(args)))
	}
	if opts.Source != "" {
		args = append(args, string(opts.Source))
		conditions = append(conditions, fmt.Sprintf("e.source = $%d", len(args)))
	}

	args = append(args, opts.Limit)
	query := `SELECT ` + exampleColumns + `
		FROM examples e ` + join + ` labels l ON l.example_id = e.id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY e.seq ASC
		LIMIT $` + fmt.Sprint(len(args))

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
func (s *Store) LabelExample(ctx context.Context, id string, label float64) (*types.Example, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: example ID is required", storage.ErrInvalidInput)
	}
	if !types.ValidLabel(label) {
		return nil, fmt.Errorf("%w: label %v outside [0,1]", storage.ErrInvalidInput, label)
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM examples WHERE id = $1", id).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to check example: %w", err)
	}

	query := `
		INSERT INTO labels (example_id, label, labeled_at)
		VALUES ($1, $2, $3)
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
		"SELECT embedding, dimension FROM embeddings WHERE content_hash = $1", key).
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
// The vector is always stored as BYTEA; when pgvector is available it is
// also written to the vector column for cosine-distance queries by
// external analytics tooling.
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

	buf := serializeEmbedding(embedding)
	now := time.Now().UTC()

	if s.pgvectorAvailable {
		vec := pgvector.NewVector(embedding)
		query := `
			INSERT INTO embeddings (content_hash, model, dimension, embedding, embedding_vec, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT(content_hash) DO UPDATE SET
				model = excluded.model,
				dimension = excluded.dimension,
				embedding = excluded.embedding,
				embedding_vec = excluded.embedding_vec
		`
		_, err := s.db.ExecContext(ctx, query, key, model, len(embedding), buf, vec, now)
		if err == nil {
			return nil
		}
		log.Printf("postgres: failed to store embedding_vec (falling back to BYTEA only): %v", err)
	}

	query := `
		INSERT INTO embeddings (content_hash, model, dimension, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(content_hash) DO UPDATE SET
			model = excluded.model,
			dimension = excluded.dimension,
			embedding = excluded.embedding
	`
	if _, err := s.db.ExecContext(ctx, query, key, model, len(embedding), buf, now); err != nil {
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
