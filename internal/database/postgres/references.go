package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// ReferenceRepository caches reference face embeddings keyed by name.
type ReferenceRepository struct {
	pool *Pool
}

// NewReferenceRepository creates a reference cache on top of the pool.
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// GetReference returns the cached embedding when the stored content hash matches.
func (r *ReferenceRepository) GetReference(ctx context.Context, name, contentHash string) (*database.StoredReference, error) {
	var ref database.StoredReference
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, `
		SELECT name, content_hash, embedding, model, dim, updated_at
		FROM reference_embeddings
		WHERE name = $1 AND content_hash = $2
	`, name, contentHash).Scan(&ref.Name, &ref.ContentHash, &vec, &ref.Model, &ref.Dim, &ref.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reference %s: %w", name, err)
	}
	ref.Embedding = vec.Slice()
	return &ref, nil
}

// SaveReference upserts the embedding for the name.
func (r *ReferenceRepository) SaveReference(ctx context.Context, ref database.StoredReference) error {
	if len(ref.Embedding) == 0 {
		return fmt.Errorf("reference %s has no embedding", ref.Name)
	}
	dim := ref.Dim
	if dim == 0 {
		dim = len(ref.Embedding)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reference_embeddings (name, content_hash, embedding, model, dim, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (name) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			updated_at = NOW()
	`, ref.Name, ref.ContentHash, pgvector.NewVector(ref.Embedding), ref.Model, dim)
	if err != nil {
		return fmt.Errorf("save reference %s: %w", ref.Name, err)
	}
	return nil
}

// DeleteReference removes the cached embedding for the name.
func (r *ReferenceRepository) DeleteReference(ctx context.Context, name string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM reference_embeddings WHERE name = $1", name); err != nil {
		return fmt.Errorf("delete reference %s: %w", name, err)
	}
	return nil
}

// Count returns the number of cached references.
func (r *ReferenceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM reference_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return count, nil
}
