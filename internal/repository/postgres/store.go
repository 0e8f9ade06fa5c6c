// Package postgres implements the document_tags store on PostgreSQL with the
// pgvector extension. Similarity is cosine: the <=> operator returns cosine
// distance, so similarity = 1 - distance.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/gosexpert/tagvec/internal/domain"
)

// Config holds connection parameters for the tag store.
type Config struct {
	DSN        string
	Dimensions int
}

// Store implements the tag store contracts over database/sql + lib/pq.
type Store struct {
	db   *sql.DB
	dims int
}

// NewStore opens a connection pool to Postgres. The connection is lazy;
// call Ping or WaitForReady to verify connectivity.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return &Store{db: db, dims: cfg.Dimensions}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", domain.ErrStore, err)
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("store not ready after %s: %w", timeout, domain.ErrStore)
		case <-ticker.C:
		}
	}
}

// EnsureSchema creates the pgvector extension, the document_tags table and
// its HNSW cosine index when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_tags (
			id BIGSERIAL PRIMARY KEY,
			tag_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dims),
		`CREATE INDEX IF NOT EXISTS document_tags_embedding_idx
			ON document_tags USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w: %w", domain.ErrStore, err)
		}
	}
	return nil
}

// Insert writes a tag row and returns its generated id.
func (s *Store) Insert(ctx context.Context, tag domain.Tag) (int64, error) {
	if len(tag.Embedding) != s.dims {
		return 0, fmt.Errorf("insert tag: %w: %w: got %d dims, want %d",
			domain.ErrStore, domain.ErrVectorDimMismatch, len(tag.Embedding), s.dims)
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO document_tags (tag_name, description, keywords, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::vector, now(), now())
		 RETURNING id`,
		tag.Name, tag.Description, pq.Array(tag.Keywords), vectorLiteral(tag.Embedding),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert tag: %w: %w", domain.ErrStore, err)
	}
	return id, nil
}

// SearchNearest returns up to topK tags ordered by descending cosine
// similarity to the query vector. Rows without an embedding are skipped.
// The threshold cut happens in the caller, after this LIMIT.
func (s *Store) SearchNearest(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	if len(vector) != s.dims {
		return nil, fmt.Errorf("search nearest: %w: %w: got %d dims, want %d",
			domain.ErrStore, domain.ErrVectorDimMismatch, len(vector), s.dims)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tag_name, 1 - (embedding <=> $1::vector) AS similarity
		 FROM document_tags
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector, id
		 LIMIT $2`,
		vectorLiteral(vector), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("search nearest: %w: %w", domain.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var matches []domain.Match
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.TagID, &m.TagName, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w: %w", domain.ErrStore, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w: %w", domain.ErrStore, err)
	}
	return matches, nil
}

// DeleteAll removes every row from document_tags and returns the count.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_tags`)
	if err != nil {
		return 0, fmt.Errorf("delete all tags: %w: %w", domain.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all tags: %w: %w", domain.ErrStore, err)
	}
	return n, nil
}

// Count returns the number of rows in document_tags.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM document_tags`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tags: %w: %w", domain.ErrStore, err)
	}
	return n, nil
}
