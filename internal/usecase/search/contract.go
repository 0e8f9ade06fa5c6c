package search

import (
	"context"

	"github.com/gosexpert/tagvec/internal/domain"
)

// TagStore defines the storage contract for similarity search.
// SearchNearest returns up to topK rows ordered by descending similarity;
// the ordering is stable with respect to insertion order on equal scores.
type TagStore interface {
	SearchNearest(ctx context.Context, vector []float32, topK int) ([]domain.Match, error)
}

// Embedder vectorizes query text into an embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
