package tag

import (
	"context"

	"github.com/gosexpert/tagvec/internal/domain"
)

// TagStore defines the storage contract for tag ingestion.
type TagStore interface {
	Insert(ctx context.Context, tag domain.Tag) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// Embedder vectorizes tag text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
