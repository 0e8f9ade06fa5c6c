package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gosexpert/tagvec/internal/domain"
	"github.com/gosexpert/tagvec/internal/domain/query"
)

// Service is the query engine: it vectorizes free text, runs one read-only
// similarity query against the tag store and applies the similarity floor.
//
// The flow is single-flight and synchronous: one embedding call, one store
// query, no retries. The first failure surfaces immediately, wrapped with
// the sentinel of the stage that failed.
type Service struct {
	store  TagStore
	embed  Embedder
	logger *zap.Logger
}

// New creates a search service.
func New(store TagStore, embed Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embed: embed, logger: logger}
}

// Search executes a similarity search for a validated query.
//
// The store query is capped at TopK server-side; the threshold is applied
// client-side afterwards. Threshold is a quality floor and TopK a quantity
// cap, so fewer than TopK matches is a normal outcome, not an error. An
// empty store yields an empty result.
func (s *Service) Search(ctx context.Context, q query.Query) ([]domain.Match, error) {
	embResult, err := s.embed.Embed(ctx, q.Text())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	matches, err := s.store.SearchNearest(ctx, embResult.Embedding, q.TopK())
	if err != nil {
		return nil, fmt.Errorf("search nearest: %w", err)
	}

	// Post-filter: rows below the floor are dropped after the LIMIT.
	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= q.Threshold() {
			filtered = append(filtered, m)
		}
	}

	s.logger.Debug("search completed",
		zap.String("query", q.Text()),
		zap.Int("top_k", q.TopK()),
		zap.Float64("threshold", q.Threshold()),
		zap.Int("retrieved", len(matches)),
		zap.Int("matched", len(filtered)),
	)

	return filtered, nil
}

// Closest returns the single best match for text, or found=false when no
// row clears the threshold. Validation failures surface before any remote
// call is made.
func (s *Service) Closest(ctx context.Context, text string, threshold float64) (domain.Match, bool, error) {
	q, err := query.New(text, 1, threshold)
	if err != nil {
		return domain.Match{}, false, err
	}

	matches, err := s.Search(ctx, q)
	if err != nil {
		return domain.Match{}, false, err
	}
	if len(matches) == 0 {
		return domain.Match{}, false, nil
	}
	return matches[0], true, nil
}
