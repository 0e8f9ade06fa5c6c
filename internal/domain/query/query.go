package query

import (
	"fmt"

	"github.com/gosexpert/tagvec/internal/domain"
)

// Search parameter limits and defaults.
const (
	// MaxTextLength is the maximum allowed query text length.
	MaxTextLength = 4096
	// DefaultTopK is the result cap when the caller does not specify one.
	DefaultTopK = 5
	// MaxTopK caps how many rows a single search may request server-side.
	MaxTopK = 100
	// DefaultThreshold is the similarity floor when the caller does not specify one.
	DefaultThreshold = 0.3
	// ClosestThreshold is the stricter floor used for single best-match lookups.
	ClosestThreshold = 0.5
)

// Query is a validated similarity search request. Construct via New; an
// instance that exists has already passed validation, so the engine never
// reaches a remote service with bad parameters.
type Query struct {
	text      string
	topK      int
	threshold float64
}

// New validates and normalizes search parameters.
// TopK above MaxTopK is clamped; everything else invalid is rejected.
func New(text string, topK int, threshold float64) (Query, error) {
	if text == "" {
		return Query{}, fmt.Errorf("%w: query text is required", domain.ErrValidation)
	}
	if len(text) > MaxTextLength {
		return Query{}, fmt.Errorf("%w: query text too long (max %d chars)", domain.ErrValidation, MaxTextLength)
	}
	if topK < 1 {
		return Query{}, fmt.Errorf("%w: top_k must be at least 1, got %d", domain.ErrValidation, topK)
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if threshold < 0 || threshold > 1 {
		return Query{}, fmt.Errorf("%w: threshold must be between 0 and 1, got %g", domain.ErrValidation, threshold)
	}

	return Query{text: text, topK: topK, threshold: threshold}, nil
}

// Text returns the query text.
func (q *Query) Text() string { return q.text }

// TopK returns the maximum number of rows to retrieve.
func (q *Query) TopK() int { return q.topK }

// Threshold returns the minimum similarity score for a match to be included.
func (q *Query) Threshold() float64 { return q.threshold }
