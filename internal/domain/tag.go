package domain

import (
	"context"
	"strings"
	"time"
)

// Tag is one row of the document_tags table: a document title with its
// keyword tags and the embedding of their combined text.
type Tag struct {
	ID          int64
	Name        string
	Description string
	Keywords    []string
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EmbeddingText builds the text that gets vectorized for this tag.
// Name, description and keywords are joined into one sentence-like string so
// the embedding captures all of them.
func (t *Tag) EmbeddingText() string {
	parts := make([]string, 0, 3)
	parts = append(parts, t.Name)
	if t.Description != "" && t.Description != t.Name {
		parts = append(parts, t.Description)
	}
	if len(t.Keywords) > 0 {
		parts = append(parts, strings.Join(t.Keywords, ", "))
	}
	return strings.Join(parts, ". ")
}

// Match is a single similarity search hit. Derived, never persisted.
type Match struct {
	TagID   int64
	TagName string
	Score   float64
}

// TagExtraction is the title and keywords an LLM extracted from a document.
type TagExtraction struct {
	Title    string
	Keywords []string
}

// TagExtractor asks a language model for the title and keyword tags of a
// document given the text of its first pages.
type TagExtractor interface {
	ExtractTags(ctx context.Context, text string) (TagExtraction, error)
}
