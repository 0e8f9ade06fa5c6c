package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/gosexpert/tagvec/internal/domain"
)

func TestVectorLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want string
	}{
		{"empty", nil, "[]"},
		{"single", []float32{0.5}, "[0.5]"},
		{"multiple", []float32{1, -2.25, 0}, "[1,-2.25,0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vectorLiteral(tt.in); got != tt.want {
				t.Errorf("vectorLiteral(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewStore_Validation(t *testing.T) {
	if _, err := NewStore(Config{DSN: "", Dimensions: 4}); err == nil {
		t.Error("expected error for empty DSN")
	}
	if _, err := NewStore(Config{DSN: "postgres://localhost/x", Dimensions: 0}); err == nil {
		t.Error("expected error for zero dimensions")
	}
}

func TestStore_DimensionChecksBeforeRoundTrip(t *testing.T) {
	// DSN is never dialed: the dimension check fails first.
	store, err := NewStore(Config{DSN: "postgres://localhost:1/none", Dimensions: 4})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	_, err = store.SearchNearest(context.Background(), []float32{0.1, 0.2}, 5)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("SearchNearest: expected ErrVectorDimMismatch, got %v", err)
	}

	_, err = store.Insert(context.Background(), domain.Tag{
		Name:      "tag",
		Embedding: []float32{0.1},
	})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("Insert: expected ErrVectorDimMismatch, got %v", err)
	}
}
