package domain

import "errors"

var (
	// ErrValidation signals invalid caller-supplied parameters. No remote
	// call has been made when this is returned.
	ErrValidation = errors.New("validation failed")
	// ErrEmbedding signals an embedding provider failure (unreachable,
	// malformed response, or wrong dimensionality).
	ErrEmbedding = errors.New("embedding provider error")
	// ErrStore signals a tag store failure (connectivity or schema mismatch).
	ErrStore = errors.New("tag store error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)
