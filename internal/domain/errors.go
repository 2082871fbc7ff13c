package domain

import "errors"

// Error kinds returned by the core. Callers match them with errors.Is; the
// wrapped message carries the detail.
var (
	ErrNotFound             = errors.New("document not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTextNotFound         = errors.New("text not found")
	ErrDimensionMismatch    = errors.New("vector dimension mismatch")
	ErrEmptyIndex           = errors.New("vector index is empty")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrLoad                 = errors.New("failed to load document")
)
