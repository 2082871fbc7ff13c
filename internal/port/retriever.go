package port

import (
	"context"

	"docrag/internal/domain"
)

// Retriever defines the interface for searching indexed content.
type Retriever interface {
	// Search searches for chunks matching the query and returns top-k results.
	Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)

	// SearchDocument is Search restricted to the chunks of one document.
	SearchDocument(ctx context.Context, docID, query string, k int) ([]domain.ScoredChunk, error)
}
