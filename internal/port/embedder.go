package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text, L2-normalised.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorIndex stores chunk vectors and answers nearest-neighbour queries.
type VectorIndex interface {
	// Add inserts or overwrites a single vector.
	Add(item VectorItem) error

	// Remove deletes a vector. Unknown IDs are ignored.
	Remove(id string)

	// Replace removes and inserts vectors as one step; concurrent queries see
	// either the state before or the state after, never a mix.
	Replace(remove []string, add []VectorItem) error

	// Query returns up to k results ordered by descending similarity.
	Query(vector []float32, k int) ([]VectorResult, error)

	// QueryFunc is Query restricted to results accepted by keep.
	QueryFunc(vector []float32, k int, keep func(VectorResult) bool) ([]VectorResult, error)

	// Count returns the number of vectors in the index.
	Count() int

	// Dimension returns the dimension fixed by the first insertion, or 0.
	Dimension() int
}

// VectorItem represents a vector to be stored.
type VectorItem struct {
	ID       string            // Unique identifier (chunk ID)
	Vector   []float32         // Embedding vector
	Text     string            // Chunk text the vector was computed from
	Metadata map[string]string // Optional metadata
}

// VectorResult represents a search result.
type VectorResult struct {
	ID       string            // Chunk ID
	Score    float64           // Similarity score (higher is better)
	Text     string            // Stored chunk text
	Metadata map[string]string // Stored metadata
}
