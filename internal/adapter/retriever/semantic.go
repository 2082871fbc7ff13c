package retriever

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// Metadata keys stored with every chunk vector.
const (
	MetaDocumentID    = "document_id"
	MetaSequenceIndex = "sequence_index"
)

// SemanticRetriever embeds the query and ranks chunk vectors by similarity.
// Results are built from the index entries themselves, so a result always
// carries the text its vector was computed from.
type SemanticRetriever struct {
	index    port.VectorIndex
	embedder port.Embedder
}

func NewSemanticRetriever(index port.VectorIndex, embedder port.Embedder) *SemanticRetriever {
	return &SemanticRetriever{
		index:    index,
		embedder: embedder,
	}
}

func (r *SemanticRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	return r.search(ctx, query, k, nil)
}

func (r *SemanticRetriever) SearchDocument(ctx context.Context, docID, query string, k int) ([]domain.ScoredChunk, error) {
	return r.search(ctx, query, k, func(res port.VectorResult) bool {
		return res.Metadata[MetaDocumentID] == docID
	})
}

func (r *SemanticRetriever) search(ctx context.Context, query string, k int, keep func(port.VectorResult) bool) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable)
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, EmbeddingError(err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: embedding returned empty result", domain.ErrEmbeddingUnavailable)
	}

	results, err := r.index.QueryFunc(embeddings[0], k, keep)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.ScoredChunk, 0, len(results))
	for _, res := range results {
		chunks = append(chunks, domain.ScoredChunk{
			Chunk: ChunkFromResult(res),
			Score: res.Score,
		})
	}
	return chunks, nil
}

// ChunkFromResult rebuilds a chunk from an index entry.
func ChunkFromResult(res port.VectorResult) domain.Chunk {
	idx, _ := strconv.Atoi(res.Metadata[MetaSequenceIndex])
	return domain.Chunk{
		ID:    res.ID,
		DocID: res.Metadata[MetaDocumentID],
		Index: idx,
		Text:  res.Text,
	}
}

// ChunkMetadata returns the index metadata for a chunk.
func ChunkMetadata(c domain.Chunk) map[string]string {
	return map[string]string{
		MetaDocumentID:    c.DocID,
		MetaSequenceIndex: strconv.Itoa(c.Index),
	}
}

// EmbeddingError classifies an embedder failure as ErrEmbeddingUnavailable.
// Context cancellation is returned unchanged.
func EmbeddingError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
}
