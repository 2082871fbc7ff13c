package usecase

import (
	"context"
	"fmt"
	"strings"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// RetrieveUseCase handles semantic and keyword search.
type RetrieveUseCase struct {
	retriever port.Retriever
	registry  *Registry
	maxTopK   int
}

// NewRetrieveUseCase creates a new retrieve use case. k values above maxTopK
// are clamped; maxTopK <= 0 disables clamping.
func NewRetrieveUseCase(retriever port.Retriever, registry *Registry, maxTopK int) *RetrieveUseCase {
	return &RetrieveUseCase{
		retriever: retriever,
		registry:  registry,
		maxTopK:   maxTopK,
	}
}

// SemanticSearch returns the k chunks across all documents closest to query.
func (u *RetrieveUseCase) SemanticSearch(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	k, err := u.validate(query, k)
	if err != nil {
		return nil, err
	}
	return u.retriever.Search(ctx, query, k)
}

// SearchDocument is SemanticSearch over one document. A document without
// chunks yields no results.
func (u *RetrieveUseCase) SearchDocument(ctx context.Context, docID, query string, k int) ([]domain.ScoredChunk, error) {
	doc, err := u.registry.Get(docID)
	if err != nil {
		return nil, err
	}
	k, err = u.validate(query, k)
	if err != nil {
		return nil, err
	}
	if len(doc.Chunks) == 0 {
		return []domain.ScoredChunk{}, nil
	}
	return u.retriever.SearchDocument(ctx, docID, query, k)
}

// KeywordSearch returns the sentences of a document that contain keyword.
func (u *RetrieveUseCase) KeywordSearch(docID, keyword string) ([]string, error) {
	return u.registry.FindText(docID, keyword)
}

func (u *RetrieveUseCase) validate(query string, k int) (int, error) {
	if strings.TrimSpace(query) == "" {
		return 0, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if k <= 0 {
		return 0, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if u.maxTopK > 0 && k > u.maxTopK {
		k = u.maxTopK
	}
	return k, nil
}
