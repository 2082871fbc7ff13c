package port

import "docrag/internal/domain"

// DocumentStore persists registry state. Each call is atomic: a document is
// written together with its text, chunks and chunk vectors.
type DocumentStore interface {
	SaveDocument(doc domain.Document) error

	DeleteDocument(id string) error

	LoadDocuments() ([]domain.Document, error)

	Close() error
}
