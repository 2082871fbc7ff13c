package port

import (
	"context"

	"docrag/internal/domain"
)

// Loader extracts ordered page text from a source reference.
type Loader interface {
	Load(ctx context.Context, sourceRef string) ([]domain.Page, error)
}
