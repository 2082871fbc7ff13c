package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docrag/internal/adapter/loader"
	"docrag/internal/domain"
	"docrag/internal/port"
)

// ExtractUseCase loads a document's source, flattens its pages into a single
// text and ingests it. Loaded text is cached in the registry; the source is
// read again only on refresh or when the source reference has changed.
type ExtractUseCase struct {
	registry *Registry
	loader   port.Loader
	logger   *zap.Logger
}

func NewExtractUseCase(registry *Registry, l port.Loader, logger *zap.Logger) *ExtractUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractUseCase{
		registry: registry,
		loader:   l,
		logger:   logger,
	}
}

// Extract returns the document with its current text, loading and ingesting
// the source first when needed.
func (u *ExtractUseCase) Extract(ctx context.Context, id string, refresh bool) (domain.Document, error) {
	doc, err := u.registry.Get(id)
	if err != nil {
		return domain.Document{}, err
	}
	if !refresh && doc.Ingested && doc.IngestedFrom == doc.SourceRef {
		return doc, nil
	}

	sourceRef := doc.SourceRef
	pages, err := u.loader.Load(ctx, sourceRef)
	if err != nil {
		if !errors.Is(err, domain.ErrLoad) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s: %v", domain.ErrLoad, sourceRef, err)
		}
		u.logger.Warn("document load failed",
			zap.String("document_id", id),
			zap.String("source_ref", sourceRef),
			zap.Error(err),
		)
		return domain.Document{}, err
	}

	text := loader.Flatten(pages)
	u.logger.Debug("document extracted",
		zap.String("document_id", id),
		zap.Int("pages", len(pages)),
		zap.Int("characters", len([]rune(text))),
	)
	return u.registry.IngestExtracted(ctx, id, sourceRef, text)
}

// EnsureIngested extracts the document unless its cached text is current.
func (u *ExtractUseCase) EnsureIngested(ctx context.Context, id string) (domain.Document, error) {
	return u.Extract(ctx, id, false)
}
