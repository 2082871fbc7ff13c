package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"docrag/config"
	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/loader"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/retriever"
	"docrag/internal/adapter/store"
	"docrag/internal/port"
	"docrag/internal/usecase"
)

// app holds the wired services shared by every command.
type app struct {
	registry *usecase.Registry
	retrieve *usecase.RetrieveUseCase
	extract  *usecase.ExtractUseCase
	index    *memstore.VectorIndex
	store    *store.BoltStore
	batcher  *embedding.Batcher
	logger   *zap.Logger
}

// newApp builds the service graph. With a non-empty dbPath the registry is
// restored from, and written through to, a bolt store.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, dbPath string) (*app, error) {
	base, err := embedding.FromConfig(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	batcher, err := embedding.NewBatcher(base, cfg.Embedding.BatchSize, cfg.Embedding.Workers, logger)
	if err != nil {
		return nil, err
	}

	queryEmbedder := port.Embedder(base)
	if cfg.Embedding.CacheSize > 0 {
		queryEmbedder = cache.NewCachedEmbedder(base, cache.NewQueryCache(cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL))
	}

	chk, err := chunker.NewRecursiveChunkerWithSeparators(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.Separators)
	if err != nil {
		batcher.Close()
		return nil, err
	}

	logger.Debug("chunker configured",
		zap.Int("chunk_size", chk.ChunkSize()),
		zap.Int("chunk_overlap", chk.Overlap()),
		zap.String("embedder", base.ModelName()),
	)

	a := &app{
		index:   memstore.NewVectorIndex(),
		batcher: batcher,
		logger:  logger,
	}
	opts := []usecase.RegistryOption{
		usecase.WithEmbedder(batcher),
		usecase.WithLogger(logger),
	}
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			batcher.Close()
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		a.store, err = store.NewBoltStore(dbPath)
		if err != nil {
			batcher.Close()
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		opts = append(opts, usecase.WithStore(a.store))
	}

	a.registry = usecase.NewRegistry(chk, a.index, opts...)
	a.retrieve = usecase.NewRetrieveUseCase(retriever.NewSemanticRetriever(a.index, queryEmbedder), a.registry, cfg.Retrieve.MaxTopK)
	a.extract = usecase.NewExtractUseCase(a.registry, loader.NewFileLoader(), logger)

	if a.store != nil {
		if err := a.restore(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) restore(ctx context.Context, cfg *config.Config) error {
	migration, err := a.store.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	switch {
	case migration.Incompatible:
		a.logger.Warn("discarding unreadable store", zap.String("reason", migration.Reason))
		if err := a.store.Clear(); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	case migration.NeedsRebuild:
		a.logger.Warn("rebuilding index", zap.String("reason", migration.Reason))
	case migration.NeedsMigration:
		a.logger.Info("migrating store schema", zap.String("reason", migration.Reason))
	}

	docs, err := a.store.LoadDocuments()
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}
	if _, err := a.registry.Restore(ctx, docs, migration.NeedsRebuild); err != nil {
		return err
	}
	if err := a.store.Migrate(cfg); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (a *app) Close() {
	a.batcher.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
}
