package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"docrag/internal/port"
)

// Batcher splits large Embed calls into fixed-size batches and runs them
// concurrently on an ants worker pool. Output order matches input order.
type Batcher struct {
	inner     port.Embedder
	batchSize int
	pool      *ants.Pool
	logger    *zap.Logger
}

func NewBatcher(inner port.Embedder, batchSize, workers int, logger *zap.Logger) (*Batcher, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := ants.NewPool(workers,
		ants.WithExpiryDuration(30*time.Second),
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Error("embedding worker panic recovered", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}

	return &Batcher{
		inner:     inner,
		batchSize: batchSize,
		pool:      pool,
		logger:    logger,
	}, nil
}

func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.batchSize {
		return b.inner.Embed(ctx, texts)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					fail(fmt.Errorf("embedding batch [%d:%d] panicked: %v", start, end, p))
				}
			}()

			vectors, err := b.inner.Embed(ctx, texts[start:end])
			if err != nil {
				fail(err)
				return
			}
			if len(vectors) != end-start {
				fail(fmt.Errorf("embedding batch [%d:%d] returned %d vectors", start, end, len(vectors)))
				return
			}
			copy(out[start:end], vectors)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.logger.Debug("embedded batches",
		zap.Int("texts", len(texts)),
		zap.Int("batch_size", b.batchSize),
	)
	return out, nil
}

func (b *Batcher) Dimension() int {
	return b.inner.Dimension()
}

func (b *Batcher) ModelName() string {
	return b.inner.ModelName()
}

// Close releases the worker pool.
func (b *Batcher) Close() {
	b.pool.Release()
}
