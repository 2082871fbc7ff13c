package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"docrag/internal/port"
)

// QueryCache is a bounded LRU cache of embedding vectors with a TTL.
// Entries are keyed by model and text so switching models never serves a
// vector of the wrong space.
type QueryCache struct {
	mu       sync.Mutex
	items    map[vectorKey]*list.Element
	recency  *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits   uint64
	misses uint64
}

type vectorKey struct {
	model  string
	digest [sha256.Size]byte
}

type cachedVector struct {
	key      vectorKey
	vector   []float32
	storedAt time.Time
}

func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		items:    make(map[vectorKey]*list.Element, capacity),
		recency:  list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func keyFor(model, text string) vectorKey {
	return vectorKey{model: model, digest: sha256.Sum256([]byte(text))}
}

// Get returns the cached vector for text under model. Expired entries are
// dropped and count as misses.
func (c *QueryCache) Get(model, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[keyFor(model, text)]
	if !ok {
		c.misses++
		return nil, false
	}
	cv := el.Value.(*cachedVector)
	if c.now().Sub(cv.storedAt) > c.ttl {
		c.drop(el)
		c.misses++
		return nil, false
	}
	c.recency.MoveToFront(el)
	c.hits++
	return cv.vector, true
}

func (c *QueryCache) Put(model, text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyFor(model, text)
	if el, ok := c.items[key]; ok {
		cv := el.Value.(*cachedVector)
		cv.vector, cv.storedAt = vector, c.now()
		c.recency.MoveToFront(el)
		return
	}
	for c.recency.Len() >= c.capacity {
		c.drop(c.recency.Back())
	}
	c.items[key] = c.recency.PushFront(&cachedVector{key: key, vector: vector, storedAt: c.now()})
}

// Invalidate empties the cache. Counters are kept.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
	c.recency.Init()
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Stats returns the hit and miss counters.
func (c *QueryCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *QueryCache) drop(el *list.Element) {
	delete(c.items, el.Value.(*cachedVector).key)
	c.recency.Remove(el)
}

// CachedEmbedder serves repeated texts from a QueryCache and forwards only
// the misses to the wrapped embedder.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *QueryCache
}

func NewCachedEmbedder(embedder port.Embedder, cache *QueryCache) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.embedder.ModelName()
	out := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, hit := e.cache.Get(model, text); hit {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.embedder.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		e.cache.Put(model, missing[j], v)
	}
	return out, nil
}

func (e *CachedEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.embedder.ModelName()
}
