package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docrag/internal/adapter/retriever"
	"docrag/internal/domain"
	"docrag/internal/port"
)

// Registry owns the registered documents, their current text and chunks,
// and keeps the vector index consistent with them.
//
// Writers on one document are serialized by a per-document mutex. Readers
// never lock a document: they load an immutable snapshot that writers
// replace wholesale, so a reader sees either the old or the new chunk list.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64

	chunker  port.Chunker
	embedder port.Embedder
	index    port.VectorIndex
	store    port.DocumentStore
	logger   *zap.Logger

	newID func() string
	now   func() time.Time
}

type entry struct {
	mu      sync.Mutex
	deleted bool
	order   uint64
	snap    atomic.Pointer[domain.Document]
}

// RegistryOption configures optional Registry collaborators.
type RegistryOption func(*Registry)

// WithEmbedder enables vector indexing of ingested chunks.
func WithEmbedder(e port.Embedder) RegistryOption {
	return func(r *Registry) { r.embedder = e }
}

// WithStore writes every mutation through to a persistent store.
func WithStore(s port.DocumentStore) RegistryOption {
	return func(r *Registry) { r.store = s }
}

func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithIDGenerator replaces the default UUID document IDs.
func WithIDGenerator(f func() string) RegistryOption {
	return func(r *Registry) { r.newID = f }
}

func NewRegistry(chunker port.Chunker, index port.VectorIndex, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		chunker: chunker,
		index:   index,
		logger:  zap.NewNop(),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a document. Its text is empty until first ingested.
func (r *Registry) Create(sourceRef string) (domain.Document, error) {
	if strings.TrimSpace(sourceRef) == "" {
		return domain.Document{}, fmt.Errorf("%w: source_ref is required", domain.ErrInvalidInput)
	}

	now := r.now()
	doc := &domain.Document{
		ID:        r.newID(),
		SourceRef: sourceRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.persist(*doc); err != nil {
		return domain.Document{}, err
	}

	r.insert(doc)
	r.logger.Info("document registered",
		zap.String("document_id", doc.ID),
		zap.String("source_ref", sourceRef),
	)
	return *doc, nil
}

// Get returns the current snapshot of a document. The returned chunk slice
// is shared and must not be modified.
func (r *Registry) Get(id string) (domain.Document, error) {
	e, err := r.lookup(id)
	if err != nil {
		return domain.Document{}, err
	}
	return *e.snap.Load(), nil
}

// List returns all documents in registration order.
func (r *Registry) List() []domain.Document {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	docs := make([]domain.Document, len(entries))
	for i, e := range entries {
		docs[i] = *e.snap.Load()
	}
	return docs
}

func (r *Registry) UpdateSourceRef(id, sourceRef string) (domain.Document, error) {
	if strings.TrimSpace(sourceRef) == "" {
		return domain.Document{}, fmt.Errorf("%w: source_ref is required", domain.ErrInvalidInput)
	}

	e, err := r.lockEntry(id)
	if err != nil {
		return domain.Document{}, err
	}
	defer e.mu.Unlock()

	next := *e.snap.Load()
	next.SourceRef = sourceRef
	next.UpdatedAt = r.now()
	if err := r.persist(next); err != nil {
		return domain.Document{}, err
	}
	e.snap.Store(&next)
	return next, nil
}

// IngestText chunks fullText, embeds the chunks and replaces the document's
// chunk list and vectors. On error nothing changes.
func (r *Registry) IngestText(ctx context.Context, id, fullText string) (domain.Document, error) {
	e, err := r.lockEntry(id)
	if err != nil {
		return domain.Document{}, err
	}
	defer e.mu.Unlock()

	cur := e.snap.Load()
	return r.ingestLocked(ctx, e, fullText, cur.IngestedFrom)
}

// IngestExtracted is IngestText for text loaded from sourceRef.
func (r *Registry) IngestExtracted(ctx context.Context, id, sourceRef, fullText string) (domain.Document, error) {
	e, err := r.lockEntry(id)
	if err != nil {
		return domain.Document{}, err
	}
	defer e.mu.Unlock()

	return r.ingestLocked(ctx, e, fullText, sourceRef)
}

func (r *Registry) ingestLocked(ctx context.Context, e *entry, fullText, ingestedFrom string) (domain.Document, error) {
	cur := e.snap.Load()
	next := *cur
	next.Text = fullText
	next.IngestedFrom = ingestedFrom
	next.Ingested = true
	next.UpdatedAt = r.now()

	chunks, err := r.chunker.Chunk(next, fullText)
	if err != nil {
		return domain.Document{}, err
	}
	if err := r.embedChunks(ctx, chunks); err != nil {
		return domain.Document{}, err
	}
	next.Chunks = chunks

	if err := r.swapVectors(cur.Chunks, chunks); err != nil {
		return domain.Document{}, err
	}
	if err := r.persist(next); err != nil {
		if rbErr := r.swapVectors(chunks, cur.Chunks); rbErr != nil {
			r.logger.Error("vector rollback failed", zap.String("document_id", next.ID), zap.Error(rbErr))
		}
		return domain.Document{}, err
	}
	e.snap.Store(&next)

	r.logger.Info("document ingested",
		zap.String("document_id", next.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("vectors", countVectors(chunks)),
		zap.Int("characters", len([]rune(fullText))),
	)
	return next, nil
}

func (r *Registry) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	if r.embedder == nil || len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return retriever.EmbeddingError(err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}
	return nil
}

// swapVectors atomically replaces the index entries of old chunks with those
// of the new chunks that carry a vector.
func (r *Registry) swapVectors(old, next []domain.Chunk) error {
	remove := make([]string, len(old))
	for i, c := range old {
		remove[i] = c.ID
	}
	add := make([]port.VectorItem, 0, len(next))
	for _, c := range next {
		if len(c.Vector) == 0 {
			continue
		}
		add = append(add, port.VectorItem{
			ID:       c.ID,
			Vector:   c.Vector,
			Text:     c.Text,
			Metadata: retriever.ChunkMetadata(c),
		})
	}
	return r.index.Replace(remove, add)
}

// FindText returns the trimmed sentences of the document's text, split on
// '.', that contain keyword case-insensitively. No match yields an empty,
// non-nil slice.
func (r *Registry) FindText(id, keyword string) ([]string, error) {
	doc, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return nil, fmt.Errorf("%w: keyword is required", domain.ErrInvalidInput)
	}

	matches := []string{}
	for _, sentence := range strings.Split(doc.Text, ".") {
		if strings.Contains(strings.ToLower(sentence), needle) {
			matches = append(matches, strings.TrimSpace(sentence))
		}
	}
	return matches, nil
}

// ReplaceText returns the document's text with every occurrence of oldText
// replaced. The registry is not modified; commit the result with IngestText.
func (r *Registry) ReplaceText(id, oldText, newText string) (string, error) {
	doc, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return replaceIn(doc.Text, oldText, newText)
}

// DeleteText is ReplaceText with an empty replacement.
func (r *Registry) DeleteText(id, text string) (string, error) {
	return r.ReplaceText(id, text, "")
}

// ReplaceAndIngest computes the replacement and commits it under the same
// document lock, so no other writer can interleave.
func (r *Registry) ReplaceAndIngest(ctx context.Context, id, oldText, newText string) (domain.Document, error) {
	e, err := r.lockEntry(id)
	if err != nil {
		return domain.Document{}, err
	}
	defer e.mu.Unlock()

	cur := e.snap.Load()
	updated, err := replaceIn(cur.Text, oldText, newText)
	if err != nil {
		return domain.Document{}, err
	}
	return r.ingestLocked(ctx, e, updated, cur.IngestedFrom)
}

func replaceIn(text, oldText, newText string) (string, error) {
	if oldText == "" {
		return "", fmt.Errorf("%w: text to replace is required", domain.ErrInvalidInput)
	}
	if !strings.Contains(text, oldText) {
		return "", fmt.Errorf("%w: %q", domain.ErrTextNotFound, oldText)
	}
	return strings.ReplaceAll(text, oldText, newText), nil
}

// Delete removes the document, its chunks and their vectors.
func (r *Registry) Delete(id string) error {
	e, err := r.lockEntry(id)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	cur := e.snap.Load()
	if r.store != nil {
		if err := r.store.DeleteDocument(id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
	}
	if err := r.swapVectors(cur.Chunks, nil); err != nil {
		return err
	}
	e.deleted = true

	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()

	r.logger.Info("document deleted",
		zap.String("document_id", id),
		zap.Int("chunks", len(cur.Chunks)),
	)
	return nil
}

// Restore loads persisted documents into an empty registry. Documents whose
// chunks lack usable vectors, or all documents when rebuild is set, are
// re-chunked and re-embedded from their stored text.
func (r *Registry) Restore(ctx context.Context, docs []domain.Document, rebuild bool) (int, error) {
	rebuilt := 0
	for i := range docs {
		doc := docs[i]
		e := r.insert(&doc)

		if !doc.Ingested {
			continue
		}
		if rebuild || !r.vectorsUsable(doc.Chunks) {
			e.mu.Lock()
			_, err := r.ingestLocked(ctx, e, doc.Text, doc.IngestedFrom)
			e.mu.Unlock()
			if err != nil {
				return rebuilt, fmt.Errorf("rebuild document %s: %w", doc.ID, err)
			}
			rebuilt++
			continue
		}
		if err := r.swapVectors(nil, doc.Chunks); err != nil {
			return rebuilt, fmt.Errorf("restore vectors of %s: %w", doc.ID, err)
		}
	}

	r.logger.Info("registry restored",
		zap.Int("documents", len(docs)),
		zap.Int("rebuilt", rebuilt),
		zap.Int("vectors", r.index.Count()),
	)
	return rebuilt, nil
}

func (r *Registry) vectorsUsable(chunks []domain.Chunk) bool {
	if r.embedder == nil {
		return true
	}
	dim := r.embedder.Dimension()
	for _, c := range chunks {
		if len(c.Vector) == 0 || (dim > 0 && len(c.Vector) != dim) {
			return false
		}
	}
	return true
}

func (r *Registry) Stats() domain.Stats {
	docs := r.List()
	stats := domain.Stats{
		TotalDocs:    len(docs),
		TotalVectors: r.index.Count(),
		Dimension:    r.index.Dimension(),
	}
	for _, d := range docs {
		if d.Ingested {
			stats.IngestedDocs++
		}
		stats.TotalChunks += len(d.Chunks)
	}
	return stats
}

func (r *Registry) insert(doc *domain.Document) *entry {
	e := &entry{}
	e.snap.Store(doc)

	r.mu.Lock()
	r.seq++
	e.order = r.seq
	r.entries[doc.ID] = e
	r.mu.Unlock()
	return e
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return e, nil
}

// lockEntry returns the entry with its mutex held.
func (r *Registry) lockEntry(id string) (*entry, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return e, nil
}

func (r *Registry) persist(doc domain.Document) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveDocument(doc); err != nil {
		return fmt.Errorf("persist document %s: %w", doc.ID, err)
	}
	return nil
}

func countVectors(chunks []domain.Chunk) int {
	n := 0
	for _, c := range chunks {
		if len(c.Vector) > 0 {
			n++
		}
	}
	return n
}
