package memstore

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// VectorIndex is an in-memory brute-force vector index. The dimension is
// fixed by the first insertion and kept for the index's lifetime.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	seq       uint64
	vectors   map[string]vectorEntry
}

type vectorEntry struct {
	vector   []float32
	text     string
	metadata map[string]string
	seq      uint64
}

func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		vectors: make(map[string]vectorEntry),
	}
}

func (s *VectorIndex) Add(item port.VectorItem) error {
	return s.Replace(nil, []port.VectorItem{item})
}

func (s *VectorIndex) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, id)
}

// Replace validates every new vector before touching the index, so a failed
// call leaves it unchanged.
func (s *VectorIndex) Replace(remove []string, add []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for _, item := range add {
		if len(item.Vector) == 0 {
			return fmt.Errorf("%w: empty vector for %s", domain.ErrInvalidInput, item.ID)
		}
		if dim == 0 {
			dim = len(item.Vector)
		}
		if len(item.Vector) != dim {
			return fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, dim, len(item.Vector))
		}
	}

	for _, id := range remove {
		delete(s.vectors, id)
	}
	for _, item := range add {
		s.seq++
		s.vectors[item.ID] = vectorEntry{
			vector:   append([]float32(nil), item.Vector...),
			text:     item.Text,
			metadata: item.Metadata,
			seq:      s.seq,
		}
	}
	s.dimension = dim
	return nil
}

func (s *VectorIndex) Query(vector []float32, k int) ([]port.VectorResult, error) {
	return s.QueryFunc(vector, k, nil)
}

// QueryFunc ranks by cosine similarity, breaking ties by insertion order.
func (s *VectorIndex) QueryFunc(vector []float32, k int, keep func(port.VectorResult) bool) ([]port.VectorResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, s.dimension, len(vector))
	}

	type scored struct {
		result port.VectorResult
		seq    uint64
	}

	scores := make([]scored, 0, len(s.vectors))
	for id, entry := range s.vectors {
		r := port.VectorResult{
			ID:       id,
			Score:    cosineSimilarity(vector, entry.vector),
			Text:     entry.text,
			Metadata: entry.metadata,
		}
		if keep != nil && !keep(r) {
			continue
		}
		scores = append(scores, scored{result: r, seq: entry.seq})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].result.Score != scores[j].result.Score {
			return scores[i].result.Score > scores[j].result.Score
		}
		return scores[i].seq < scores[j].seq
	})

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]port.VectorResult, k)
	for i := 0; i < k; i++ {
		results[i] = scores[i].result
	}
	return results, nil
}

func (s *VectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *VectorIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Has reports whether a vector is stored under id.
func (s *VectorIndex) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vectors[id]
	return ok
}

// IDs returns the stored IDs in insertion order.
func (s *VectorIndex) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type idSeq struct {
		id  string
		seq uint64
	}
	all := make([]idSeq, 0, len(s.vectors))
	for id, e := range s.vectors {
		all = append(all, idSeq{id, e.seq})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	ids := make([]string, len(all))
	for i, e := range all {
		ids[i] = e.id
	}
	return ids
}

// cosineSimilarity equals the inner product when both vectors are normalised.
func cosineSimilarity(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
