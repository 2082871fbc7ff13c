package memstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/port"
)

func item(id string, v ...float32) port.VectorItem {
	return port.VectorItem{ID: id, Vector: v, Text: "text of " + id}
}

func ids(results []port.VectorResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestVectorIndexQueryOrder(t *testing.T) {
	idx := NewVectorIndex()
	require.NoError(t, idx.Add(item("a", 1, 0)))
	require.NoError(t, idx.Add(item("b", 0, 1)))
	require.NoError(t, idx.Add(item("c", 0.6, 0.8)))

	results, err := idx.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.6, results[1].Score, 1e-6)
	assert.Equal(t, "text of a", results[0].Text)
}

func TestVectorIndexKLargerThanCount(t *testing.T) {
	idx := NewVectorIndex()
	require.NoError(t, idx.Add(item("a", 1, 0)))

	results, err := idx.Query([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestVectorIndexTiesByInsertionOrder(t *testing.T) {
	idx := NewVectorIndex()
	for _, id := range []string{"z", "m", "a", "q"} {
		require.NoError(t, idx.Add(item(id, 0, 1)))
	}

	results, err := idx.Query([]float32{0, 1}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "m", "a", "q"}, ids(results))
}

func TestVectorIndexReAddMovesToEnd(t *testing.T) {
	idx := NewVectorIndex()
	require.NoError(t, idx.Add(item("a", 1, 0)))
	require.NoError(t, idx.Add(item("b", 1, 0)))
	require.NoError(t, idx.Add(item("a", 1, 0)))

	assert.Equal(t, 2, idx.Count())
	assert.Equal(t, []string{"b", "a"}, idx.IDs())
}

func TestVectorIndexDimensionMismatch(t *testing.T) {
	idx := NewVectorIndex()
	require.NoError(t, idx.Add(item("a", 1, 0, 0)))

	err := idx.Add(item("b", 1, 0))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = idx.Query([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestVectorIndexDimensionSurvivesRemoval(t *testing.T) {
	idx := NewVectorIndex()
	require.NoError(t, idx.Add(item("a", 1, 0, 0)))
	idx.Remove("a")

	assert.Equal(t, 3, idx.Dimension())
	assert.ErrorIs(t, idx.Add(item("b", 1, 0)), domain.ErrDimensionMismatch)
}

func TestVectorIndexEmptyAndInvalidK(t *testing.T) {
	idx := NewVectorIndex()

	_, err := idx.Query([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrEmptyIndex)

	require.NoError(t, idx.Add(item("a", 1, 0)))
	for _, k := range []int{0, -3} {
		_, err = idx.Query([]float32{1, 0}, k)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestVectorIndexRemoveAbsent(t *testing.T) {
	idx := NewVectorIndex()
	require.NoError(t, idx.Add(item("a", 1, 0)))
	idx.Remove("missing")
	assert.Equal(t, 1, idx.Count())

	idx.Remove("a")
	assert.Equal(t, 0, idx.Count())
	_, err := idx.Query([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrEmptyIndex)
}

func TestVectorIndexReplaceIsAllOrNothing(t *testing.T) {
	idx := NewVectorIndex()
	require.NoError(t, idx.Replace(nil, []port.VectorItem{item("a", 1, 0), item("b", 0, 1)}))

	err := idx.Replace([]string{"a", "b"}, []port.VectorItem{item("c", 1, 0), item("d", 1, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, []string{"a", "b"}, idx.IDs())

	require.NoError(t, idx.Replace([]string{"a", "b"}, []port.VectorItem{item("c", 1, 0)}))
	assert.Equal(t, []string{"c"}, idx.IDs())
}

func TestVectorIndexQueryFunc(t *testing.T) {
	idx := NewVectorIndex()
	for _, it := range []port.VectorItem{
		{ID: "a1", Vector: []float32{1, 0}, Metadata: map[string]string{"doc": "a"}},
		{ID: "b1", Vector: []float32{0.9, 0.1}, Metadata: map[string]string{"doc": "b"}},
		{ID: "a2", Vector: []float32{0, 1}, Metadata: map[string]string{"doc": "a"}},
	} {
		require.NoError(t, idx.Add(it))
	}

	results, err := idx.QueryFunc([]float32{1, 0}, 5, func(r port.VectorResult) bool {
		return r.Metadata["doc"] == "a"
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids(results))

	results, err = idx.QueryFunc([]float32{1, 0}, 5, func(port.VectorResult) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndexConcurrentReplaceNeverTorn(t *testing.T) {
	idx := NewVectorIndex()
	oldSet := []port.VectorItem{item("old-0", 1, 0), item("old-1", 1, 0), item("old-2", 1, 0)}
	newSet := []port.VectorItem{item("new-0", 1, 0), item("new-1", 1, 0), item("new-2", 1, 0)}
	require.NoError(t, idx.Replace(nil, oldSet))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = idx.Replace([]string{"old-0", "old-1", "old-2"}, newSet)
			} else {
				_ = idx.Replace([]string{"new-0", "new-1", "new-2"}, oldSet)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		results, err := idx.Query([]float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 3)
		prefix := results[0].ID[:3]
		for _, r := range results {
			assert.Equal(t, prefix, r.ID[:3])
		}
	}
	wg.Wait()
}
