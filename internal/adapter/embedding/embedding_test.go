package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/config"
	"docrag/internal/domain"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(384)
	assert.Equal(t, 384, e.Dimension())
	assert.Equal(t, "hash", e.ModelName())

	vecs, err := e.Embed(context.Background(), []string{
		"dog",
		"A. B contains dog.",
		"A. B contains cat.",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	for i := 0; i < 3; i++ {
		assert.Len(t, vecs[i], 384)
		assert.InDelta(t, 1.0, norm(vecs[i]), 1e-5)
	}
	assert.Zero(t, norm(vecs[3]), "text without tokens embeds to the zero vector")

	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	a := NewHashingEmbedder(64)
	b := NewHashingEmbedder(64)

	va, err := a.Embed(context.Background(), []string{"Stream processing with Go"})
	require.NoError(t, err)
	vb, err := b.Embed(context.Background(), []string{"Stream processing with Go"})
	require.NoError(t, err)
	assert.Equal(t, va, vb)
}

func TestHashingEmbedderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHashingEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

// indexEmbedder encodes each text's position so ordering can be checked.
type indexEmbedder struct {
	calls   atomic.Int32
	failOn  string
	maxSeen atomic.Int32
}

func (e *indexEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if n := int32(len(texts)); n > e.maxSeen.Load() {
		e.maxSeen.Store(n)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if text == e.failOn {
			return nil, fmt.Errorf("%w: cannot embed %q", domain.ErrEmbeddingUnavailable, text)
		}
		var n float32
		fmt.Sscanf(text, "t%f", &n)
		out[i] = []float32{n}
	}
	return out, nil
}

func (e *indexEmbedder) Dimension() int   { return 1 }
func (e *indexEmbedder) ModelName() string { return "index" }

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%d", i)
	}
	return out
}

func TestBatcherPreservesOrder(t *testing.T) {
	inner := &indexEmbedder{}
	b, err := NewBatcher(inner, 4, 3, nil)
	require.NoError(t, err)
	defer b.Close()

	vecs, err := b.Embed(context.Background(), texts(23))
	require.NoError(t, err)
	require.Len(t, vecs, 23)
	for i, v := range vecs {
		assert.Equal(t, []float32{float32(i)}, v)
	}
	assert.Equal(t, int32(6), inner.calls.Load())
	assert.LessOrEqual(t, inner.maxSeen.Load(), int32(4))
}

func TestBatcherSmallInputPassesThrough(t *testing.T) {
	inner := &indexEmbedder{}
	b, err := NewBatcher(inner, 10, 2, nil)
	require.NoError(t, err)
	defer b.Close()

	vecs, err := b.Embed(context.Background(), texts(3))
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, b.Dimension())
	assert.Equal(t, "index", b.ModelName())
}

func TestBatcherPropagatesError(t *testing.T) {
	inner := &indexEmbedder{failOn: "t9"}
	b, err := NewBatcher(inner, 2, 2, nil)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Embed(context.Background(), texts(12))
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func embeddingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string `json:"object"`
			Data   []item `json:"data"`
			Model  string `json:"model"`
		}{Object: "list", Model: req.Model}
		// reversed order checks that results are placed by index
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, item{Object: "embedding", Embedding: []float32{3, 4 * float32(i+1)}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAICompatibleEmbedder(t *testing.T) {
	srv := embeddingServer(t, http.StatusOK)
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("test-key", "all-minilm", srv.URL+"/v1", 0)
	assert.Equal(t, 384, e.Dimension())
	assert.Equal(t, "all-minilm", e.ModelName())

	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	assert.InDelta(t, 1.0, norm(vecs[1]), 1e-6)
	assert.InDelta(t, 3.0/math.Sqrt(9+64), vecs[1][0], 1e-6)
}

func TestOpenAICompatibleEmbedderError(t *testing.T) {
	srv := embeddingServer(t, http.StatusInternalServerError)
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("test-key", "text-embedding-3-small", srv.URL+"/v1", 0)
	_, err := e.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	t.Setenv("DOCRAG_TEST_MISSING_KEY", "")
	_, err := NewOpenAIEmbedder("DOCRAG_TEST_MISSING_KEY", "text-embedding-3-small", "")
	assert.Error(t, err)
}

func TestOllamaEmbedderDefaults(t *testing.T) {
	e := NewOllamaEmbedder("nomic-embed-text", "")
	assert.Equal(t, 768, e.Dimension())
}

func TestUnknownModelDimension(t *testing.T) {
	assert.Zero(t, NewOllamaEmbedder("llama-embed-custom", "").Dimension())
	assert.Equal(t, 32, NewOpenAICompatibleEmbedder("k", "llama-embed-custom", "", 32).Dimension())
}

func TestFromConfig(t *testing.T) {
	e, err := FromConfig(config.EmbeddingConfig{Provider: config.ProviderHash, Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimension())

	e, err = FromConfig(config.EmbeddingConfig{Provider: config.ProviderOllama, Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.ModelName())

	t.Setenv("DOCRAG_TEST_MISSING_KEY", "")
	_, err = FromConfig(config.EmbeddingConfig{Provider: config.ProviderOpenAI, Model: "text-embedding-3-small", APIKeyEnv: "DOCRAG_TEST_MISSING_KEY"})
	assert.Error(t, err)

	_, err = FromConfig(config.EmbeddingConfig{Provider: "cohere"})
	assert.Error(t, err)
}
