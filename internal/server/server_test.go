package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/config"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/retriever"
	"docrag/internal/domain"
	"docrag/internal/usecase"
)

type mapLoader map[string][]domain.Page

func (l mapLoader) Load(_ context.Context, ref string) ([]domain.Page, error) {
	pages, ok := l[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such file", domain.ErrLoad, ref)
	}
	return pages, nil
}

type testServer struct {
	*Server
	registry *usecase.Registry
}

func newTestServer(t *testing.T, defaultSource string) *testServer {
	t.Helper()
	c, err := chunker.NewRecursiveChunker(20, 0)
	require.NoError(t, err)
	index := memstore.NewVectorIndex()
	emb := embedding.NewHashingEmbedder(384)
	reg := usecase.NewRegistry(c, index, usecase.WithEmbedder(emb))
	loader := mapLoader{
		"unit-6.pdf": {{Number: 1, Text: "A. B contains cat.\n"}, {Number: 2, Text: " C."}},
		"unit-7.pdf": {{Number: 1, Text: "Streams are ordered."}},
	}

	srv := New(config.ServerConfig{Mode: gin.TestMode, RequestTimeout: 5 * time.Second}, Deps{
		Registry:      reg,
		Retrieve:      usecase.NewRetrieveUseCase(retriever.NewSemanticRetriever(index, emb), reg, 10),
		Extract:       usecase.NewExtractUseCase(reg, loader, nil),
		DefaultSource: defaultSource,
		TopK:          3,
	})
	return &testServer{Server: srv, registry: reg}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (s *testServer) create(t *testing.T, ref string) string {
	t.Helper()
	w, out := s.do(t, http.MethodPost, "/documents", map[string]string{"source_ref": ref})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return out["document_id"].(string)
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t, "")
	w, out := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	w, _ = s.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentCRUD(t *testing.T) {
	s := newTestServer(t, "")
	id := s.create(t, "unit-6.pdf")

	w, out := s.do(t, http.MethodGet, "/documents/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, out["document_id"])
	assert.Equal(t, "unit-6.pdf", out["source_ref"])

	w, out = s.do(t, http.MethodPut, "/documents/"+id, map[string]string{"source_ref": "unit-7.pdf"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unit-7.pdf", out["source_ref"])

	w, _ = s.do(t, http.MethodPut, "/documents/"+id, map[string]string{"source_ref": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = s.do(t, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["documents"], 1)

	w, out = s.do(t, http.MethodDelete, "/documents/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, out["message"], id)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/documents/" + id},
		{http.MethodPut, "/documents/" + id},
		{http.MethodDelete, "/documents/" + id},
		{http.MethodGet, "/documents/" + id + "/chunks"},
		{http.MethodGet, "/documents/" + id + "/extract-text"},
		{http.MethodGet, "/documents/" + id + "/extract-text/search?keyword=cat"},
		{http.MethodPut, "/documents/" + id + "/extract-text/update"},
		{http.MethodDelete, "/documents/" + id + "/extract-text/delete"},
	} {
		w, _ := s.do(t, tc.method, tc.path, map[string]string{"source_ref": "x", "old_text": "a", "text_to_delete": "a"})
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestCreateDocumentDefaultSource(t *testing.T) {
	s := newTestServer(t, "unit-6.pdf")
	w, out := s.do(t, http.MethodPost, "/documents", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "unit-6.pdf", out["source_ref"])

	s = newTestServer(t, "")
	w, _ = s.do(t, http.MethodPost, "/documents", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractAndEditScenario(t *testing.T) {
	s := newTestServer(t, "")
	id := s.create(t, "unit-6.pdf")
	base := "/documents/" + id + "/extract-text"

	w, out := s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "A. B contains cat. C.", out["extracted_text"])

	w, out = s.do(t, http.MethodGet, base+"/search?keyword=CAT", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"B contains cat"}, out["matching_text"])

	w, _ = s.do(t, http.MethodGet, base+"/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodGet, "/documents/unknown/extract-text/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "a missing keyword is reported before an unknown document")
	w, _ = s.do(t, http.MethodGet, base+"/search?keyword=horse", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out = s.do(t, http.MethodPut, base+"/update", map[string]any{"old_text": "cat", "new_text": "dog"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A. B contains dog. C.", out["updated_text"])
	assert.Equal(t, false, out["committed"])

	// uncommitted edits leave the stored text alone
	_, out = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, "A. B contains cat. C.", out["extracted_text"])

	w, out = s.do(t, http.MethodPut, base+"/update", map[string]any{"old_text": "cat", "new_text": "dog", "commit": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["committed"])

	_, out = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, "A. B contains dog. C.", out["extracted_text"])

	w, out = s.do(t, http.MethodGet, "/search?q=dog&k=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := out["results"].([]any)
	require.Len(t, results, 1)
	top := results[0].(map[string]any)
	assert.Equal(t, "A. B contains dog.", top["text"])
	assert.Equal(t, id, top["document_id"])
	assert.EqualValues(t, 0, top["sequence_index"])

	w, out = s.do(t, http.MethodDelete, base+"/delete", map[string]any{"text_to_delete": "B contains dog. "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A. C.", out["updated_text"])

	w, _ = s.do(t, http.MethodPut, base+"/update", map[string]any{"old_text": "horse", "new_text": "pony"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodPut, base+"/update", map[string]any{"new_text": "pony"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodPut, base+"/update", map[string]any{"old_text": "dog"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, out = s.do(t, http.MethodPut, base+"/update", map[string]any{"old_text": "dog", "new_text": ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A. B contains . C.", out["updated_text"])
	w, _ = s.do(t, http.MethodDelete, base+"/delete", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = s.do(t, http.MethodGet, "/documents/"+id+"/chunks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["chunks"], 2)
}

func TestLazyExtractionOnKeywordSearch(t *testing.T) {
	s := newTestServer(t, "")
	id := s.create(t, "unit-7.pdf")

	w, out := s.do(t, http.MethodGet, "/documents/"+id+"/extract-text/search?keyword=streams", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"Streams are ordered"}, out["matching_text"])

	doc, err := s.registry.Get(id)
	require.NoError(t, err)
	assert.True(t, doc.Ingested)
}

func TestExtractLoadFailure(t *testing.T) {
	s := newTestServer(t, "")
	id := s.create(t, "missing.pdf")

	w, out := s.do(t, http.MethodGet, "/documents/"+id+"/extract-text", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, out["error"], "missing.pdf")
}

func TestSemanticSearchEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	w, _ := s.do(t, http.MethodGet, "/search?q=dog", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "empty index")

	a := s.create(t, "unit-6.pdf")
	b := s.create(t, "unit-7.pdf")
	for _, id := range []string{a, b} {
		w, _ := s.do(t, http.MethodGet, "/documents/"+id+"/extract-text", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, out := s.do(t, http.MethodGet, "/search?q=streams&document_id="+b, nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, r := range out["results"].([]any) {
		assert.Equal(t, b, r.(map[string]any)["document_id"])
	}

	w, _ = s.do(t, http.MethodGet, "/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodGet, "/search?q=dog&k=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodGet, "/search?q=dog&document_id=unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out = s.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, out["documents"])
	assert.EqualValues(t, 2, out["ingested_documents"])
	assert.EqualValues(t, 384, out["dimension"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", domain.ErrTextNotFound), http.StatusNotFound},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrDimensionMismatch, http.StatusBadRequest},
		{domain.ErrEmptyIndex, http.StatusConflict},
		{domain.ErrLoad, http.StatusUnprocessableEntity},
		{domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
