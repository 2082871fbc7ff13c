package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docrag/internal/domain"
)

type sourceRequest struct {
	SourceRef string `json:"source_ref"`
}

type documentResponse struct {
	DocumentID string `json:"document_id"`
	SourceRef  string `json:"source_ref"`
}

type documentSummary struct {
	DocumentID string    `json:"document_id"`
	SourceRef  string    `json:"source_ref"`
	Ingested   bool      `json:"ingested"`
	Chunks     int       `json:"chunks"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type chunkResponse struct {
	ChunkID       string `json:"chunk_id"`
	DocumentID    string `json:"document_id"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
}

type searchResult struct {
	chunkResponse
	Score float64 `json:"score"`
}

type updateTextRequest struct {
	OldText string  `json:"old_text" binding:"required"`
	NewText *string `json:"new_text" binding:"required"`
	Commit  bool    `json:"commit"`
}

type deleteTextRequest struct {
	TextToDelete string `json:"text_to_delete" binding:"required"`
	Commit       bool   `json:"commit"`
}

type textResponse struct {
	DocumentID  string `json:"document_id"`
	UpdatedText string `json:"updated_text"`
	Committed   bool   `json:"committed"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	st := s.deps.Registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"documents":          st.TotalDocs,
		"ingested_documents": st.IngestedDocs,
		"chunks":             st.TotalChunks,
		"vectors":            st.TotalVectors,
		"dimension":          st.Dimension,
	})
}

func (s *Server) createDocument(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	ref := strings.TrimSpace(req.SourceRef)
	if ref == "" {
		ref = s.deps.DefaultSource
	}
	if ref == "" {
		badRequest(c, "source_ref is required")
		return
	}

	doc, err := s.deps.Registry.Create(ref)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, documentResponse{DocumentID: doc.ID, SourceRef: doc.SourceRef})
}

func (s *Server) listDocuments(c *gin.Context) {
	docs := s.deps.Registry.List()
	out := make([]documentSummary, len(docs))
	for i, d := range docs {
		out[i] = documentSummary{
			DocumentID: d.ID,
			SourceRef:  d.SourceRef,
			Ingested:   d.Ingested,
			Chunks:     len(d.Chunks),
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

func (s *Server) getDocument(c *gin.Context) {
	doc, err := s.deps.Registry.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, documentResponse{DocumentID: doc.ID, SourceRef: doc.SourceRef})
}

func (s *Server) updateDocument(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deps.Registry.Get(id); err != nil {
		s.fail(c, err)
		return
	}
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	doc, err := s.deps.Registry.UpdateSourceRef(id, req.SourceRef)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, documentResponse{DocumentID: doc.ID, SourceRef: doc.SourceRef})
}

func (s *Server) deleteDocument(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Registry.Delete(id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Document %s deleted", id)})
}

func (s *Server) listChunks(c *gin.Context) {
	doc, err := s.deps.Registry.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]chunkResponse, len(doc.Chunks))
	for i, ch := range doc.Chunks {
		out[i] = chunkResponse{
			ChunkID:       ch.ID,
			DocumentID:    ch.DocID,
			SequenceIndex: ch.Index,
			Text:          ch.Text,
		}
	}
	c.JSON(http.StatusOK, gin.H{"document_id": doc.ID, "chunks": out})
}

func (s *Server) extractText(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))
	doc, err := s.deps.Extract.Extract(c.Request.Context(), c.Param("id"), refresh)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": doc.ID, "extracted_text": doc.Text})
}

func (s *Server) searchText(c *gin.Context) {
	id := c.Param("id")
	keyword := strings.TrimSpace(c.Query("keyword"))
	if keyword == "" {
		badRequest(c, "keyword is required")
		return
	}
	if _, err := s.deps.Registry.Get(id); err != nil {
		s.fail(c, err)
		return
	}
	if _, err := s.deps.Extract.EnsureIngested(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}

	matches, err := s.deps.Retrieve.KeywordSearch(id, keyword)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(matches) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no matching text found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": id, "matching_text": matches})
}

func (s *Server) updateText(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deps.Registry.Get(id); err != nil {
		s.fail(c, err)
		return
	}
	var req updateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "old_text and new_text are required")
		return
	}
	s.editText(c, id, req.OldText, *req.NewText, req.Commit)
}

func (s *Server) deleteText(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deps.Registry.Get(id); err != nil {
		s.fail(c, err)
		return
	}
	var req deleteTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "text_to_delete is required")
		return
	}
	s.editText(c, id, req.TextToDelete, "", req.Commit)
}

func (s *Server) editText(c *gin.Context, id, oldText, newText string, commit bool) {
	ctx := c.Request.Context()
	if _, err := s.deps.Extract.EnsureIngested(ctx, id); err != nil {
		s.fail(c, err)
		return
	}

	var (
		updated string
		err     error
	)
	if commit {
		var doc domain.Document
		doc, err = s.deps.Registry.ReplaceAndIngest(ctx, id, oldText, newText)
		updated = doc.Text
	} else {
		updated, err = s.deps.Registry.ReplaceText(id, oldText, newText)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, textResponse{DocumentID: id, UpdatedText: updated, Committed: commit})
}

func (s *Server) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		badRequest(c, "q is required")
		return
	}
	k := s.deps.TopK
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "k must be a positive integer")
			return
		}
		k = n
	}

	var (
		results []domain.ScoredChunk
		err     error
	)
	if docID := c.Query("document_id"); docID != "" {
		results, err = s.deps.Retrieve.SearchDocument(c.Request.Context(), docID, query, k)
	} else {
		results, err = s.deps.Retrieve.SemanticSearch(c.Request.Context(), query, k)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]searchResult, len(results))
	for i, r := range results {
		out[i] = searchResult{
			chunkResponse: chunkResponse{
				ChunkID:       r.Chunk.ID,
				DocumentID:    r.Chunk.DocID,
				SequenceIndex: r.Chunk.Index,
				Text:          r.Chunk.Text,
			},
			Score: r.Score,
		}
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": out})
}
