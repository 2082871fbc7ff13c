package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docrag/internal/domain"
)

var (
	queryText  string
	queryTopK  int
	queryDocID string
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Semantic search over ingested documents",
	Long: `Rank the chunks of all ingested documents (or one document) by
similarity to the query.

Examples:
  docrag query -q "stream processing"
  docrag query -q "window functions" -k 10 --doc <document-id> --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringVar(&queryDocID, "doc", "", "restrict the search to one document")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	_ = queryCmd.MarkFlagRequired("query")
}

type queryHit struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	SourceRef     string  `json:"source_ref"`
	SequenceIndex int     `json:"sequence_index"`
	Score         float64 `json:"score"`
	Text          string  `json:"text"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	topK := GetConfig().Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	ctx := commandContext(cmd)
	var results []domain.ScoredChunk
	if queryDocID != "" {
		results, err = a.retrieve.SearchDocument(ctx, queryDocID, queryText, topK)
	} else {
		results, err = a.retrieve.SemanticSearch(ctx, queryText, topK)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	hits := make([]queryHit, len(results))
	for i, r := range results {
		hits[i] = queryHit{
			ChunkID:       r.Chunk.ID,
			DocumentID:    r.Chunk.DocID,
			SequenceIndex: r.Chunk.Index,
			Score:         r.Score,
			Text:          r.Chunk.Text,
		}
		if doc, err := a.registry.Get(r.Chunk.DocID); err == nil {
			hits[i].SourceRef = doc.SourceRef
		}
	}

	if queryJSON {
		output, _ := json.MarshalIndent(hits, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(hits), queryText)
	for i, h := range hits {
		fmt.Printf("--- [%d] %s #%d (score: %.3f) ---\n", i+1, h.SourceRef, h.SequenceIndex, h.Score)
		text := []rune(h.Text)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Println(string(text))
		fmt.Println()
	}
	return nil
}

// openStoreApp opens the services over an existing store.
func openStoreApp(cmd *cobra.Command) (*app, error) {
	dbPath := storePath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no store found at %s. Run 'docrag ingest' first", dbPath)
	}
	return newApp(commandContext(cmd), GetConfig(), logger, dbPath)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
