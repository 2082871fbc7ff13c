package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"docrag/config"
	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/retriever"
	"docrag/internal/adapter/store"
	"docrag/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", ".", "Directory holding the docrag store")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	runs := flag.Int("n", 20, "Number of timed query runs")
	flag.Parse()
	*runs = max(*runs, 0)

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./docs -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Store contents (documents, chunks, vectors)")
		fmt.Println("  2. Semantic similarity of the top results")
		fmt.Println("  3. Query latency with a cold and a warm embedding cache")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fail("loading config", err)
	}
	cfg.ApplyEnv()

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = config.IndexDBPath(*dir)
	}
	if _, err := os.Stat(dbPath); err != nil {
		fail("opening store", fmt.Errorf("%s: run 'docrag ingest' first", dbPath))
	}
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		fail("opening store", err)
	}
	defer st.Close()

	base, err := embedding.FromConfig(cfg.Embedding)
	if err != nil {
		fail("creating embedder", err)
	}
	queryCache := cache.NewQueryCache(max(cfg.Embedding.CacheSize, 1), cfg.Embedding.CacheTTL)
	cached := cache.NewCachedEmbedder(base, queryCache)

	chk, err := chunker.NewRecursiveChunkerWithSeparators(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.Separators)
	if err != nil {
		fail("creating chunker", err)
	}
	index := memstore.NewVectorIndex()
	registry := usecase.NewRegistry(chk, index, usecase.WithEmbedder(base))

	ctx := context.Background()
	docs, err := st.LoadDocuments()
	if err != nil {
		fail("loading documents", err)
	}
	rebuild, reason, err := st.NeedsRebuild(cfg)
	if err != nil {
		fail("checking store", err)
	}
	if rebuild {
		fmt.Printf("Note: vectors recomputed in memory (%s)\n", reason)
	}
	if _, err := registry.Restore(ctx, docs, rebuild); err != nil {
		fail("restoring registry", err)
	}

	retrieve := usecase.NewRetrieveUseCase(retriever.NewSemanticRetriever(index, cached), registry, 0)
	stats := registry.Stats()

	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Documents:  %d (%d ingested)\n", stats.TotalDocs, stats.IngestedDocs)
	fmt.Printf("Chunks:     %d\n", stats.TotalChunks)
	fmt.Printf("Vectors:    %d\n", stats.TotalVectors)
	fmt.Printf("Model:      %s (%s)\n", base.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension:  %d\n", base.Dimension())
	fmt.Println()

	fmt.Printf("Query: %q\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	results, err := retrieve.SemanticSearch(ctx, *query, *topK)
	cold := time.Since(start)
	if err != nil {
		fail("search", err)
	}

	sources := make(map[string]string, len(docs))
	for _, d := range registry.List() {
		sources[d.ID] = d.SourceRef
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(results))
	totalScore := 0.0
	for i, r := range results {
		preview := []rune(strings.ReplaceAll(r.Chunk.Text, "\n", " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}
		totalScore += r.Score
		fmt.Printf("%d. [%s %.3f] %s #%d\n", i+1, rating(r.Score), r.Score, filepath.Base(sources[r.Chunk.DocID]), r.Chunk.Index)
		fmt.Printf("   %s\n\n", string(preview))
	}

	measure := func(before func()) []time.Duration {
		latencies := make([]time.Duration, 0, *runs)
		for i := 0; i < *runs; i++ {
			before()
			start := time.Now()
			if _, err := retrieve.SemanticSearch(ctx, *query, *topK); err != nil {
				fail("search", err)
			}
			latencies = append(latencies, time.Since(start))
		}
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		return latencies
	}
	coldRuns := measure(queryCache.Invalidate)
	warmRuns := measure(func() {})
	hits, misses := queryCache.Stats()

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	if len(results) > 0 {
		avg := totalScore / float64(len(results))
		fmt.Printf("  Average similarity: %.3f\n", avg)
		fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)
		fmt.Printf("  Status: %s\n", status(avg))
	}
	fmt.Printf("LATENCY:\n")
	fmt.Printf("  First query:        %s\n", cold)
	if *runs > 0 {
		fmt.Printf("  Cold p50/p95:       %s / %s\n", coldRuns[len(coldRuns)/2], coldRuns[len(coldRuns)*95/100])
		fmt.Printf("  Warm p50/p95:       %s / %s\n", warmRuns[len(warmRuns)/2], warmRuns[len(warmRuns)*95/100])
	}
	fmt.Printf("  Cache hits/misses:  %d/%d\n", hits, misses)
}

func rating(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.5:
		return "GOOD"
	case score > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}

func status(avg float64) string {
	switch {
	case avg > 0.5:
		return "GOOD - semantic search working well"
	case avg > 0.3:
		return "OK - results are somewhat related"
	default:
		return "POOR - may need better embeddings or re-ingesting"
	}
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", step, err)
	os.Exit(1)
}
