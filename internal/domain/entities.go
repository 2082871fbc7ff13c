package domain

import "time"

// Document is a registered source document and the text last ingested for it.
type Document struct {
	ID        string
	SourceRef string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Text is the full text last committed through ingestion. Empty until the
	// document is ingested for the first time.
	Text string
	// IngestedFrom is the SourceRef the current Text was loaded from, or ""
	// when the text was supplied directly.
	IngestedFrom string
	Ingested     bool
	Chunks       []Chunk
}

type Chunk struct {
	ID     string
	DocID  string
	Index  int
	Text   string
	Vector []float32
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Page is one page of raw text returned by a document loader.
type Page struct {
	Number int
	Text   string
}

type Stats struct {
	TotalDocs    int
	IngestedDocs int
	TotalChunks  int
	TotalVectors int
	Dimension    int
}
