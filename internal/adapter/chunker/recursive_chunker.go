package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
)

// DefaultSeparators are tried from coarse to fine. The empty separator
// splits into single characters and guarantees progress.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

// RecursiveChunker splits text into overlapping chunks of at most chunkSize
// characters, preferring the coarsest separator that keeps pieces small.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveChunker(chunkSize, overlap int) (*RecursiveChunker, error) {
	return NewRecursiveChunkerWithSeparators(chunkSize, overlap, DefaultSeparators)
}

func NewRecursiveChunkerWithSeparators(chunkSize, overlap int, separators []string) (*RecursiveChunker, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk size %d must exceed overlap %d >= 0", domain.ErrInvalidInput, chunkSize, overlap)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &RecursiveChunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: separators,
	}, nil
}

func (c *RecursiveChunker) ChunkSize() int { return c.chunkSize }

func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Chunk splits content and assigns contiguous sequence indexes and IDs.
func (c *RecursiveChunker) Chunk(doc domain.Document, content string) ([]domain.Chunk, error) {
	texts := c.Split(content)
	if len(texts) == 0 {
		return nil, nil
	}

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			ID:    generateChunkID(doc.ID, i, text),
			DocID: doc.ID,
			Index: i,
			Text:  text,
		})
	}
	return chunks, nil
}

// Split returns the ordered, trimmed, non-empty chunk texts for text.
func (c *RecursiveChunker) Split(text string) []string {
	var out []string
	c.split(text, c.separators, &out)
	return out
}

func (c *RecursiveChunker) split(text string, separators []string, out *[]string) {
	sep, rest := pickSeparator(text, separators)

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		for _, p := range strings.SplitAfter(text, sep) {
			if p != "" {
				pieces = append(pieces, p)
			}
		}
	}

	var fitting []string
	for _, piece := range pieces {
		if runeLen(piece) <= c.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			c.merge(fitting, out)
			fitting = nil
		}
		if sep == "" || len(rest) == 0 {
			// Irreducible with the configured separators.
			appendTrimmed(out, piece)
			continue
		}
		c.split(piece, rest, out)
	}
	if len(fitting) > 0 {
		c.merge(fitting, out)
	}
}

// merge packs consecutive pieces into chunks. After a chunk is emitted the
// window keeps at most overlap characters of trailing pieces.
func (c *RecursiveChunker) merge(pieces []string, out *[]string) {
	var window []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > c.chunkSize && len(window) > 0 {
			appendTrimmed(out, strings.Join(window, ""))
			for total > c.overlap || (total+n > c.chunkSize && total > 0) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}

	if len(window) > 0 {
		appendTrimmed(out, strings.Join(window, ""))
	}
}

func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

func appendTrimmed(out *[]string, text string) {
	if t := strings.TrimSpace(text); t != "" {
		*out = append(*out, t)
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func generateChunkID(docID string, index int, text string) string {
	data := fmt.Sprintf("%s:%d:%s", docID, index, text)
	hash := sha256.Sum256([]byte(data))
	return docID + "-" + hex.EncodeToString(hash[:8])
}
