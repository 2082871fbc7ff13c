package embedding

import (
	"context"
	"hash/fnv"

	"docrag/internal/adapter/analyzer"
)

const trigramWeight = 0.5

// HashingEmbedder is a local embedder that feature-hashes word tokens and
// their character trigrams into a fixed number of signed buckets. It needs no
// network and is deterministic, which makes it the default provider.
type HashingEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashingEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(),
	}
}

func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = e.embedOne(text)
	}
	return embeddings, nil
}

func (e *HashingEmbedder) embedOne(text string) []float32 {
	v := make([]float32, e.dimension)
	for _, token := range e.tokenizer.Tokenize(text) {
		e.add(v, "w:"+token, 1)
		for _, gram := range analyzer.CharNGrams(token, 3) {
			e.add(v, "g:"+gram, trigramWeight)
		}
	}
	l2normalize(v)
	return v
}

func (e *HashingEmbedder) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[bucket] += weight
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashingEmbedder) ModelName() string {
	return "hash"
}
