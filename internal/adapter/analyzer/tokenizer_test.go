package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tok := NewTokenizer()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"drops stopwords", "Running dogs are playing", []string{"running", "dogs", "playing"}},
		{"drops short words", "a I go B contains cat", []string{"go", "contains", "cat"}},
		{"lowercases", "Kafka STREAMS", []string{"kafka", "streams"}},
		{"keeps underscores", "snake_case vs camel", []string{"snake_case", "vs", "camel"}},
		{"empty", "", []string{}},
		{"punctuation only", " .,;! ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Tokenize(tt.input)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCharNGrams(t *testing.T) {
	tests := []struct {
		token string
		n     int
		want  []string
	}{
		{"dog", 3, []string{"#do", "dog", "og#"}},
		{"a", 3, []string{"#a#"}},
		{"a", 4, []string{"#a#"}},
		{"über", 3, []string{"#üb", "übe", "ber", "er#"}},
		{"x", 0, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CharNGrams(tt.token, tt.n), "CharNGrams(%q, %d)", tt.token, tt.n)
	}
}

func TestSplitWords(t *testing.T) {
	tests := map[string]int{
		"hello world":           2,
		"hello_world":           1,
		"hello-world":           2,
		"A. B contains cat. C.": 5,
		"123numbers456":         1,
	}
	for input, want := range tests {
		assert.Len(t, splitWords(input), want, input)
	}
}
