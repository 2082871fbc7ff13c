package analyzer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer turns text into lowercase word tokens for feature hashing.
// Stopwords and words shorter than the minimum length are dropped.
type Tokenizer struct {
	stopwords map[string]struct{}
	minLen    int
}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{stopwords: wordSet(englishStopwords), minLen: 2}
}

func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := words[:0]
	for _, w := range words {
		w = strings.ToLower(w)
		if utf8.RuneCountInString(w) < t.minLen {
			continue
		}
		if _, stop := t.stopwords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// CharNGrams returns the character n-grams of a token padded with '#' on
// both sides, so "dog" with n=3 yields "#do", "dog", "og#".
func CharNGrams(token string, n int) []string {
	if n <= 0 {
		return nil
	}
	runes := []rune("#" + token + "#")
	if len(runes) <= n {
		return []string{string(runes)}
	}
	grams := make([]string, len(runes)-n+1)
	for i := range grams {
		grams[i] = string(runes[i : i+n])
	}
	return grams
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

var englishStopwords = []string{
	"a", "about", "after", "all", "also", "an", "and", "any", "are", "as",
	"at", "be", "been", "before", "being", "both", "but", "by", "can",
	"could", "did", "do", "does", "each", "every", "few", "for", "from",
	"had", "has", "have", "he", "her", "his", "how", "if", "in", "into",
	"is", "it", "its", "just", "may", "might", "more", "most", "must", "no",
	"not", "of", "on", "only", "or", "other", "our", "over", "shall", "she",
	"should", "so", "some", "such", "than", "that", "the", "their", "them",
	"then", "there", "these", "they", "this", "those", "through", "to",
	"too", "under", "up", "very", "was", "we", "were", "what", "when",
	"where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your",
}
