package loader

import (
	"strings"

	"docrag/internal/domain"
)

// bulletGlyph is the private-use arrow bullet that PDF exporters emit for
// list items.
const bulletGlyph = "\uf0d8"

// Flatten joins pages into one line of text: bullet glyphs become "-",
// newlines become spaces, each page is trimmed, pages are joined by a space
// and every whitespace run collapses to a single space.
func Flatten(pages []domain.Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		text := strings.ReplaceAll(p.Text, bulletGlyph, "-")
		text = strings.ReplaceAll(text, "\n", " ")
		parts[i] = strings.TrimSpace(text)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
