package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docrag/internal/domain"
)

// FileLoader loads local documents, dispatching on the file extension. PDF
// files yield one page per PDF page; anything else is read as a single page
// of UTF-8 text.
type FileLoader struct {
	pdf  *PDFLoader
	text *TextLoader
}

func NewFileLoader() *FileLoader {
	return &FileLoader{
		pdf:  &PDFLoader{},
		text: &TextLoader{},
	}
}

func (l *FileLoader) Load(ctx context.Context, sourceRef string) ([]domain.Page, error) {
	if strings.TrimSpace(sourceRef) == "" {
		return nil, fmt.Errorf("%w: empty source reference", domain.ErrLoad)
	}
	if strings.EqualFold(filepath.Ext(sourceRef), ".pdf") {
		return l.pdf.Load(ctx, sourceRef)
	}
	return l.text.Load(ctx, sourceRef)
}

// TextLoader reads a whole file as one page.
type TextLoader struct{}

func (l *TextLoader) Load(ctx context.Context, sourceRef string) ([]domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(sourceRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLoad, sourceRef, err)
	}
	return []domain.Page{{Number: 1, Text: string(data)}}, nil
}
