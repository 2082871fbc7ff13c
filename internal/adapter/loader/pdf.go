package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"docrag/internal/domain"
)

// PDFLoader extracts plain text from a local PDF, one page at a time.
type PDFLoader struct{}

func (l *PDFLoader) Load(ctx context.Context, sourceRef string) (pages []domain.Page, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(sourceRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLoad, sourceRef, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLoad, sourceRef, err)
	}

	// the parser panics on some malformed inputs
	defer func() {
		if p := recover(); p != nil {
			pages = nil
			err = fmt.Errorf("%w: %s: malformed pdf: %v", domain.ErrLoad, sourceRef, p)
		}
	}()

	r, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLoad, sourceRef, err)
	}

	pageCount := r.NumPage()
	pages = make([]domain.Page, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s page %d: %v", domain.ErrLoad, sourceRef, i, err)
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}

	return pages, nil
}
