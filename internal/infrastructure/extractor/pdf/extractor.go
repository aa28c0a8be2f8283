package pdf

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/autoreport-rag/internal/infrastructure/extractor"
)

// Extractor pulls plain text page by page. Pages without text keep their
// slot so page numbers match the PDF.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extensions() []string {
	return []string{".pdf"}
}

func (e *Extractor) Extract(ctx context.Context, path string) (text string, offsets []int, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, offsets = "", nil
			err = fmt.Errorf("parse pdf %s: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, content)
	}
	if len(pages) == 0 {
		return "", nil, nil
	}

	text, offsets = extractor.JoinPages(pages)
	return text, offsets, nil
}
