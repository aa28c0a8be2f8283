package plaintext

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/autoreport-rag/internal/infrastructure/extractor"
)

// Extractor reads UTF-8 text and markdown reports. Form feeds split pages.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extensions() []string {
	return []string{".txt", ".md"}
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, []int, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read source document: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", nil, fmt.Errorf("unsupported binary content in %s", path)
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return "", nil, nil
	}
	pages := strings.Split(text, "\f")
	if len(pages) == 1 {
		text = strings.TrimSpace(text)
		return text, []int{0}, nil
	}
	joined, offsets := extractor.JoinPages(pages)
	return joined, offsets, nil
}
