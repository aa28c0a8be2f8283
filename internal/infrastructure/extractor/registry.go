// Package extractor routes report files to a format-specific text extractor
// by file extension.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// FileExtractor handles the extensions it lists, lower case with the dot.
type FileExtractor interface {
	Extensions() []string
	Extract(ctx context.Context, path string) (string, []int, error)
}

type Registry struct {
	byExt map[string]FileExtractor
}

func NewRegistry(extractors ...FileExtractor) *Registry {
	r := &Registry{byExt: make(map[string]FileExtractor)}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Extract(ctx context.Context, path string) (string, []int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return "", nil, domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("unsupported file type %q", ext))
	}
	return e.Extract(ctx, path)
}

// JoinPages concatenates page texts with a blank line between pages and
// returns the rune offset at which each page starts. Blank pages keep their
// offset so page numbers stay aligned with the source.
func JoinPages(pages []string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(pages))
	pos := 0
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n\n")
			pos += 2
		}
		offsets = append(offsets, pos)
		page = strings.TrimSpace(page)
		b.WriteString(page)
		pos += len([]rune(page))
	}
	return b.String(), offsets
}

// TableText renders rows as a [TABLE] block with cells joined by " | ".
// Empty cells and empty rows are dropped.
func TableText(rows [][]string) string {
	var b strings.Builder
	b.WriteString("[TABLE]\n")
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) == 0 {
			continue
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	b.WriteString("[/TABLE]")
	return b.String()
}
