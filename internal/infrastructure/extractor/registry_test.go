package extractor

import (
	"context"
	"slices"
	"testing"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

type stubExtractor struct {
	exts []string
	text string
}

func (s stubExtractor) Extensions() []string { return s.exts }

func (s stubExtractor) Extract(context.Context, string) (string, []int, error) {
	return s.text, []int{0}, nil
}

func TestRegistryRoutesByExtension(t *testing.T) {
	r := NewRegistry(stubExtractor{exts: []string{".pdf"}, text: "pdf"}, stubExtractor{exts: []string{".txt", ".md"}, text: "plain"})

	if !r.Supports("BMW/Report_2023.PDF") || !r.Supports("notes.md") || r.Supports("deck.pptx") {
		t.Fatalf("unexpected Supports result")
	}
	if got := r.Extensions(); !slices.Equal(got, []string{".md", ".pdf", ".txt"}) {
		t.Fatalf("unexpected extensions %v", got)
	}
	text, _, err := r.Extract(context.Background(), "a.PDF")
	if err != nil || text != "pdf" {
		t.Fatalf("expected pdf extractor, got %q (%v)", text, err)
	}
	if _, _, err := r.Extract(context.Background(), "a.docx"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestJoinPagesRecordsRuneOffsets(t *testing.T) {
	text, offsets := JoinPages([]string{" Umsatz €5 ", "", "third"})
	if text != "Umsatz €5\n\n\n\nthird" {
		t.Fatalf("unexpected text %q", text)
	}
	if !slices.Equal(offsets, []int{0, 11, 13}) {
		t.Fatalf("unexpected offsets %v", offsets)
	}
	if got := string([]rune(text)[offsets[2]:]); got != "third" {
		t.Fatalf("offset does not point at page start, got %q", got)
	}
}

func TestTableTextDropsEmptyCells(t *testing.T) {
	got := TableText([][]string{{"Metric", "", "2023"}, {"", ""}, {"Revenue", "155.5"}})
	want := "[TABLE]\nMetric | 2023\nRevenue | 155.5\n[/TABLE]"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
