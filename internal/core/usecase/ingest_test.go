package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

type textExtractorFake struct {
	err error
}

func (f *textExtractorFake) Supports(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func (f *textExtractorFake) Extract(_ context.Context, path string) (string, []int, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	return string(raw), []int{0}, nil
}

// paragraphChunker emits one passage per blank-line separated paragraph.
type paragraphChunker struct{}

func (paragraphChunker) Chunk(doc domain.SourceDocument) []domain.Passage {
	var out []domain.Passage
	for _, para := range strings.Split(doc.Text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		idx := len(out)
		out = append(out, domain.Passage{
			ID:   domain.PassageID(doc.Source, idx),
			Text: para,
			Provenance: domain.Provenance{
				Company:    doc.Company,
				Year:       doc.Year,
				Source:     doc.Source,
				ChunkIndex: idx,
				Page:       1,
			},
		})
	}
	return out
}

type catalogFake struct {
	reports []domain.Report
	err     error
}

func (f *catalogFake) ReplaceAll(_ context.Context, reports []domain.Report) error {
	if f.err != nil {
		return f.err
	}
	f.reports = append([]domain.Report(nil), reports...)
	return nil
}

func (f *catalogFake) List(context.Context) ([]domain.Report, error) {
	return append([]domain.Report(nil), f.reports...), nil
}

func (f *catalogFake) GetByID(_ context.Context, id string) (*domain.Report, error) {
	for _, r := range f.reports {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, domain.ErrReportNotFound
}

func writeReport(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func reportTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeReport(t, root, "BMW/BMW_Annual_Report_2023.txt", "BMW revenue 2023.\n\nBMW deliveries 2023.")
	writeReport(t, root, "Tesla/tesla-2022.md", "Tesla revenue 2022.")
	writeReport(t, root, "Other/x.txt", "unrelated")
	writeReport(t, root, "Ford/notes.docx", "binary")
	return root
}

func TestIngestRebuildIndexesKnownCompanies(t *testing.T) {
	root := reportTree(t)
	index := &indexFake{}
	catalog := &catalogFake{}
	events := &eventsFake{}
	uc := NewIngestUseCase(IngestConfig{ReportsDir: root}, &textExtractorFake{}, paragraphChunker{},
		&hashEmbedderFake{}, index, catalog, nil, events, nil)

	stats, err := uc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if stats.Documents != 2 || stats.Passages != 3 {
		t.Fatalf("expected 2 documents and 3 passages, got %+v", stats)
	}
	if stats.ByCompany[domain.CompanyBMW] != 1 || stats.ByCompany[domain.CompanyTesla] != 1 {
		t.Fatalf("unexpected per-company stats %v", stats.ByCompany)
	}
	if stats.ByYear[2023] != 1 || stats.ByYear[2022] != 1 {
		t.Fatalf("unexpected per-year stats %v", stats.ByYear)
	}
	for _, want := range []string{"Other/", "Ford/notes.docx"} {
		if !slices.Contains(stats.Skipped, want) {
			t.Fatalf("expected %q in skipped %v", want, stats.Skipped)
		}
	}

	if index.resets != 1 || len(index.inserted) != 3 {
		t.Fatalf("expected one reset and 3 inserts, got %d/%d", index.resets, len(index.inserted))
	}
	for _, p := range index.inserted {
		if len(p.Embedding) == 0 {
			t.Fatalf("passage %s inserted without embedding", p.ID)
		}
	}
	if len(catalog.reports) != 2 || catalog.reports[0].Source != "BMW/BMW_Annual_Report_2023.txt" {
		t.Fatalf("unexpected catalog %+v", catalog.reports)
	}
	if catalog.reports[0].ID != domain.ReportID("BMW/BMW_Annual_Report_2023.txt") {
		t.Fatalf("expected stable report id")
	}
	if len(events.indexed) != 1 || events.indexed[0].Passages != 3 {
		t.Fatalf("expected one indexed event, got %+v", events.indexed)
	}
}

func TestIngestEmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	root := reportTree(t)
	index := &indexFake{}
	embedder := &hashEmbedderFake{err: domain.WrapError(domain.ErrEmbeddingUnavailable, "embed", errors.New("down"))}
	uc := NewIngestUseCase(IngestConfig{ReportsDir: root}, &textExtractorFake{}, paragraphChunker{},
		embedder, index, nil, nil, nil, nil)

	_, err := uc.Rebuild(context.Background())
	if !domain.IsKind(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if index.resets != 0 {
		t.Fatalf("index must not be reset when embedding fails")
	}
}

func TestIngestExtractionFailureAborts(t *testing.T) {
	root := reportTree(t)
	index := &indexFake{}
	uc := NewIngestUseCase(IngestConfig{ReportsDir: root}, &textExtractorFake{err: errors.New("corrupt pdf")},
		paragraphChunker{}, &hashEmbedderFake{}, index, nil, nil, nil, nil)

	if _, err := uc.Rebuild(context.Background()); err == nil || !strings.Contains(err.Error(), "corrupt pdf") {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if index.resets != 0 {
		t.Fatalf("index must not be reset when extraction fails")
	}
}

func TestIngestSkipsBlankReports(t *testing.T) {
	root := t.TempDir()
	writeReport(t, root, "BMW/BMW_2023.txt", "BMW revenue 2023.")
	writeReport(t, root, "Ford/Ford_2022.txt", " \n\t\n ")
	index := &indexFake{}
	uc := NewIngestUseCase(IngestConfig{ReportsDir: root}, &textExtractorFake{}, paragraphChunker{},
		&hashEmbedderFake{}, index, nil, nil, nil, nil)

	stats, err := uc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if stats.Documents != 1 || len(index.inserted) != 1 {
		t.Fatalf("expected only the BMW report indexed, got %+v", stats)
	}
	if !slices.Contains(stats.Skipped, "Ford/Ford_2022.txt") {
		t.Fatalf("expected blank report listed as skipped, got %v", stats.Skipped)
	}
}

func TestIngestEmbedsInBatches(t *testing.T) {
	root := t.TempDir()
	writeReport(t, root, "Ford/Ford_2021.txt", "one\n\ntwo\n\nthree\n\nfour\n\nfive")
	embedder := &hashEmbedderFake{}
	index := &indexFake{}
	uc := NewIngestUseCase(IngestConfig{ReportsDir: root, BatchSize: 2}, &textExtractorFake{}, paragraphChunker{},
		embedder, index, nil, nil, nil, nil)

	stats, err := uc.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if stats.Passages != 5 {
		t.Fatalf("expected 5 passages, got %d", stats.Passages)
	}
	if embedder.batches != 3 {
		t.Fatalf("expected 3 embedding batches, got %d", embedder.batches)
	}
	if len(index.inserted) != 5 {
		t.Fatalf("expected 5 inserted passages, got %d", len(index.inserted))
	}
}

func TestIngestWithoutReportTextIsInvalid(t *testing.T) {
	root := t.TempDir()
	writeReport(t, root, "Other/x.txt", "unrelated")
	index := &indexFake{}
	uc := NewIngestUseCase(IngestConfig{ReportsDir: root}, &textExtractorFake{}, paragraphChunker{},
		&hashEmbedderFake{}, index, nil, nil, nil, nil)

	_, err := uc.Rebuild(context.Background())
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if index.resets != 0 {
		t.Fatalf("index must not be reset")
	}
}

func TestIngestStatsFallsBackToIndexCount(t *testing.T) {
	uc := NewIngestUseCase(IngestConfig{}, &textExtractorFake{}, paragraphChunker{},
		&hashEmbedderFake{}, &indexFake{count: 42}, nil, nil, nil, nil)

	stats, err := uc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Passages != 42 || stats.Documents != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestIngestUploadStoresUnderCompanyAndRequestsReindex(t *testing.T) {
	storage := &storageFake{}
	events := &eventsFake{}
	uc := NewIngestUseCase(IngestConfig{}, &textExtractorFake{}, paragraphChunker{},
		&hashEmbedderFake{}, &indexFake{}, nil, storage, events, nil)

	path, err := uc.Upload(context.Background(), "tesla", "Tesla Report 2024.txt", strings.NewReader("body"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if storage.savedKey != "Tesla/Tesla_Report_2024.txt" || storage.savedBody != "body" {
		t.Fatalf("unexpected stored object %q %q", storage.savedKey, storage.savedBody)
	}
	if path != "/reports/Tesla/Tesla_Report_2024.txt" {
		t.Fatalf("unexpected path %q", path)
	}
	if len(events.reindex) != 1 {
		t.Fatalf("expected a reindex request, got %v", events.reindex)
	}
}

func TestIngestUploadValidation(t *testing.T) {
	storage := &storageFake{}
	uc := NewIngestUseCase(IngestConfig{}, &textExtractorFake{}, paragraphChunker{},
		&hashEmbedderFake{}, &indexFake{}, nil, storage, nil, nil)

	cases := []struct {
		name     string
		company  string
		filename string
	}{
		{name: "unknown company", company: "Toyota", filename: "toyota_2023.txt"},
		{name: "unsupported extension", company: "BMW", filename: "bmw_2023.docx"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Upload(context.Background(), tc.company, tc.filename, strings.NewReader("x"))
			if !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if storage.savedKey != "" {
		t.Fatalf("nothing should be stored, got %q", storage.savedKey)
	}
}

func TestYearFromFilename(t *testing.T) {
	cases := map[string]int{
		"BMW_Annual_Report_2023.pdf": 2023,
		"tesla-2022.md":              2022,
		"2021_ford.txt":              2021,
		"report12023.pdf":            0,
		"notes.txt":                  0,
		"ford_20201.txt":             0,
	}
	for name, want := range cases {
		if got := yearFromFilename(name); got != want {
			t.Fatalf("yearFromFilename(%q): expected %d, got %d", name, want, got)
		}
	}
}
