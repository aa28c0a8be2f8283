package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/vector/memory"
)

func seededIndex(t *testing.T, embedder *hashEmbedderFake, passages ...domain.Passage) *memory.Index {
	t.Helper()
	idx := memory.New()
	for i := range passages {
		passages[i].Embedding = hashVector(passages[i].Text)
	}
	if err := idx.Insert(context.Background(), passages); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	return idx
}

func reportPassage(id string, company domain.Company, year int, text string) domain.Passage {
	return domain.Passage{
		ID:         id,
		Text:       text,
		Provenance: domain.Provenance{Company: company, Year: year, Source: string(company) + "_report.pdf"},
	}
}

func TestRetrieverRespectsCompanyFilter(t *testing.T) {
	embedder := &hashEmbedderFake{}
	idx := seededIndex(t, embedder,
		reportPassage("t1", domain.CompanyTesla, 2023, "Tesla revenue was $96.8 billion in 2023."),
		reportPassage("t2", domain.CompanyTesla, 2022, "Tesla revenue was $81.5 billion in 2022."),
		reportPassage("b1", domain.CompanyBMW, 2023, "BMW revenue was EUR 155.5 billion in 2023."),
		reportPassage("f1", domain.CompanyFord, 2023, "Ford revenue was $176 billion in 2023."),
	)
	retriever := NewRetriever(embedder, idx, false)

	filter := domain.Filter{Companies: []domain.Company{domain.CompanyTesla}}
	got, err := retriever.Retrieve(context.Background(), "What was the revenue?", filter, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 Tesla passages, got %d", len(got))
	}
	for _, r := range got {
		if r.Passage.Provenance.Company != domain.CompanyTesla {
			t.Fatalf("passage %s violates the company filter", r.Passage.ID)
		}
	}
}

func TestRetrieverIsDeterministic(t *testing.T) {
	embedder := &hashEmbedderFake{}
	idx := seededIndex(t, embedder,
		reportPassage("a", domain.CompanyFord, 2021, "Ford net income in 2021"),
		reportPassage("b", domain.CompanyFord, 2021, "Ford net income in 2021"),
		reportPassage("c", domain.CompanyFord, 2022, "Ford supply chain risks"),
	)
	retriever := NewRetriever(embedder, idx, true)

	first, err := retriever.Retrieve(context.Background(), "Ford profit 2021", domain.Filter{}, 3)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for run := 0; run < 5; run++ {
		again, _ := retriever.Retrieve(context.Background(), "Ford profit 2021", domain.Filter{}, 3)
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed", run)
		}
		for i := range again {
			if again[i].Passage.ID != first[i].Passage.ID || again[i].Score != first[i].Score {
				t.Fatalf("run %d: position %d changed", run, i)
			}
		}
	}
	if first[0].Passage.ID != "a" || first[1].Passage.ID != "b" {
		t.Fatalf("expected tie broken by ID, got %s then %s", first[0].Passage.ID, first[1].Passage.ID)
	}
}

func TestRetrieverEmbeddingFailureAbortsBeforeQuery(t *testing.T) {
	idx := &indexFake{}
	retriever := NewRetriever(&hashEmbedderFake{err: errors.New("connection refused")}, idx, false)

	_, err := retriever.Retrieve(context.Background(), "revenue", domain.Filter{}, 5)
	if !domain.IsKind(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if len(idx.queries) != 0 {
		t.Fatalf("index must not be queried after an embedding failure")
	}
}

func TestRetrieverQueriesEachCompanySeparately(t *testing.T) {
	idx := &indexFake{byCompany: map[domain.Company][]domain.ScoredPassage{
		domain.CompanyBMW: {
			scored("b1", domain.CompanyBMW, 2022, 0.91),
			scored("b2", domain.CompanyBMW, 2022, 0.90),
			scored("b3", domain.CompanyBMW, 2022, 0.89),
		},
		domain.CompanyTesla: {
			scored("t1", domain.CompanyTesla, 2022, 0.40),
			scored("t2", domain.CompanyTesla, 2022, 0.30),
		},
	}}
	retriever := NewRetriever(&hashEmbedderFake{}, idx, false)

	filter := domain.Filter{Companies: []domain.Company{domain.CompanyBMW, domain.CompanyTesla}, Years: []int{2022}}
	got, err := retriever.Retrieve(context.Background(), "compare profit", filter, 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(idx.queries) != 2 {
		t.Fatalf("expected one query per company, got %d", len(idx.queries))
	}
	for _, q := range idx.queries {
		if q.topK != 3 || len(q.filter.Companies) != 1 || len(q.filter.Years) != 1 {
			t.Fatalf("unexpected per-company query %+v", q)
		}
	}

	seen := map[domain.Company]bool{}
	for _, r := range got {
		seen[r.Passage.Provenance.Company] = true
	}
	if len(got) != 5 || !seen[domain.CompanyBMW] || !seen[domain.CompanyTesla] {
		t.Fatalf("expected 5 results spanning both companies, got %+v", got)
	}
}

func TestRetrieverDropsDuplicatesAndFilterViolations(t *testing.T) {
	idx := &indexFake{all: []domain.ScoredPassage{
		scored("x", domain.CompanyFord, 2021, 0.5),
		scored("x", domain.CompanyFord, 2021, 0.8),
		scored("y", domain.CompanyFord, 2020, 0.9),
		scored("z", domain.CompanyFord, 2021, 0.6),
	}}
	retriever := NewRetriever(&hashEmbedderFake{}, idx, false)

	got, err := retriever.Retrieve(context.Background(), "Ford 2021", domain.Filter{Years: []int{2021}}, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 || got[0].Passage.ID != "x" || got[0].Score != 0.8 || got[1].Passage.ID != "z" {
		t.Fatalf("unexpected results %+v", got)
	}
}

func TestRetrieverExpandsFinancialSynonyms(t *testing.T) {
	embedder := &hashEmbedderFake{}
	retriever := NewRetriever(embedder, &indexFake{}, true)

	if _, err := retriever.Retrieve(context.Background(), "BMW revenue 2023", domain.Filter{}, 5); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !strings.Contains(embedder.queries[0], "net sales") {
		t.Fatalf("expected expanded query, got %q", embedder.queries[0])
	}

	plain := &hashEmbedderFake{}
	_, _ = NewRetriever(plain, &indexFake{}, false).Retrieve(context.Background(), "BMW revenue 2023", domain.Filter{}, 5)
	if plain.queries[0] != "BMW revenue 2023" {
		t.Fatalf("expected unexpanded query, got %q", plain.queries[0])
	}
}

func TestRetrieverReturnsEmptyResultFromEmptyIndex(t *testing.T) {
	retriever := NewRetriever(&hashEmbedderFake{}, memory.New(), true)
	got, err := retriever.Retrieve(context.Background(), "anything", domain.Filter{}, 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
}
