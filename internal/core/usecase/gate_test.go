package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/vector/memory"
)

// insertHookIndex runs onInsert once, just before the next Insert.
type insertHookIndex struct {
	*memory.Index
	onInsert func()
}

func (h *insertHookIndex) Insert(ctx context.Context, passages []domain.Passage) error {
	if hook := h.onInsert; hook != nil {
		h.onInsert = nil
		hook()
	}
	return h.Index.Insert(ctx, passages)
}

func TestQueryDuringRebuildWaitsForNewIndex(t *testing.T) {
	root := reportTree(t)
	embedder := &hashEmbedderFake{}
	index := &insertHookIndex{Index: memory.New()}
	gate := NewIndexGate()
	ingest := NewIngestUseCase(IngestConfig{ReportsDir: root, BatchSize: 1, Gate: gate},
		&textExtractorFake{}, paragraphChunker{}, embedder, index, nil, nil, nil, nil)
	query := NewQueryUseCase(index, gate, NewPlanner(PlannerConfig{}), NewRetriever(embedder, index, true),
		NewComposer(&generatorFake{}, ComposerConfig{}), nil, nil, nil)

	if _, err := ingest.Rebuild(context.Background()); err != nil {
		t.Fatalf("first Rebuild() error = %v", err)
	}

	type outcome struct {
		answer *domain.Answer
		err    error
	}
	done := make(chan outcome, 1)
	index.onInsert = func() {
		go func() {
			answer, err := query.Ask(context.Background(), domain.NewSession("s", 10), "What was BMW's revenue in 2023?")
			done <- outcome{answer, err}
		}()
		// Leave an unguarded query enough time to hit the emptied index.
		time.Sleep(50 * time.Millisecond)
	}

	stats, err := ingest.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("second Rebuild() error = %v", err)
	}

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("expected the query to wait for the rebuild, got %v", got.err)
		}
		if got.answer == nil || got.answer.Plan.Template != domain.TemplateFactual {
			t.Fatalf("unexpected answer %+v", got.answer)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("query did not finish after the rebuild")
	}

	count, _ := index.Count(context.Background())
	if count != stats.Passages {
		t.Fatalf("expected %d passages, got %d", stats.Passages, count)
	}
}

func TestSearchBlocksWhileRebuildHoldsGate(t *testing.T) {
	embedder := &hashEmbedderFake{}
	idx := seededIndex(t, embedder, reportPassage("b1", domain.CompanyBMW, 2023, "BMW revenue 2023"))
	gate := NewIndexGate()
	query := NewQueryUseCase(idx, gate, NewPlanner(PlannerConfig{}), NewRetriever(embedder, idx, false),
		NewComposer(&generatorFake{}, ComposerConfig{}), nil, nil, nil)

	release := gate.write()
	done := make(chan error, 1)
	go func() {
		_, err := query.Search(context.Background(), "BMW revenue", domain.Filter{}, 1)
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("expected search to wait for the gate, finished with %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("search did not finish after the gate was released")
	}
}
