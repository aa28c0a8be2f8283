// Package memory is a brute-force in-process vector index.
package memory

import (
	"context"
	"sync"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/vector"
)

type Index struct {
	mu       sync.RWMutex
	passages []domain.Passage
	byID     map[string]int
}

func New() *Index {
	return &Index{byID: make(map[string]int)}
}

func (i *Index) Reset(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.passages = nil
	i.byID = make(map[string]int)
	return nil
}

// Insert replaces passages whose ID is already present.
func (i *Index) Insert(_ context.Context, passages []domain.Passage) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, p := range passages {
		if pos, ok := i.byID[p.ID]; ok {
			i.passages[pos] = p
			continue
		}
		i.byID[p.ID] = len(i.passages)
		i.passages = append(i.passages, p)
	}
	return nil
}

func (i *Index) Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.ScoredPassage, error) {
	if topK <= 0 {
		return nil, nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]domain.ScoredPassage, 0, len(i.passages))
	for _, p := range i.passages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !filter.Matches(p.Provenance) {
			continue
		}
		out = append(out, domain.ScoredPassage{Passage: p, Score: vector.Cosine(embedding, p.Embedding)})
	}
	return vector.Rank(out, topK), nil
}

func (i *Index) Count(context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.passages), nil
}
