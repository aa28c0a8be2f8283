package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
)

var querySynonyms = []struct {
	keywords []string
	synonyms string
}{
	{[]string{"revenue", "revenues"}, "total sales net sales turnover"},
	{[]string{"profit", "profits", "profitability"}, "net income earnings EBIT EBITDA net profit"},
	{[]string{"growth", "grow", "grew"}, "increase change trend performance"},
}

type Retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	expand   bool
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, expand bool) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		expand:   expand,
	}
}

// Retrieve returns at most topK passages that satisfy filter, best first.
// An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, filter domain.Filter, topK int) ([]domain.ScoredPassage, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if r.expand {
		queryText = expandQuery(queryText)
	}

	vector, err := r.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, embedQueryFailure(err)
	}

	var candidates []domain.ScoredPassage
	if len(filter.Companies) >= 2 {
		perCompany := (topK + len(filter.Companies) - 1) / len(filter.Companies)
		for _, company := range filter.Companies {
			sub := filter
			sub.Companies = []domain.Company{company}
			found, err := r.index.Query(ctx, vector, perCompany, sub)
			if err != nil {
				return nil, fmt.Errorf("query vector index for %s: %w", company, err)
			}
			candidates = append(candidates, found...)
		}
	} else {
		found, err := r.index.Query(ctx, vector, topK, filter)
		if err != nil {
			return nil, fmt.Errorf("query vector index: %w", err)
		}
		candidates = found
	}

	kept := make([]domain.ScoredPassage, 0, len(candidates))
	for _, c := range candidates {
		if filter.Matches(c.Passage.Provenance) {
			kept = append(kept, c)
		}
	}
	return trimCandidates(mergeByBestScore(kept), topK), nil
}

func embedQueryFailure(err error) error {
	if errors.Is(err, context.Canceled) ||
		domain.IsKind(err, domain.ErrEmbeddingUnavailable) ||
		domain.IsKind(err, domain.ErrGatewayTimeout) {
		return fmt.Errorf("embed query: %w", err)
	}
	return domain.WrapError(domain.ErrEmbeddingUnavailable, "embed query", err)
}

// expandQuery appends financial synonyms for metric words so the query
// embedding lands closer to report wording.
func expandQuery(query string) string {
	tokens := splitAlphaNumLower(query)
	var extra []string
	for _, s := range querySynonyms {
		if containsAnyPhrase(tokens, s.keywords) {
			extra = append(extra, s.synonyms)
		}
	}
	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

// mergeByBestScore drops duplicate passage IDs, keeping the highest score,
// and orders by score then ID so equal inputs always rank the same way.
func mergeByBestScore(candidates []domain.ScoredPassage) []domain.ScoredPassage {
	acc := make(map[string]domain.ScoredPassage, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		current, seen := acc[c.Passage.ID]
		if !seen {
			order = append(order, c.Passage.ID)
			acc[c.Passage.ID] = c
			continue
		}
		if c.Score > current.Score {
			acc[c.Passage.ID] = c
		}
	}

	out := make([]domain.ScoredPassage, 0, len(order))
	for _, id := range order {
		out = append(out, acc[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Passage.ID < out[j].Passage.ID
	})
	return out
}

func trimCandidates(passages []domain.ScoredPassage, limit int) []domain.ScoredPassage {
	if limit <= 0 || len(passages) <= limit {
		return passages
	}
	return passages[:limit]
}
