package usecase

import (
	"context"
	"hash/fnv"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// hashEmbedderFake maps each token onto one of 32 buckets, so texts sharing
// words get similar vectors.
type hashEmbedderFake struct {
	mu      sync.Mutex
	queries []string
	batches int
	err     error
}

func hashVector(text string) []float32 {
	v := make([]float32, 32)
	for _, token := range splitAlphaNumLower(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		v[h.Sum32()%32]++
	}
	return v
}

func (f *hashEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, hashVector(t))
	}
	return out, nil
}

func (f *hashEmbedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return hashVector(text), nil
}

type indexQuery struct {
	topK   int
	filter domain.Filter
}

// indexFake returns canned results per company and records every call.
type indexFake struct {
	byCompany map[domain.Company][]domain.ScoredPassage
	all       []domain.ScoredPassage
	count     int
	countErr  error

	queries  []indexQuery
	resets   int
	inserted []domain.Passage
}

func (f *indexFake) Reset(context.Context) error {
	f.resets++
	f.inserted = nil
	return nil
}

func (f *indexFake) Insert(_ context.Context, passages []domain.Passage) error {
	f.inserted = append(f.inserted, passages...)
	return nil
}

func (f *indexFake) Query(_ context.Context, _ []float32, topK int, filter domain.Filter) ([]domain.ScoredPassage, error) {
	f.queries = append(f.queries, indexQuery{topK: topK, filter: filter})
	var src []domain.ScoredPassage
	if len(filter.Companies) == 1 && f.byCompany != nil {
		src = f.byCompany[filter.Companies[0]]
	} else {
		src = f.all
	}
	out := append([]domain.ScoredPassage(nil), src...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *indexFake) Count(context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.count > 0 {
		return f.count, nil
	}
	return len(f.inserted), nil
}

type generatorFake struct {
	prompts []string
	answer  string
	err     error
}

func (f *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if f.answer == "" {
		return "generated answer", nil
	}
	return f.answer, nil
}

type transcriptFake struct {
	sessionID string
	turns     []domain.Turn
	err       error
}

func (f *transcriptFake) AppendTurn(_ context.Context, sessionID string, turn domain.Turn) error {
	if f.err != nil {
		return f.err
	}
	f.sessionID = sessionID
	f.turns = append(f.turns, turn)
	return nil
}

type observerFake struct {
	plans []domain.QueryPlan
	errs  []error
}

func (f *observerFake) ObserveQuery(plan domain.QueryPlan, _ *domain.Answer, err error, _ float64) {
	f.plans = append(f.plans, plan)
	f.errs = append(f.errs, err)
}

type storageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return "/reports/" + key, nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type eventsFake struct {
	indexed []domain.IndexedEvent
	reindex []string
	err     error
}

func (f *eventsFake) PublishIndexed(_ context.Context, event domain.IndexedEvent) error {
	f.indexed = append(f.indexed, event)
	return f.err
}

func (f *eventsFake) RequestReindex(_ context.Context, reason string) error {
	f.reindex = append(f.reindex, reason)
	return f.err
}

func scored(id string, company domain.Company, year int, score float64) domain.ScoredPassage {
	return domain.ScoredPassage{
		Passage: domain.Passage{
			ID:         id,
			Text:       "passage " + id,
			Provenance: domain.Provenance{Company: company, Year: year, Source: string(company) + "_report.pdf"},
		},
		Score: score,
	}
}
