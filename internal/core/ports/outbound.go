package ports

import (
	"context"
	"io"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator turns a fully assembled prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chunker splits one extracted report into overlapping passages.
type Chunker interface {
	Chunk(doc domain.SourceDocument) []domain.Passage
}

// VectorIndex stores embedded passages and answers nearest-neighbour queries.
type VectorIndex interface {
	Reset(ctx context.Context) error
	Insert(ctx context.Context, passages []domain.Passage) error
	Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.ScoredPassage, error)
	Count(ctx context.Context) (int, error)
}

// TextExtractor turns a report file into plain text. The returned offsets
// hold the rune position at which each page starts.
type TextExtractor interface {
	Supports(path string) bool
	Extract(ctx context.Context, path string) (string, []int, error)
}

// ReportCatalog records which reports back the current index.
type ReportCatalog interface {
	ReplaceAll(ctx context.Context, reports []domain.Report) error
	List(ctx context.Context) ([]domain.Report, error)
	GetByID(ctx context.Context, id string) (*domain.Report, error)
}

// TranscriptStore keeps an audit log of answered turns.
type TranscriptStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error
}

// ObjectStorage stores uploaded report files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EventPublisher announces index rebuilds and requests new ones.
type EventPublisher interface {
	PublishIndexed(ctx context.Context, event domain.IndexedEvent) error
	RequestReindex(ctx context.Context, reason string) error
}

// QueryObserver receives one notification per finished query.
type QueryObserver interface {
	ObserveQuery(plan domain.QueryPlan, answer *domain.Answer, err error, elapsedSeconds float64)
}

// TranscriptReader lists logged turns of one session, oldest first.
type TranscriptReader interface {
	ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
}
