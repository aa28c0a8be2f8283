package ports

import (
	"context"
	"io"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// QueryService is the inbound contract for conversational question answering.
type QueryService interface {
	Ask(ctx context.Context, session *domain.Session, question string) (*domain.Answer, error)
	Search(ctx context.Context, question string, filter domain.Filter, topK int) ([]domain.ScoredPassage, error)
}

// Indexer is the inbound contract for rebuilding the index from report files.
type Indexer interface {
	Rebuild(ctx context.Context) (domain.IndexStats, error)
}

// StatsReader reports what the current index was built from.
type StatsReader interface {
	Stats(ctx context.Context) (domain.IndexStats, error)
}

// ReportService exposes catalog statistics and report uploads.
type ReportService interface {
	StatsReader
	Upload(ctx context.Context, company, filename string, body io.Reader) (string, error)
}
