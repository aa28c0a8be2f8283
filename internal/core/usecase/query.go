package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
)

type QueryUseCase struct {
	index       ports.VectorIndex
	gate        *IndexGate
	planner     *Planner
	retriever   *Retriever
	composer    *Composer
	transcripts ports.TranscriptStore
	observer    ports.QueryObserver
	logger      *slog.Logger
	now         func() time.Time
}

// NewQueryUseCase wires the query pipeline. gate, transcripts, observer and
// logger may be nil.
func NewQueryUseCase(
	index ports.VectorIndex,
	gate *IndexGate,
	planner *Planner,
	retriever *Retriever,
	composer *Composer,
	transcripts ports.TranscriptStore,
	observer ports.QueryObserver,
	logger *slog.Logger,
) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		index:       index,
		gate:        gate,
		planner:     planner,
		retriever:   retriever,
		composer:    composer,
		transcripts: transcripts,
		observer:    observer,
		logger:      logger,
		now:         time.Now,
	}
}

// Ask answers one question within session. The session's conversation is
// only extended when the whole pipeline succeeds.
func (uc *QueryUseCase) Ask(ctx context.Context, session *domain.Session, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))
	}
	if session == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("session is required"))
	}

	release := uc.gate.read()
	count, err := uc.index.Count(ctx)
	release()
	if err != nil {
		return nil, fmt.Errorf("count indexed passages: %w", err)
	}
	if count == 0 {
		return nil, domain.WrapError(domain.ErrNoDocumentsIndexed, "ask", fmt.Errorf("run ingestion first"))
	}

	started := uc.now()
	var (
		answer domain.Answer
		plan   domain.QueryPlan
		turn   domain.Turn
	)
	err = session.Exclusive(func(conv *domain.Conversation) error {
		plan = uc.planner.Plan(question, conv)

		release := uc.gate.read()
		result, err := uc.retriever.Retrieve(ctx, retrievalQuery(question, plan), plan.Filter, plan.TopK)
		release()
		if err != nil {
			return err
		}

		answer, err = uc.composer.Compose(ctx, question, plan, result, conv)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(answer.Citations))
		for _, c := range answer.Citations {
			ids = append(ids, c.PassageID)
		}
		turn = domain.Turn{
			ID:         uuid.NewString(),
			Question:   question,
			Answer:     answer.Text,
			PassageIDs: ids,
			Plan:       plan,
			Timestamp:  uc.now().UTC(),
		}
		conv.Append(turn)
		return nil
	})
	elapsed := uc.now().Sub(started).Seconds()

	if uc.observer != nil {
		if err != nil {
			uc.observer.ObserveQuery(plan, nil, err, elapsed)
		} else {
			uc.observer.ObserveQuery(plan, &answer, nil, elapsed)
		}
	}
	if err != nil {
		uc.logger.Warn("rag_query_failed",
			"session_id", session.ID(),
			"template", string(plan.Template),
			"duration_ms", elapsed*1000,
			"error", err,
		)
		return nil, err
	}

	if uc.transcripts != nil {
		if terr := uc.transcripts.AppendTurn(ctx, session.ID(), turn); terr != nil {
			uc.logger.Warn("transcript_append_failed", "session_id", session.ID(), "error", terr)
		}
	}

	uc.logger.Info("rag_query",
		"session_id", session.ID(),
		"template", string(plan.Template),
		"companies", plan.Filter.Companies,
		"years", plan.Filter.Years,
		"top_k", plan.TopK,
		"inherited", plan.Inherited,
		"citations", len(answer.Citations),
		"insufficient", answer.Insufficient,
		"duration_ms", elapsed*1000,
	)
	return &answer, nil
}

// Search runs retrieval only. A zero topK falls back to the default.
func (uc *QueryUseCase) Search(ctx context.Context, question string, filter domain.Filter, topK int) ([]domain.ScoredPassage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	release := uc.gate.read()
	defer release()
	return uc.retriever.Retrieve(ctx, question, filter.Normalized(), topK)
}

// retrievalQuery appends plan metrics the question does not name itself, so
// a follow-up like "what about 2022?" still searches for the inherited metric.
func retrievalQuery(question string, plan domain.QueryPlan) string {
	named := detectMetrics(splitAlphaNumLower(question))
	var missing []string
	for _, m := range plan.Metrics {
		if !slices.Contains(named, m) {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		return question
	}
	return question + " " + strings.Join(missing, " ")
}
