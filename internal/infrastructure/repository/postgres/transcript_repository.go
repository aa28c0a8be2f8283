package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// TranscriptRepository keeps an append-only audit log of answered turns.
// Conversations themselves live in memory; nothing reads them back from here
// to plan follow-ups.
type TranscriptRepository struct {
	db *sql.DB
}

func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error {
	planJSON, err := json.Marshal(turn.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	ids := turn.PassageIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal passage ids: %w", err)
	}
	createdAt := turn.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO rag_turns (id, session_id, question, answer, template, plan, passage_ids, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, turn.ID, sessionID, turn.Question, turn.Answer, string(turn.Plan.Template), planJSON, idsJSON, createdAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ListTurns returns up to limit most recent turns of a session, oldest first.
func (r *TranscriptRepository) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, question, answer, plan, passage_ids, created_at
FROM rag_turns
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Turn, 0, limit)
	for rows.Next() {
		var (
			turn    domain.Turn
			planRaw []byte
			idsRaw  []byte
		)
		if err := rows.Scan(&turn.ID, &turn.Question, &turn.Answer, &planRaw, &idsRaw, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal(planRaw, &turn.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		if err := json.Unmarshal(idsRaw, &turn.PassageIDs); err != nil {
			return nil, fmt.Errorf("unmarshal passage ids: %w", err)
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
