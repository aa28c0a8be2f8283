// Package sqlite persists passages and their embeddings in a single SQLite
// file and scores them in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/vector"

	_ "modernc.org/sqlite"
)

type Index struct {
	db *sql.DB
}

func Open(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite index: %w", err)
	}
	return idx, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS passages (
		id          TEXT PRIMARY KEY,
		company     TEXT NOT NULL,
		year        INTEGER NOT NULL,
		source      TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		page        INTEGER NOT NULL DEFAULT 0,
		text        TEXT NOT NULL,
		embedding   BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_passages_company_year ON passages(company, year);
	`
	_, err := i.db.Exec(schema)
	return err
}

func (i *Index) Reset(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM passages`); err != nil {
		return fmt.Errorf("reset sqlite index: %w", err)
	}
	return nil
}

func (i *Index) Insert(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO passages (id, company, year, source, chunk_index, page, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		_, err := stmt.ExecContext(ctx,
			p.ID,
			string(p.Provenance.Company),
			p.Provenance.Year,
			p.Provenance.Source,
			p.Provenance.ChunkIndex,
			p.Provenance.Page,
			p.Text,
			encodeEmbedding(p.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert passage %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Query narrows candidates with SQL on the filter columns and ranks the rest
// by cosine similarity.
func (i *Index) Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.ScoredPassage, error) {
	if topK <= 0 {
		return nil, nil
	}

	query, args := selectQuery(filter)
	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sqlite index: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredPassage
	for rows.Next() {
		var (
			p       domain.Passage
			company string
			blob    []byte
		)
		if err := rows.Scan(&p.ID, &company, &p.Provenance.Year, &p.Provenance.Source,
			&p.Provenance.ChunkIndex, &p.Provenance.Page, &p.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.Provenance.Company = domain.Company(company)
		p.Embedding = decodeEmbedding(blob)
		out = append(out, domain.ScoredPassage{Passage: p, Score: vector.Cosine(embedding, p.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return vector.Rank(out, topK), nil
}

func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return n, nil
}

func selectQuery(filter domain.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Companies) > 0 {
		clauses = append(clauses, "company IN ("+placeholders(len(filter.Companies))+")")
		for _, c := range filter.Companies {
			args = append(args, string(c))
		}
	}
	if len(filter.Years) > 0 {
		clauses = append(clauses, "year IN ("+placeholders(len(filter.Years))+")")
		for _, y := range filter.Years {
			args = append(args, y)
		}
	}

	query := `SELECT id, company, year, source, chunk_index, page, text, embedding FROM passages`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
