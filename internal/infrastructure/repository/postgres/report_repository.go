package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// ReportRepository is the report catalog backed by the reports table.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// ReplaceAll swaps the whole catalog in one transaction.
func (r *ReportRepository) ReplaceAll(ctx context.Context, reports []domain.Report) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports`); err != nil {
		return fmt.Errorf("clear reports: %w", err)
	}
	for _, rep := range reports {
		_, err := tx.ExecContext(ctx, `
INSERT INTO reports (id, company, year, source, path, pages, passages, indexed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, rep.ID, string(rep.Company), rep.Year, rep.Source, rep.Path, rep.Pages, rep.Passages, rep.IndexedAt)
		if err != nil {
			return fmt.Errorf("insert report %s: %w", rep.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}

func (r *ReportRepository) List(ctx context.Context) ([]domain.Report, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, company, year, source, path, pages, passages, indexed_at
FROM reports
ORDER BY company, year, source
`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, company, year, source, path, pages, passages, indexed_at
FROM reports
WHERE id = $1
`, id)
	rep, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrReportNotFound, "get report", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return &rep, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (domain.Report, error) {
	var (
		rep     domain.Report
		company string
	)
	if err := row.Scan(&rep.ID, &company, &rep.Year, &rep.Source, &rep.Path, &rep.Pages, &rep.Passages, &rep.IndexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Report{}, err
		}
		return domain.Report{}, fmt.Errorf("scan report: %w", err)
	}
	rep.Company = domain.Company(company)
	return rep, nil
}
