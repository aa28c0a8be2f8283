package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

var bucketReports = []byte("reports")

// Catalog keeps the report catalog in a local bbolt file for single-node
// setups without Postgres.
type Catalog struct {
	db *bbolt.DB
}

func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt catalog: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReports)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create reports bucket: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) ReplaceAll(_ context.Context, reports []domain.Report) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketReports); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("drop reports bucket: %w", err)
		}
		b, err := tx.CreateBucket(bucketReports)
		if err != nil {
			return fmt.Errorf("create reports bucket: %w", err)
		}
		for _, rep := range reports {
			data, err := json.Marshal(rep)
			if err != nil {
				return fmt.Errorf("marshal report %s: %w", rep.Source, err)
			}
			if err := b.Put([]byte(rep.ID), data); err != nil {
				return fmt.Errorf("put report %s: %w", rep.Source, err)
			}
		}
		return nil
	})
}

// List returns reports ordered by company, year and source.
func (c *Catalog) List(_ context.Context) ([]domain.Report, error) {
	var out []domain.Report
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(_, v []byte) error {
			var rep domain.Report
			if err := json.Unmarshal(v, &rep); err != nil {
				return fmt.Errorf("unmarshal report: %w", err)
			}
			out = append(out, rep)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Company != out[j].Company {
			return out[i].Company < out[j].Company
		}
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

func (c *Catalog) GetByID(_ context.Context, id string) (*domain.Report, error) {
	var rep domain.Report
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketReports).Get([]byte(id))
		if data == nil {
			return domain.WrapError(domain.ErrReportNotFound, "get report", fmt.Errorf("id=%s", id))
		}
		return json.Unmarshal(data, &rep)
	})
	if err != nil {
		return nil, err
	}
	return &rep, nil
}
