package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
)

const DefaultIngestBatchSize = 100

var fileYearPattern = regexp.MustCompile(`(?:^|[^0-9])(20\d{2})(?:[^0-9]|$)`)

type IngestConfig struct {
	ReportsDir string
	Companies  []domain.Company
	BatchSize  int
	// Gate is shared with the query use case so no query sees a half
	// written index.
	Gate       *IndexGate
}

// IngestUseCase rebuilds the whole index from the report tree
// REPORTS_DIR/<Company>/<file>. Rebuilds are serialized.
type IngestUseCase struct {
	cfg       IngestConfig
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	catalog   ports.ReportCatalog
	storage   ports.ObjectStorage
	events    ports.EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewIngestUseCase wires ingestion. catalog, storage, events and logger may
// be nil.
func NewIngestUseCase(
	cfg IngestConfig,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	catalog ports.ReportCatalog,
	storage ports.ObjectStorage,
	events ports.EventPublisher,
	logger *slog.Logger,
) *IngestUseCase {
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "./reports"
	}
	if len(cfg.Companies) == 0 {
		cfg.Companies = domain.DefaultCompanies()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIngestBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		cfg:       cfg,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		catalog:   catalog,
		storage:   storage,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

type reportFile struct {
	company domain.Company
	year    int
	path    string
	source  string
}

// Rebuild replaces the index with the passages of every supported report.
// Nothing is reset until all reports were extracted and embedded, so a
// failure leaves the previous index in place.
func (uc *IngestUseCase) Rebuild(ctx context.Context) (domain.IndexStats, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	files, skipped, err := uc.discover()
	if err != nil {
		return domain.IndexStats{}, err
	}

	indexedAt := uc.now().UTC()
	var (
		reports  []domain.Report
		passages []domain.Passage
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return domain.IndexStats{}, err
		}
		text, pages, err := uc.extractor.Extract(ctx, f.path)
		if err != nil {
			return domain.IndexStats{}, fmt.Errorf("extract %s: %w", f.source, err)
		}
		if strings.TrimSpace(text) == "" {
			uc.logger.Warn("report_empty", "source", f.source)
			skipped = append(skipped, f.source)
			continue
		}

		chunks := uc.chunker.Chunk(domain.SourceDocument{
			Company:     f.company,
			Year:        f.year,
			Source:      f.source,
			Path:        f.path,
			Text:        text,
			PageOffsets: pages,
		})
		passages = append(passages, chunks...)
		reports = append(reports, domain.Report{
			ID:        domain.ReportID(f.source),
			Company:   f.company,
			Year:      f.year,
			Source:    f.source,
			Path:      f.path,
			Pages:     len(pages),
			Passages:  len(chunks),
			IndexedAt: indexedAt,
		})
		uc.logger.Info("report_chunked", "source", f.source, "company", string(f.company), "year", f.year, "passages", len(chunks))
	}

	if len(passages) == 0 {
		return domain.IndexStats{}, domain.WrapError(domain.ErrInvalidInput, "rebuild index",
			fmt.Errorf("no report text found under %s", uc.cfg.ReportsDir))
	}

	if err := uc.embedAll(ctx, passages); err != nil {
		return domain.IndexStats{}, err
	}

	if err := uc.replaceIndex(ctx, passages); err != nil {
		return domain.IndexStats{}, err
	}

	if uc.catalog != nil {
		if err := uc.catalog.ReplaceAll(ctx, reports); err != nil {
			return domain.IndexStats{}, fmt.Errorf("replace report catalog: %w", err)
		}
	}

	stats := domain.StatsFromReports(reports)
	stats.Skipped = skipped
	if uc.events != nil {
		event := domain.IndexedEvent{Documents: stats.Documents, Passages: stats.Passages, IndexedAt: indexedAt}
		if err := uc.events.PublishIndexed(ctx, event); err != nil {
			uc.logger.Warn("index_event_publish_failed", "error", err)
		}
	}

	uc.logger.Info("index_rebuilt",
		"documents", stats.Documents,
		"passages", stats.Passages,
		"skipped", len(stats.Skipped),
	)
	return stats, nil
}

func (uc *IngestUseCase) replaceIndex(ctx context.Context, passages []domain.Passage) error {
	release := uc.cfg.Gate.write()
	defer release()

	if err := uc.index.Reset(ctx); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	for start := 0; start < len(passages); start += uc.cfg.BatchSize {
		end := min(start+uc.cfg.BatchSize, len(passages))
		if err := uc.index.Insert(ctx, passages[start:end]); err != nil {
			return fmt.Errorf("insert passages %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (uc *IngestUseCase) embedAll(ctx context.Context, passages []domain.Passage) error {
	for start := 0; start < len(passages); start += uc.cfg.BatchSize {
		end := min(start+uc.cfg.BatchSize, len(passages))
		texts := make([]string, 0, end-start)
		for _, p := range passages[start:end] {
			texts = append(texts, p.Text)
		}
		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed passages %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return domain.WrapError(domain.ErrEmbeddingUnavailable, "embed passages",
				fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors)))
		}
		for i := range vectors {
			passages[start+i].Embedding = vectors[i]
		}
	}
	return nil
}

func (uc *IngestUseCase) discover() ([]reportFile, []string, error) {
	entries, err := os.ReadDir(uc.cfg.ReportsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("read reports dir: %w", err)
	}

	var (
		files   []reportFile
		skipped []string
	)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		company, ok := uc.matchCompany(entry.Name())
		if !ok {
			uc.logger.Warn("report_dir_unknown_company", "dir", entry.Name())
			skipped = append(skipped, entry.Name()+"/")
			continue
		}

		dir := filepath.Join(uc.cfg.ReportsDir, entry.Name())
		walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			rel, _ := filepath.Rel(uc.cfg.ReportsDir, path)
			source := filepath.ToSlash(rel)
			if !uc.extractor.Supports(path) {
				skipped = append(skipped, source)
				return nil
			}
			year := yearFromFilename(d.Name())
			if year == 0 {
				uc.logger.Warn("report_year_unknown", "source", source)
			}
			files = append(files, reportFile{company: company, year: year, path: path, source: source})
			return nil
		})
		if walkErr != nil {
			return nil, nil, fmt.Errorf("walk %s: %w", dir, walkErr)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].source < files[j].source })
	return files, skipped, nil
}

func (uc *IngestUseCase) matchCompany(name string) (domain.Company, bool) {
	for _, company := range uc.cfg.Companies {
		if strings.EqualFold(string(company), name) {
			return company, true
		}
	}
	return "", false
}

func yearFromFilename(name string) int {
	m := fileYearPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

// Stats reads the report catalog; without one it can only report the
// passage count of the index.
func (uc *IngestUseCase) Stats(ctx context.Context) (domain.IndexStats, error) {
	if uc.catalog == nil {
		count, err := uc.index.Count(ctx)
		if err != nil {
			return domain.IndexStats{}, fmt.Errorf("count passages: %w", err)
		}
		return domain.IndexStats{
			Passages:  count,
			ByCompany: map[domain.Company]int{},
			ByYear:    map[int]int{},
		}, nil
	}
	reports, err := uc.catalog.List(ctx)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("list reports: %w", err)
	}
	return domain.StatsFromReports(reports), nil
}

// Upload stores a report under its company directory and asks for a reindex.
// It returns the stored path.
func (uc *IngestUseCase) Upload(ctx context.Context, company, filename string, body io.Reader) (string, error) {
	if uc.storage == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "upload report", fmt.Errorf("report storage is not configured"))
	}
	matched, ok := uc.matchCompany(strings.TrimSpace(company))
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "upload report", fmt.Errorf("unknown company %q", company))
	}
	name := sanitizeFilename(filename)
	if !uc.extractor.Supports(name) {
		return "", domain.WrapError(domain.ErrInvalidInput, "upload report", fmt.Errorf("unsupported file type %q", filepath.Ext(name)))
	}

	key := string(matched) + "/" + name
	path, err := uc.storage.Save(ctx, key, body)
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	if uc.events != nil {
		if err := uc.events.RequestReindex(ctx, "upload "+key); err != nil {
			return path, fmt.Errorf("request reindex: %w", err)
		}
	}
	return path, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "report.bin"
	}
	return base
}
