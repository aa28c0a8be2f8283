package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Company string

const (
	CompanyBMW   Company = "BMW"
	CompanyTesla Company = "Tesla"
	CompanyFord  Company = "Ford"
)

// DefaultCompanies is the company set used when none is configured.
func DefaultCompanies() []Company {
	return []Company{CompanyBMW, CompanyTesla, CompanyFord}
}

// JoinCompanies renders companies as prose, e.g. "BMW, Tesla or Ford" for
// conj "or". An empty list names the default companies.
func JoinCompanies(companies []Company, conj string) string {
	if len(companies) == 0 {
		companies = DefaultCompanies()
	}
	names := make([]string, 0, len(companies))
	for _, c := range companies {
		names = append(names, string(c))
	}
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " " + conj + " " + names[len(names)-1]
}

type Provenance struct {
	Company    Company `json:"company"`
	Year       int     `json:"year"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page,omitempty"`
}

func (p Provenance) Label() string {
	if p.Year == 0 {
		return string(p.Company)
	}
	return fmt.Sprintf("%s %d", p.Company, p.Year)
}

type Passage struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Provenance Provenance `json:"provenance"`
	Embedding  []float32  `json:"-"`
}

type ScoredPassage struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// SourceDocument is the extracted text of one report file. PageOffsets holds
// the rune offset at which each page starts, in page order.
type SourceDocument struct {
	Company     Company
	Year        int
	Source      string
	Path        string
	Text        string
	PageOffsets []int
}

func (d SourceDocument) PageAt(offset int) int {
	page := 0
	for i, start := range d.PageOffsets {
		if start > offset {
			break
		}
		page = i + 1
	}
	return page
}

var passageNamespace = uuid.MustParse("6f1c3a52-8d7e-4f0b-9a2d-1b5e7c9d3f40")

// PassageID is stable for a given source and chunk position, so rebuilding the
// index from the same reports yields the same identifiers.
func PassageID(source string, chunkIndex int) string {
	key := fmt.Sprintf("%s#%d", strings.TrimSpace(source), chunkIndex)
	return uuid.NewSHA1(passageNamespace, []byte(key)).String()
}

// ReportID identifies a report file by its source path.
func ReportID(source string) string {
	return uuid.NewSHA1(passageNamespace, []byte("report:"+strings.TrimSpace(source))).String()
}
