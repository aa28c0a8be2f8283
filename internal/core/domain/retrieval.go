package domain

import (
	"slices"
	"sort"
	"strings"
)

// Filter maps each attribute to its allowed value set. An empty set leaves
// that attribute unconstrained.
type Filter struct {
	Companies []Company `json:"companies,omitempty"`
	Years     []int     `json:"years,omitempty"`
}

func (f Filter) IsEmpty() bool {
	return len(f.Companies) == 0 && len(f.Years) == 0
}

func (f Filter) Matches(p Provenance) bool {
	if len(f.Companies) > 0 && !slices.Contains(f.Companies, p.Company) {
		return false
	}
	if len(f.Years) > 0 && !slices.Contains(f.Years, p.Year) {
		return false
	}
	return true
}

// Normalized returns a copy with duplicate values removed and years sorted.
func (f Filter) Normalized() Filter {
	out := Filter{}
	for _, c := range f.Companies {
		if !slices.Contains(out.Companies, c) {
			out.Companies = append(out.Companies, c)
		}
	}
	for _, y := range f.Years {
		if !slices.Contains(out.Years, y) {
			out.Years = append(out.Years, y)
		}
	}
	sort.Ints(out.Years)
	return out
}

type TemplateKind string

const (
	TemplateFactual     TemplateKind = "FACTUAL"
	TemplateComparison  TemplateKind = "COMPARISON"
	TemplateTrend       TemplateKind = "TREND"
	TemplateQualitative TemplateKind = "QUALITATIVE"
)

type QueryPlan struct {
	Filter    Filter       `json:"filter"`
	TopK      int          `json:"top_k"`
	Template  TemplateKind `json:"template"`
	Metrics   []string     `json:"metrics,omitempty"`
	Inherited bool         `json:"inherited,omitempty"`
}

type Citation struct {
	PassageID  string     `json:"passage_id"`
	Provenance Provenance `json:"provenance"`
	Score      float64    `json:"score"`
}

type Answer struct {
	Text         string     `json:"text"`
	Citations    []Citation `json:"citations"`
	Plan         QueryPlan  `json:"plan"`
	Insufficient bool       `json:"insufficient,omitempty"`
}

// InsufficientInformationAnswer is returned without a generation call when
// retrieval finds nothing. It names the companies that can be asked about,
// falling back to the defaults.
func InsufficientInformationAnswer(companies []Company) string {
	if len(companies) == 0 {
		companies = DefaultCompanies()
	}
	names := make([]string, 0, len(companies))
	for _, c := range companies {
		names = append(names, string(c))
	}
	return "I don't have that information in the indexed annual reports. " +
		"Try naming a company (" + strings.Join(names, ", ") + ") and a report year."
}
