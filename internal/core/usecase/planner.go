package usecase

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// FollowUpPolicy decides which filter values a question inherits from the
// plan of the turn right before it.
type FollowUpPolicy string

const (
	// FollowUpPerDimension inherits each filter dimension the question does
	// not name itself.
	FollowUpPerDimension FollowUpPolicy = "per-dimension"
	// FollowUpWhole inherits the previous filter only when the question names
	// no company and no year at all.
	FollowUpWhole FollowUpPolicy = "whole"
	FollowUpNone  FollowUpPolicy = "none"
)

func ParseFollowUpPolicy(raw string) (FollowUpPolicy, error) {
	switch FollowUpPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FollowUpPerDimension:
		return FollowUpPerDimension, nil
	case FollowUpWhole:
		return FollowUpWhole, nil
	case FollowUpNone:
		return FollowUpNone, nil
	default:
		return "", fmt.Errorf("%w: unknown follow-up policy %q", domain.ErrInvalidInput, raw)
	}
}

const (
	DefaultTopK     = 8
	DefaultWideTopK = 15
)

type PlannerConfig struct {
	Companies []domain.Company
	// Aliases adds alternative spellings per company on top of the built-in ones.
	Aliases  map[domain.Company][]string
	TopK     int
	WideTopK int
	FollowUp FollowUpPolicy
}

var builtinAliases = map[domain.Company][]string{
	domain.CompanyBMW:   {"bayerische motoren werke", "bmw group"},
	domain.CompanyTesla: {"tesla motors", "tesla inc"},
	domain.CompanyFord:  {"ford motor", "ford motor company"},
}

var (
	yearPattern      = regexp.MustCompile(`\b20\d{2}\b`)
	yearRangePattern = regexp.MustCompile(`\bfrom\s+(20\d{2})\s+(?:to|until|through)\s+(20\d{2})\b`)
	betweenPattern   = regexp.MustCompile(`\bbetween\b.+\band\b`)
	fromToPattern    = regexp.MustCompile(`\bfrom\s+\S+\s+to\s+\S+`)
)

var financialKeywords = []string{
	"revenue", "revenues", "sales", "profit", "profits", "profitability", "income",
	"earnings", "ebit", "ebitda", "margin", "margins", "cash", "debt", "deliveries",
	"cost", "costs", "expenses", "dividend", "eps", "assets", "liabilities", "turnover",
	"figures", "financial", "how much", "how many",
}

var metricKeywords = []struct {
	metric   string
	keywords []string
}{
	{"revenue", []string{"revenue", "revenues", "sales", "turnover"}},
	{"profit", []string{"profit", "profits", "profitability", "income", "earnings", "ebit", "ebitda", "margin"}},
	{"growth", []string{"growth", "grew", "grow", "increase", "increased"}},
	{"performance", []string{"performance", "performed"}},
}

var (
	nextYearCues     = []string{"following year", "next year", "year after", "subsequent year"}
	previousYearCues = []string{"previous year", "prior year", "year before", "preceding year"}
	followUpCues     = []string{"what about", "how about", "and in", "same", "they", "their", "its", "it", "that", "those"}
)

type questionSignals struct {
	lower     string
	tokens    []string
	companies []domain.Company
	years     []int
	yearRange []int
	yearShift int
	financial bool
	digit     bool
	followUp  bool
}

func (s questionSignals) entityNamed() bool {
	return len(s.companies) > 0 || len(s.years) > 0
}

type templateRule struct {
	kind     domain.TemplateKind
	keywords []string
	pattern  *regexp.Regexp
	extra    func(s questionSignals) bool
}

func (r templateRule) matches(s questionSignals) bool {
	if containsAnyPhrase(s.tokens, r.keywords) {
		return true
	}
	if r.pattern != nil && r.pattern.MatchString(s.lower) {
		return true
	}
	return r.extra != nil && r.extra(s)
}

// templateRules is evaluated in order; the first match wins.
var templateRules = []templateRule{
	{
		kind: domain.TemplateComparison,
		keywords: []string{
			"compare", "compared", "comparison", "versus", "vs", "higher", "lower",
			"better", "worse", "more than", "less than", "which company",
		},
		pattern: betweenPattern,
	},
	{
		kind: domain.TemplateTrend,
		keywords: []string{
			"trend", "trends", "growth", "grew", "grow", "changed", "change",
			"over time", "over the past", "evolution", "evolved",
		},
		pattern: fromToPattern,
	},
	{
		kind: domain.TemplateQualitative,
		keywords: []string{
			"strategic", "strategy", "factors", "priorities", "product", "products",
			"why", "risk", "risks", "outlook", "development",
		},
		extra: func(s questionSignals) bool {
			return len(s.companies) > 0 && !s.financial && !s.digit
		},
	},
}

type companyMatcher struct {
	company domain.Company
	phrases []string
}

type Planner struct {
	cfg       PlannerConfig
	companies []companyMatcher
}

func NewPlanner(cfg PlannerConfig) *Planner {
	if len(cfg.Companies) == 0 {
		cfg.Companies = domain.DefaultCompanies()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.WideTopK <= 0 {
		cfg.WideTopK = DefaultWideTopK
	}
	if cfg.WideTopK < cfg.TopK {
		cfg.WideTopK = cfg.TopK
	}
	if cfg.FollowUp == "" {
		cfg.FollowUp = FollowUpPerDimension
	}

	matchers := make([]companyMatcher, 0, len(cfg.Companies))
	for _, company := range cfg.Companies {
		phrases := []string{string(company)}
		phrases = append(phrases, builtinAliases[company]...)
		phrases = append(phrases, cfg.Aliases[company]...)
		matchers = append(matchers, companyMatcher{company: company, phrases: phrases})
	}
	return &Planner{cfg: cfg, companies: matchers}
}

// Plan never fails: a question with no recognized signal yields a FACTUAL
// plan with no filter.
func (p *Planner) Plan(question string, conv *domain.Conversation) domain.QueryPlan {
	s := p.signals(question)

	plan := domain.QueryPlan{
		Template: domain.TemplateFactual,
		Filter: domain.Filter{
			Companies: s.companies,
			Years:     s.years,
		},
		Metrics: detectMetrics(s.tokens),
	}
	ruleMatched := false
	for _, rule := range templateRules {
		if rule.matches(s) {
			plan.Template = rule.kind
			ruleMatched = true
			break
		}
	}
	if len(s.yearRange) > 0 {
		plan.Filter.Years = s.yearRange
	}

	if conv != nil && p.recognized(s, plan) {
		if prev, ok := conv.Last(); ok {
			p.inherit(&plan, s, prev.Plan, ruleMatched)
		}
	}

	plan.Filter = plan.Filter.Normalized()
	plan.TopK = p.topK(plan.Template)
	return plan
}

func (p *Planner) topK(kind domain.TemplateKind) int {
	switch kind {
	case domain.TemplateComparison, domain.TemplateTrend:
		return p.cfg.WideTopK
	default:
		return p.cfg.TopK
	}
}

func (p *Planner) recognized(s questionSignals, plan domain.QueryPlan) bool {
	return s.entityNamed() || s.financial || s.followUp || s.yearShift != 0 ||
		len(plan.Metrics) > 0 || plan.Template != domain.TemplateFactual
}

func (p *Planner) inherit(plan *domain.QueryPlan, s questionSignals, prev domain.QueryPlan, ruleMatched bool) {
	switch p.cfg.FollowUp {
	case FollowUpNone:
		return
	case FollowUpWhole:
		if s.entityNamed() || prev.Filter.IsEmpty() {
			return
		}
		plan.Filter.Companies = slices.Clone(prev.Filter.Companies)
		plan.Filter.Years = shiftYears(prev.Filter.Years, s.yearShift)
		plan.Inherited = true
	default:
		if len(s.companies) == 0 && len(prev.Filter.Companies) > 0 {
			plan.Filter.Companies = slices.Clone(prev.Filter.Companies)
			plan.Inherited = true
		}
		// "How does that compare to Tesla?" compares against the previous
		// subject rather than replacing it.
		if plan.Template == domain.TemplateComparison && s.followUp && len(s.companies) == 1 && len(prev.Filter.Companies) > 0 {
			plan.Filter.Companies = append(slices.Clone(prev.Filter.Companies), s.companies...)
			plan.Inherited = true
		}
		if len(plan.Filter.Years) == 0 && len(prev.Filter.Years) > 0 {
			plan.Filter.Years = shiftYears(prev.Filter.Years, s.yearShift)
			plan.Inherited = true
		}
	}

	if !plan.Inherited {
		return
	}
	if len(plan.Metrics) == 0 {
		plan.Metrics = slices.Clone(prev.Metrics)
	}
	if !ruleMatched && prev.Template != "" {
		plan.Template = prev.Template
	}
}

func (p *Planner) signals(question string) questionSignals {
	s := questionSignals{
		lower:  strings.ToLower(question),
		tokens: splitAlphaNumLower(question),
	}

	for _, m := range p.companies {
		if containsAnyPhrase(s.tokens, m.phrases) {
			s.companies = append(s.companies, m.company)
		}
	}
	for _, raw := range yearPattern.FindAllString(s.lower, -1) {
		year, _ := strconv.Atoi(raw)
		if !slices.Contains(s.years, year) {
			s.years = append(s.years, year)
		}
	}
	if m := yearRangePattern.FindStringSubmatch(s.lower); m != nil {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		if from > to {
			from, to = to, from
		}
		if to-from <= 30 {
			for y := from; y <= to; y++ {
				s.yearRange = append(s.yearRange, y)
			}
		}
	}

	switch {
	case containsAnyPhrase(s.tokens, nextYearCues):
		s.yearShift = 1
	case containsAnyPhrase(s.tokens, previousYearCues):
		s.yearShift = -1
	}
	s.financial = containsAnyPhrase(s.tokens, financialKeywords)
	s.digit = strings.ContainsAny(question, "0123456789")
	s.followUp = containsAnyPhrase(s.tokens, followUpCues)
	return s
}

func detectMetrics(tokens []string) []string {
	var out []string
	for _, m := range metricKeywords {
		if containsAnyPhrase(tokens, m.keywords) {
			out = append(out, m.metric)
		}
	}
	return out
}

func shiftYears(years []int, shift int) []int {
	out := make([]int, 0, len(years))
	for _, y := range years {
		out = append(out, y+shift)
	}
	return out
}
