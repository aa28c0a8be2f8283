package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
)

const (
	DefaultHistoryTurns    = 3
	DefaultMaxContextChars = 12000
	condensedAnswerRunes   = 400
)

var templateInstructions = map[domain.TemplateKind]string{
	domain.TemplateFactual: "Answer with the single precise figure or fact asked for. " +
		"State the exact amount with its currency and unit, the company and the year, " +
		"and cite the supporting passage numbers in brackets, e.g. [2].",
	domain.TemplateComparison: "Produce a side-by-side comparison that explicitly names every company involved. " +
		"Give each company's figure with currency, unit and year, then state which is higher or better and by how much. " +
		"If a figure for one company is missing from the context, say so instead of guessing.",
	domain.TemplateTrend: "Describe how the metric developed across the years in the context, in chronological order. " +
		"List the figure for each year with currency and unit, then summarise the direction and size of the change " +
		"(absolute and, when possible, percentage).",
	domain.TemplateQualitative: "Summarise what the reports say about the topic in a few concise points, " +
		"attributing each point to its company and year. Quote figures only when the context states them.",
}

type ComposerConfig struct {
	Companies       []domain.Company
	HistoryTurns    int
	MaxContextChars int
}

type Composer struct {
	generator ports.Generator
	cfg       ComposerConfig
}

func NewComposer(generator ports.Generator, cfg ComposerConfig) *Composer {
	if len(cfg.Companies) == 0 {
		cfg.Companies = domain.DefaultCompanies()
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	return &Composer{generator: generator, cfg: cfg}
}

// Compose calls the generator exactly once, unless result is empty, in which
// case it returns the fixed insufficient-information answer without calling it.
func (c *Composer) Compose(
	ctx context.Context,
	question string,
	plan domain.QueryPlan,
	result []domain.ScoredPassage,
	conv *domain.Conversation,
) (domain.Answer, error) {
	if len(result) == 0 {
		return domain.Answer{
			Text:         domain.InsufficientInformationAnswer(c.cfg.Companies),
			Citations:    []domain.Citation{},
			Plan:         plan,
			Insufficient: true,
		}, nil
	}

	var history []domain.Turn
	if conv != nil {
		history = conv.Recent(c.cfg.HistoryTurns)
	}
	prompt, included := c.BuildPrompt(question, plan, result, history)

	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return domain.Answer{}, generateFailure(err)
	}

	citations := make([]domain.Citation, 0, len(included))
	for _, p := range included {
		citations = append(citations, domain.Citation{
			PassageID:  p.Passage.ID,
			Provenance: p.Passage.Provenance,
			Score:      p.Score,
		})
	}
	return domain.Answer{
		Text:      strings.TrimSpace(text),
		Citations: citations,
		Plan:      plan,
	}, nil
}

// BuildPrompt returns the prompt and the passages that fit into the context
// budget. The best passage is always included.
func (c *Composer) BuildPrompt(
	question string,
	plan domain.QueryPlan,
	result []domain.ScoredPassage,
	history []domain.Turn,
) (string, []domain.ScoredPassage) {
	var b strings.Builder

	names := make([]string, 0, len(c.cfg.Companies))
	for _, company := range c.cfg.Companies {
		names = append(names, string(company))
	}
	fmt.Fprintf(&b, "You are an expert financial analyst specializing in the automotive industry. "+
		"You are analyzing annual reports from %s.\n\n", strings.Join(names, ", "))
	b.WriteString("Guidelines:\n")
	b.WriteString("- Financial data appears in regular text and in tables marked [TABLE]...[/TABLE]; examine both.\n")
	b.WriteString("- Always give the exact amount, the currency and unit (millions, billions, EUR, USD), the company and the year.\n")
	b.WriteString("- Tables may abbreviate: m = million, bn = billion, € = EUR, $ = USD.\n")
	b.WriteString("- Use only the context below. If it lacks part of the answer, give what you have and name what is missing.\n\n")

	instruction := templateInstructions[plan.Template]
	if instruction == "" {
		instruction = templateInstructions[domain.TemplateFactual]
	}
	fmt.Fprintf(&b, "Task (%s): %s\n\n", plan.Template, instruction)

	b.WriteString("Context from annual reports:\n")
	included := make([]domain.ScoredPassage, 0, len(result))
	used := 0
	for i, p := range result {
		block := formatPassage(i+1, p.Passage)
		size := len([]rune(block))
		if i > 0 && used+size > c.cfg.MaxContextChars {
			break
		}
		b.WriteString(block)
		used += size
		included = append(included, p)
	}

	if len(history) > 0 {
		b.WriteString("\nEarlier in this conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", turn.Question, condense(turn.Answer, condensedAnswerRunes))
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer clearly, with exact figures when available:", strings.TrimSpace(question))
	return b.String(), included
}

func formatPassage(n int, p domain.Passage) string {
	prov := p.Provenance
	header := fmt.Sprintf("[%d] company=%s year=%d source=%s", n, prov.Company, prov.Year, prov.Source)
	if prov.Page > 0 {
		header += fmt.Sprintf(" page=%d", prov.Page)
	}
	return header + "\n" + strings.TrimSpace(p.Text) + "\n\n"
}

func condense(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func generateFailure(err error) error {
	if errors.Is(err, context.Canceled) ||
		domain.IsKind(err, domain.ErrGenerationUnavailable) ||
		domain.IsKind(err, domain.ErrGatewayTimeout) {
		return fmt.Errorf("generate answer: %w", err)
	}
	return domain.WrapError(domain.ErrGenerationUnavailable, "generate answer", err)
}
