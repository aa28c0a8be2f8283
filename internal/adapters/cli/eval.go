package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/autoreport-rag/internal/core/usecase"
)

// LoadQuestions reads a YAML list of {group, question} entries.
func LoadQuestions(path string) ([]usecase.SampleQuestion, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	var questions []usecase.SampleQuestion
	if err := yaml.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("parse questions file: %w", err)
	}
	out := questions[:0]
	for _, q := range questions {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}
		if q.Group == "" {
			q.Group = "Custom"
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("questions file %s has no questions", path)
	}
	return out, nil
}

// FormatEvalSummary renders the totals printed after an evaluation run.
func FormatEvalSummary(report usecase.EvalReport) string {
	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("EVALUATION SUMMARY\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Questions asked: %d\n", len(report.Results))
	fmt.Fprintf(&b, "Successful: %d/%d\n", report.Successful, len(report.Results))
	fmt.Fprintf(&b, "Answers with data: %d/%d\n", report.WithData, len(report.Results))
	fmt.Fprintf(&b, "Average answer length: %.0f characters\n", report.AverageAnswerLength)
	for _, r := range report.Results {
		if !r.Succeeded() {
			fmt.Fprintf(&b, "Failed: %s (%s)\n", r.Question, r.Error)
		}
	}
	return b.String()
}

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

// WriteEvalWorkbook exports an evaluation run with one row per question and
// a summary sheet.
func WriteEvalWorkbook(path string, report usecase.EvalReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := []any{"Group", "Question", "Template", "Answer", "Sources", "Has data", "Error", "Seconds"}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range report.Results {
		sources := ""
		if len(r.Citations) > 0 {
			sources = FormatSources(r.Citations)
		}
		row := []any{
			r.Group,
			r.Question,
			r.Template,
			r.Answer,
			sources,
			r.HasData,
			r.Error,
			r.Duration.Seconds(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	summary := [][]any{
		{"Questions", len(report.Results)},
		{"Successful", report.Successful},
		{"With data", report.WithData},
		{"Average answer length", report.AverageAnswerLength},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
