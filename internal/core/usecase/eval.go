package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
)

type SampleQuestion struct {
	Group    string `yaml:"group" json:"group"`
	Question string `yaml:"question" json:"question"`
}

// DefaultSampleQuestions is the evaluation set run by the eval command.
func DefaultSampleQuestions() []SampleQuestion {
	return []SampleQuestion{
		{Group: "Simple", Question: "What was BMW's total revenue in 2023?"},
		{Group: "Simple", Question: "How much revenue did Tesla generate in 2023?"},
		{Group: "Simple", Question: "What was Ford's revenue for the year 2020?"},
		{Group: "Simple", Question: "Can you provide the revenue figures for BMW in 2017?"},
		{Group: "Qualitative", Question: "What key economic factors influenced Ford's performance in 2021?"},
		{Group: "Qualitative", Question: "Which Tesla product is currently in the development stage?"},
		{Group: "Comparison", Question: "What were BMW's profit figures for 2020 and 2023?"},
		{Group: "Comparison", Question: "Between Tesla and Ford, which company achieved higher profits in 2022?"},
		{Group: "Comparison", Question: "What were Tesla's profit numbers for 2022 and 2023?"},
		{Group: "Comparison", Question: "Which company recorded better profitability in 2022 overall?"},
		{Group: "Trend & Summary", Question: "Provide a summary of revenue figures for Tesla, BMW, and Ford over the past three years."},
		{Group: "Trend & Summary", Question: "What were the growth trends for BMW's financial performance from 2020 to 2023?"},
	}
}

// DemoConversation shows follow-up resolution when run in one session.
func DemoConversation() []SampleQuestion {
	return []SampleQuestion{
		{Group: "Demo", Question: "What was BMW's revenue in 2023?"},
		{Group: "Demo", Question: "How does that compare to Tesla?"},
		{Group: "Demo", Question: "What were the main factors affecting the automotive industry in 2023?"},
	}
}

type EvalResult struct {
	Group        string            `json:"group"`
	Question     string            `json:"question"`
	Answer       string            `json:"answer"`
	Template     string            `json:"template"`
	Citations    []domain.Citation `json:"citations"`
	Insufficient bool              `json:"insufficient"`
	HasData      bool              `json:"has_data"`
	Error        string            `json:"error,omitempty"`
	Duration     time.Duration     `json:"duration"`
}

func (r EvalResult) Succeeded() bool { return r.Error == "" }

type EvalReport struct {
	Results             []EvalResult `json:"results"`
	Successful          int          `json:"successful"`
	WithData            int          `json:"with_data"`
	AverageAnswerLength float64      `json:"average_answer_length"`
}

type Evaluator struct {
	queries ports.QueryService
	window  int
	now     func() time.Time
}

func NewEvaluator(queries ports.QueryService, historyWindow int) *Evaluator {
	return &Evaluator{queries: queries, window: historyWindow, now: time.Now}
}

// Run asks every question and summarises the outcome. With shared set, all
// questions go through one session so follow-ups see earlier turns;
// otherwise each question starts from an empty conversation. Per-question
// failures are recorded; a missing index or rejected credentials stop the run.
func (e *Evaluator) Run(ctx context.Context, questions []SampleQuestion, shared bool) (EvalReport, error) {
	var report EvalReport
	session := domain.NewSession(uuid.NewString(), e.window)
	answerChars := 0

	for _, q := range questions {
		if !shared {
			session = domain.NewSession(uuid.NewString(), e.window)
		}
		started := e.now()
		answer, err := e.queries.Ask(ctx, session, q.Question)
		result := EvalResult{
			Group:    q.Group,
			Question: q.Question,
			Duration: e.now().Sub(started),
		}
		if err != nil {
			if domain.IsKind(err, domain.ErrNoDocumentsIndexed) || domain.IsKind(err, domain.ErrUnauthorized) ||
				errors.Is(err, context.Canceled) {
				return report, fmt.Errorf("evaluate %q: %w", q.Question, err)
			}
			result.Error = err.Error()
			report.Results = append(report.Results, result)
			continue
		}

		result.Answer = answer.Text
		result.Template = string(answer.Plan.Template)
		result.Citations = answer.Citations
		result.Insufficient = answer.Insufficient
		result.HasData = !answer.Insufficient &&
			!strings.Contains(strings.ToLower(answer.Text), "don't have that information")

		report.Successful++
		answerChars += len([]rune(answer.Text))
		if result.HasData {
			report.WithData++
		}
		report.Results = append(report.Results, result)
	}

	if report.Successful > 0 {
		report.AverageAnswerLength = float64(answerChars) / float64(report.Successful)
	}
	return report, nil
}
