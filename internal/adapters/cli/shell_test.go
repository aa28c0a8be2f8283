package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

type queryFake struct {
	err       error
	questions []string
	sessions  []*domain.Session
}

func (f *queryFake) Ask(_ context.Context, session *domain.Session, question string) (*domain.Answer, error) {
	f.questions = append(f.questions, question)
	f.sessions = append(f.sessions, session)
	if f.err != nil {
		return nil, f.err
	}
	_ = session.Exclusive(func(conv *domain.Conversation) error {
		conv.Append(domain.Turn{Question: question, Answer: "ok"})
		return nil
	})
	return &domain.Answer{
		Text: "BMW revenue was EUR 155.5 billion.",
		Citations: []domain.Citation{
			{PassageID: "a", Provenance: domain.Provenance{Company: domain.CompanyBMW, Year: 2023, Source: "BMW_2023.pdf"}},
		},
	}, nil
}

func (f *queryFake) Search(context.Context, string, domain.Filter, int) ([]domain.ScoredPassage, error) {
	return nil, nil
}

type statsFake struct{}

func (statsFake) Stats(context.Context) (domain.IndexStats, error) {
	return domain.IndexStats{
		Documents: 2,
		Passages:  30,
		ByCompany: map[domain.Company]int{domain.CompanyTesla: 1, domain.CompanyBMW: 1},
		ByYear:    map[int]int{2023: 2},
	}, nil
}

func runShell(t *testing.T, queries *queryFake, input string) string {
	t.Helper()
	var out bytes.Buffer
	shell := NewShell(ShellConfig{
		Queries:       queries,
		Stats:         statsFake{},
		HistoryWindow: 10,
		In:            strings.NewReader(input),
		Out:           &out,
	})
	if err := shell.Run(context.Background()); err != nil {
		t.Fatalf("run shell: %v", err)
	}
	return out.String()
}

func TestShellAnswersAndStopsOnExit(t *testing.T) {
	queries := &queryFake{}
	out := runShell(t, queries, "What was BMW revenue in 2023?\nexit\nnever asked\n")

	if len(queries.questions) != 1 {
		t.Fatalf("expected one question asked, got %v", queries.questions)
	}
	if !strings.Contains(out, "EUR 155.5 billion") {
		t.Fatalf("expected answer in output, got %s", out)
	}
	if !strings.Contains(out, "BMW Annual Report 2023") {
		t.Fatalf("expected sources in output, got %s", out)
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Fatalf("expected goodbye message")
	}
}

func TestShellCommandsDoNotReachPipeline(t *testing.T) {
	queries := &queryFake{}
	out := runShell(t, queries, "help\nexamples\nstats\n\n")

	if len(queries.questions) != 0 {
		t.Fatalf("expected no questions asked, got %v", queries.questions)
	}
	for _, want := range []string{"HELP & TIPS", "Comparison:", "Reports indexed: 2", "BMW: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
}

func TestShellBannerNamesConfiguredCompanies(t *testing.T) {
	var out bytes.Buffer
	shell := NewShell(ShellConfig{
		Queries:   &queryFake{},
		Companies: []domain.Company{"Toyota", "Volkswagen"},
		In:        strings.NewReader("q\n"),
		Out:       &out,
	})
	if err := shell.Run(context.Background()); err != nil {
		t.Fatalf("run shell: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Query Toyota and Volkswagen Annual Reports", "Ask me anything about Toyota or Volkswagen."} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output, got %s", want, got)
		}
	}
	if strings.Contains(got, "Tesla") {
		t.Fatalf("unconfigured company named in banner: %s", got)
	}
}

func TestShellClearResetsHistory(t *testing.T) {
	queries := &queryFake{}
	var out bytes.Buffer
	shell := NewShell(ShellConfig{Queries: queries, In: strings.NewReader(""), Out: &out})

	if _, err := shell.Handle(context.Background(), "Tesla revenue 2023"); err != nil {
		t.Fatalf("handle question: %v", err)
	}
	if len(shell.Session().History()) != 1 {
		t.Fatalf("expected one turn before clear")
	}
	if quit, _ := shell.Handle(context.Background(), "CLEAR"); quit {
		t.Fatalf("clear must not exit")
	}
	if len(shell.Session().History()) != 0 {
		t.Fatalf("expected empty history after clear")
	}
	if !strings.Contains(out.String(), "Conversation history cleared") {
		t.Fatalf("expected confirmation message")
	}
}

func TestShellReportsErrorsAndContinues(t *testing.T) {
	queries := &queryFake{err: domain.WrapError(domain.ErrNoDocumentsIndexed, "ask", errors.New("empty"))}
	out := runShell(t, queries, "BMW revenue\nq\n")

	if !strings.Contains(out, "Run 'autorag ingest' first") {
		t.Fatalf("expected ingest hint, got %s", out)
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Fatalf("expected shell to keep running after an error")
	}
}

func TestShellAskOnceReturnsError(t *testing.T) {
	queries := &queryFake{err: domain.WrapError(domain.ErrGenerationTimeout, "generate", context.DeadlineExceeded)}
	var out bytes.Buffer
	shell := NewShell(ShellConfig{Queries: queries, Out: &out})

	err := shell.AskOnce(context.Background(), "Ford profit 2022", true)
	if !domain.IsKind(err, domain.ErrGenerationTimeout) {
		t.Fatalf("expected generation timeout, got %v", err)
	}
	if !strings.Contains(out.String(), "took too long") {
		t.Fatalf("expected timeout message, got %s", out.String())
	}
}

func TestShellStopsOnRejectedCredentials(t *testing.T) {
	queries := &queryFake{err: domain.WrapError(domain.ErrGenerationUnavailable, "generate", domain.ErrUnauthorized)}
	var out bytes.Buffer
	shell := NewShell(ShellConfig{
		Queries: queries,
		In:      strings.NewReader("q1\nq2\nq3\n"),
		Out:     &out,
	})
	_ = shell.Session().Exclusive(func(conv *domain.Conversation) error {
		conv.Append(domain.Turn{Question: "earlier", Answer: "ok"})
		return nil
	})

	err := shell.Run(context.Background())
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if len(queries.questions) != 1 {
		t.Fatalf("expected the shell to stop after one question, got %v", queries.questions)
	}
	if len(shell.Session().History()) != 0 {
		t.Fatalf("expected session to be discarded")
	}
	if !strings.Contains(out.String(), "OPENAI_API_KEY") {
		t.Fatalf("expected credentials hint, got %s", out.String())
	}
}
