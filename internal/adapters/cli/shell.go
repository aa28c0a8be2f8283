// Package cli implements the interactive chat shell over the report index.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
	"github.com/kirillkom/autoreport-rag/internal/core/usecase"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	answerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sourcesStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

const rule = "======================================================================"

type ShellConfig struct {
	Queries       ports.QueryService
	Stats         ports.StatsReader
	// Companies are named in the banner; empty means the defaults.
	Companies     []domain.Company
	HistoryWindow int
	In            io.Reader
	Out           io.Writer
	Logger        *slog.Logger
}

// Shell is a line-oriented chat loop. It owns exactly one session.
type Shell struct {
	queries   ports.QueryService
	stats     ports.StatsReader
	companies []domain.Company
	window    int
	session *domain.Session
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
}

func NewShell(cfg ShellConfig) *Shell {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Shell{
		queries:   cfg.Queries,
		stats:     cfg.Stats,
		companies: cfg.Companies,
		window:    cfg.HistoryWindow,
		session:   domain.NewSession(uuid.NewString(), cfg.HistoryWindow),
		in:        cfg.In,
		out:       cfg.Out,
		logger:    cfg.Logger,
	}
}

// Session returns the conversation the shell is currently using.
func (s *Shell) Session() *domain.Session { return s.session }

// Run reads questions until EOF, an exit command or ctx cancellation.
func (s *Shell) Run(ctx context.Context) error {
	s.printHeader()
	s.println(okStyle.Render("Ready! Ask me anything about " + domain.JoinCompanies(s.companies, "or") + "."))
	s.println(hintStyle.Render("Type 'examples' to see sample questions or 'help' for more info."))

	scanner := bufio.NewScanner(s.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.print("\nYou> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			s.println("")
			return nil
		}
		quit, err := s.Handle(ctx, scanner.Text())
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// Handle processes one input line and reports whether the shell should exit.
// Query errors are shown and the loop goes on, except a rejected provider key:
// the session is discarded and the error returned, ending the chat.
func (s *Shell) Handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false, nil
	case "exit", "quit", "q":
		s.session.Clear()
		s.println(hintStyle.Render("Goodbye!"))
		return true, nil
	case "clear":
		s.session.Clear()
		s.printHeader()
		s.println(okStyle.Render("Conversation history cleared"))
		return false, nil
	case "examples":
		s.printExamples()
		return false, nil
	case "help":
		s.printHelp()
		return false, nil
	case "stats":
		s.printStats(ctx)
		return false, nil
	}

	s.println(hintStyle.Render("Searching and analyzing..."))
	if err := s.ask(ctx, line, true); domain.IsKind(err, domain.ErrUnauthorized) {
		s.session.Clear()
		s.println(errorStyle.Render("Chat session closed."))
		return true, err
	}
	return false, nil
}

// AskOnce answers a single question in the shell's session.
func (s *Shell) AskOnce(ctx context.Context, question string, showSources bool) error {
	s.println(headerStyle.Render("Question: ") + question)
	return s.ask(ctx, question, showSources)
}

func (s *Shell) ask(ctx context.Context, question string, showSources bool) error {
	answer, err := s.queries.Ask(ctx, s.session, question)
	if err != nil {
		s.logger.Debug("chat_query_failed", "session_id", s.session.ID(), "error", err)
		s.println(errorStyle.Render("Error: " + UserMessage(err)))
		return err
	}

	s.println(okStyle.Render("Answer:"))
	s.println(answerStyle.Render(answer.Text))
	if showSources {
		s.println(sourcesStyle.Render(FormatSources(answer.Citations)))
	}
	return nil
}

func (s *Shell) printHeader() {
	s.println(headerStyle.Render(rule))
	s.println(headerStyle.Render("  AUTOMOTIVE ANNUAL REPORT ANALYSIS"))
	s.println(headerStyle.Render("  Query " + domain.JoinCompanies(s.companies, "and") + " Annual Reports"))
	s.println(headerStyle.Render(rule))
	s.println(hintStyle.Render("Commands:"))
	s.println(hintStyle.Render("  - Type your question and press Enter"))
	s.println(hintStyle.Render("  - 'exit', 'quit', or 'q' to close"))
	s.println(hintStyle.Render("  - 'clear' to clear conversation history"))
	s.println(hintStyle.Render("  - 'examples' to see example questions"))
	s.println(hintStyle.Render("  - 'stats' to see what is indexed"))
	s.println(hintStyle.Render("  - 'help' for more information"))
	s.println(headerStyle.Render(rule))
}

func (s *Shell) printExamples() {
	s.println(headerStyle.Render("EXAMPLE QUESTIONS"))
	group := ""
	n := 0
	for _, q := range usecase.DefaultSampleQuestions() {
		if q.Group != group {
			group = q.Group
			n = 0
			s.println("\n" + okStyle.Render(group+":"))
		}
		n++
		s.println(fmt.Sprintf("  %d. %s", n, q.Question))
	}
}

func (s *Shell) printHelp() {
	s.println(headerStyle.Render("HELP & TIPS"))
	s.println(`How to use:
  - Ask questions in natural language
  - Be specific about company names and years
  - Follow-up questions reuse the companies and years of the previous one

Types of questions you can ask:
  - Financial metrics (revenue, profit, EBITDA, etc.)
  - Comparisons between companies or years
  - Trends and growth analysis
  - Qualitative information (strategies, risks, products)

Answers are based solely on the indexed annual reports.`)
}

func (s *Shell) printStats(ctx context.Context) {
	if s.stats == nil {
		s.println(errorStyle.Render("Index statistics are not available."))
		return
	}
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		s.println(errorStyle.Render("Error: " + UserMessage(err)))
		return
	}
	s.println(FormatStats(stats))
}

func (s *Shell) println(text string) {
	_, _ = fmt.Fprintln(s.out, text)
}

func (s *Shell) print(text string) {
	_, _ = fmt.Fprint(s.out, text)
}
