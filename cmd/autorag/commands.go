package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/autoreport-rag/internal/adapters/cli"
	"github.com/kirillkom/autoreport-rag/internal/adapters/mcpserver"
	"github.com/kirillkom/autoreport-rag/internal/bootstrap"
	"github.com/kirillkom/autoreport-rag/internal/core/usecase"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/watch"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the index from REPORTS_DIR/<Company>/*",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				stats, err := app.IngestUC.Rebuild(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.FormatStats(stats))
				return nil
			})
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				shell := cli.NewShell(cli.ShellConfig{
					Queries:       app.QueryUC,
					Stats:         app.IngestUC,
					Companies:     app.Companies,
					HistoryWindow: app.Config.RAGHistoryWindow,
					In:            cmd.InOrStdin(),
					Out:           cmd.OutOrStdout(),
					Logger:        app.Logger,
				})
				return shell.Run(ctx)
			})
		},
	}
}

func askCmd() *cobra.Command {
	var noSources bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				shell := cli.NewShell(cli.ShellConfig{
					Queries:       app.QueryUC,
					Companies:     app.Companies,
					HistoryWindow: app.Config.RAGHistoryWindow,
					Out:           cmd.OutOrStdout(),
					Logger:        app.Logger,
				})
				return shell.AskOnce(ctx, question, !noSources)
			})
		},
	}
	cmd.Flags().BoolVar(&noSources, "no-sources", false, "omit the source list")
	return cmd
}

func evalCmd() *cobra.Command {
	var (
		xlsxPath      string
		jsonOut       bool
		demo          bool
		questionsPath string
		shared        bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the sample questions and summarise the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			questions := usecase.DefaultSampleQuestions()
			switch {
			case demo:
				questions = usecase.DemoConversation()
				shared = true
			case questionsPath != "":
				loaded, err := cli.LoadQuestions(questionsPath)
				if err != nil {
					return err
				}
				questions = loaded
			}

			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				out := cmd.OutOrStdout()
				evaluator := usecase.NewEvaluator(app.QueryUC, app.Config.RAGHistoryWindow)
				report, err := evaluator.Run(ctx, questions, shared)
				if err != nil {
					return fmt.Errorf("%s: %w", cli.UserMessage(err), err)
				}

				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(report); err != nil {
						return err
					}
				} else {
					for i, r := range report.Results {
						fmt.Fprintf(out, "\n[%d/%d] %s: %s\n", i+1, len(report.Results), r.Group, r.Question)
						if !r.Succeeded() {
							fmt.Fprintf(out, "Error: %s\n", r.Error)
							continue
						}
						fmt.Fprintln(out, r.Answer)
						fmt.Fprintln(out, cli.FormatSources(r.Citations))
					}
					fmt.Fprintln(out)
					fmt.Fprint(out, cli.FormatEvalSummary(report))
				}

				if xlsxPath != "" {
					if err := cli.WriteEvalWorkbook(xlsxPath, report); err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "Results written to %s\n", xlsxPath)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also export results to this .xlsx file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&demo, "demo", false, "run the follow-up demo conversation in one session")
	cmd.Flags().StringVar(&questionsPath, "questions", "", "YAML file with custom questions")
	cmd.Flags().BoolVar(&shared, "shared-session", false, "ask all questions in one conversation")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show what the index was built from",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				stats, err := app.IngestUC.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.FormatStats(stats))
				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	var skipInitial bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the index whenever a report file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				rebuild := func(ctx context.Context) error {
					_, err := app.IngestUC.Rebuild(ctx)
					return err
				}
				if !skipInitial {
					if err := rebuild(ctx); err != nil {
						app.Logger.Error("initial_ingest_failed", "error", err)
					}
				}
				watcher := watch.New(app.Config.ReportsDir, app.Config.WatchDebounce, app.Extractors.Supports, app.Logger)
				return watcher.Run(ctx, rebuild)
			})
		},
	}
	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "do not rebuild before watching")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask_reports and report_stats tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *bootstrap.App) error {
				server := mcpserver.NewServer(app.QueryUC, app.IngestUC, app.Sessions, app.Logger)
				return server.ServeStdio()
			})
		},
	}
}
