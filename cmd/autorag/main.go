package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/autoreport-rag/internal/bootstrap"
	"github.com/kirillkom/autoreport-rag/internal/config"
	"github.com/kirillkom/autoreport-rag/internal/observability/logging"
)

var logLevel string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "autorag",
		Short:         "Ask questions about automotive annual reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")

	root.AddCommand(ingestCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(evalCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(mcpCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the pipeline and runs fn with a
// context that is canceled on SIGINT or SIGTERM. Logs go to stderr so
// stdout stays clean for answers and the MCP protocol.
func withApp(fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.NewTextLogger(os.Stderr, level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "cli", logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}
