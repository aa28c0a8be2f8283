package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/autoreport-rag/internal/bootstrap"
	"github.com/kirillkom/autoreport-rag/internal/config"
	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/observability/logging"
	"github.com/kirillkom/autoreport-rag/internal/observability/metrics"
)

const rebuildTimeout = 30 * time.Minute

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New("worker", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker", logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		logger.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSReindexSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeReindex(ctx, func(handlerCtx context.Context, req domain.ReindexRequest) error {
		if !req.RequestedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(req.RequestedAt))
		}
		rebuildCtx, cancel := context.WithTimeout(handlerCtx, rebuildTimeout)
		defer cancel()

		workerMetrics.StartReindex()
		started := time.Now()
		stats, err := app.IngestUC.Rebuild(rebuildCtx)
		workerMetrics.FinishReindex(time.Since(started), stats, err)
		if err != nil {
			return err
		}
		logger.Info("report_reindex_completed",
			"reason", req.Reason,
			"documents", stats.Documents,
			"passages", stats.Passages,
		)
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
