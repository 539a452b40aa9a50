package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/logger"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/dunamismax/photoflow/internal/telemetry"
	"github.com/dunamismax/photoflow/internal/webhook"
	"github.com/dunamismax/photoflow/internal/worker"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging, cfg.App, "worker")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Startup(); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	st, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}

	srv, err := worker.NewServer(log, cfg, worker.Dependencies{
		Photos:  st,
		Jobs:    st,
		Usage:   st,
		Blobs:   blobs,
		Webhook: webhook.NewClient(cfg.Webhook),
	})
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	log.Info("starting worker",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_active_jobs", cfg.Worker.MaxActiveJobs),
		zap.String("queue", cfg.Queue.Name),
		zap.String("redis", cfg.Queue.RedisAddr),
		zap.String("metrics_addr", cfg.Worker.MetricsAddr),
	)

	if err := srv.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	log.Info("shutting down")
	srv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsServer.Shutdown(shutdownCtx)
}
