package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/photoflow/internal/api"
	"github.com/dunamismax/photoflow/internal/auth"
	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/logger"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/ratelimit"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/dunamismax/photoflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging, cfg.App, "api")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	if cfg.Database.DSN == "" {
		log.Warn("no database configured, photos and edit jobs are kept in memory")
	}

	blobs, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	queueClient := queue.NewClient(cfg.Queue)
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Warn("queue client close error", zap.Error(err))
		}
	}()

	deps := api.Dependencies{
		Photos:   st,
		Jobs:     st,
		Blobs:    blobs,
		Queue:    queueClient,
		Verifier: verifier,
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window, "")
		if err != nil {
			return err
		}
		deps.RateLimiter = limiter
	}

	app, err := api.NewServer(log, cfg, deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.API.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
