package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/oportunidade/payhook/internal/app"
	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/db"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	if !strings.EqualFold(cfg.Dispatch.Backend, config.BackendPubSub) {
		logg.Error(context.Background(), "worker requires the pubsub backend",
			fmt.Errorf("%s=%q; the memory backend runs inside cmd/api", config.EnvDispatchBackend, cfg.Dispatch.Backend))
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "worker stopped with error", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline, err := app.Build(ctx, app.Deps{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: registry,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer func() { err = multierr.Append(err, pipeline.Close()) }()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"subscription": cfg.PubSub.WebhookSubscription,
		"workers":      cfg.Dispatch.Workers,
	}), "starting worker")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- pipeline.Dispatcher.Run(runCtx) }()
	if pipeline.Sweeper != nil {
		running++
		go func() { errCh <- pipeline.Sweeper.Run(runCtx) }()
	}

	var runErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			runErr = multierr.Append(runErr, err)
		}
		cancel()
	}
	return runErr
}
