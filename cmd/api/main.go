package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/oportunidade/payhook/api/controllers"
	"github.com/oportunidade/payhook/api/routes"
	"github.com/oportunidade/payhook/internal/app"
	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/db"
	"github.com/oportunidade/payhook/pkg/env"
	"github.com/oportunidade/payhook/pkg/instance"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/metrics"
	"github.com/oportunidade/payhook/pkg/migrate"
	"github.com/oportunidade/payhook/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

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
		logg.Error(ctx, "failed to build webhook pipeline", err)
		os.Exit(1)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logg.Error(context.Background(), "error closing pipeline", err)
		}
	}()

	// Background work gets its own context so HTTP intake stops before the
	// workers do.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	var background sync.WaitGroup
	inProcess := strings.EqualFold(cfg.Dispatch.Backend, config.BackendMemory)
	if inProcess {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := pipeline.Dispatcher.Run(workCtx); err != nil {
				logg.Error(workCtx, "dispatcher stopped", err)
			}
		}()
	}
	if pipeline.Sweeper != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := pipeline.Sweeper.Run(workCtx); err != nil {
				logg.Error(workCtx, "sweeper stopped", err)
			}
		}()
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"instance":    instance.GetID(),
		"backend":     cfg.Dispatch.Backend,
		"in_process":  inProcess,
		"sweeper":     pipeline.Sweeper != nil,
		"accounting":  cfg.Accounting.Enabled,
		"monotonic":   cfg.Dispatch.MonotonicStatus,
		"max_retries": cfg.Dispatch.MaxRetries,
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:     cfg,
			Logger:     logg,
			Intake:     pipeline.Intake,
			Orders:     pipeline.Orders,
			References: pipeline.References,
			Readiness: map[string]controllers.Pinger{
				metrics.ComponentDatabase: dbClient,
				metrics.ComponentRedis:    redisClient,
			},
			Health:   pipeline.Health,
			Gatherer: registry,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logg.Info(serverCtx, "shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.App.DrainTimeout)
	defer cancelDrain()
	if err := server.Shutdown(drainCtx); err != nil {
		logg.Error(serverCtx, "http shutdown incomplete", err)
	}

	stopWork()
	drained := make(chan struct{})
	go func() {
		background.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logg.Info(serverCtx, "workers drained")
	case <-drainCtx.Done():
		logg.Warn(serverCtx, "drain timeout elapsed; in-flight receipts left for the sweeper")
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
