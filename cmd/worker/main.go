package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/oxiliere/oxutils/internal/app"
	jobmetrics "github.com/oxiliere/oxutils/internal/jobs"
	"github.com/oxiliere/oxutils/internal/permissions"
	"github.com/oxiliere/oxutils/internal/platform/cache"
	"github.com/oxiliere/oxutils/internal/platform/db"
	"github.com/oxiliere/oxutils/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var checkCache *permissions.CheckCache
	if cfg.CheckCacheEnabled {
		checkCache = permissions.NewCheckCache(redisClient, cfg.CheckCacheTTL)
	}

	permRepo := permissions.NewRepository(pool)
	permService := permissions.NewService(permRepo, checkCache, permissions.ServiceConfig{
		Scopes:      cfg.AccessScopes,
		ContextKeys: cfg.AccessContextKeys,
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Service:   permService,
		Metrics:   jobmetrics.NewMetrics(nil),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
