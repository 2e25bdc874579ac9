package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/oxiliere/oxutils/cmd/oxutils/cli"
	"github.com/oxiliere/oxutils/internal/app"
	"github.com/oxiliere/oxutils/internal/auth"
	"github.com/oxiliere/oxutils/internal/observability"
	"github.com/oxiliere/oxutils/internal/permissions"
	"github.com/oxiliere/oxutils/internal/platform/cache"
	"github.com/oxiliere/oxutils/internal/platform/db"
	"github.com/oxiliere/oxutils/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg, os.Args[2:]))
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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
	permMiddleware := permissions.Middleware{Service: permService, Logger: logger}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	permHandler := permissions.NewHandler(logger, permService, jobClient, metrics, cfg.AccessManagerScope)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthService:        authService,
		PermissionsHandler: permHandler,
		PermissionsMW:      permMiddleware,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCommand handles "oxutils jobs <trigger-role|trigger-group|queue> [args]"
// without starting the HTTP server.
func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		slog.Default().Error("jobs: subcommand required (trigger-role, trigger-group, queue)")
		return 2
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		slog.Default().Error("jobs cli init", slog.Any("error", err))
		return 1
	}
	defer jc.Close()

	switch args[0] {
	case "trigger-role":
		if len(args) < 2 {
			slog.Default().Error("jobs: trigger-role <role> [scope]")
			return 2
		}
		scope := ""
		if len(args) > 2 {
			scope = args[2]
		}
		info, err := jc.TriggerRoleSync(ctx, args[1], scope)
		if err != nil {
			slog.Default().Error("trigger role sync", slog.Any("error", err))
			return 1
		}
		slog.Default().Info("role sync enqueued", slog.String("task_id", info.ID))
	case "trigger-group":
		if len(args) < 2 {
			slog.Default().Error("jobs: trigger-group <group>")
			return 2
		}
		info, err := jc.TriggerGroupSync(ctx, args[1])
		if err != nil {
			slog.Default().Error("trigger group sync", slog.Any("error", err))
			return 1
		}
		slog.Default().Info("group sync enqueued", slog.String("task_id", info.ID))
	case "queue":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			slog.Default().Error("inspect queue", slog.Any("error", err))
			return 1
		}
		slog.Default().Info("queue state",
			slog.String("queue", stats.Queue),
			slog.Int("pending", stats.Pending),
			slog.Int("active", stats.Active),
			slog.Int("scheduled", stats.Scheduled),
			slog.Int("retry", stats.Retry))
	default:
		slog.Default().Error("jobs: unknown subcommand", slog.String("name", args[0]))
		return 2
	}
	return 0
}
