package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/warden-authz/warden/internal/app"
	"github.com/warden-authz/warden/internal/authz"
	"github.com/warden-authz/warden/internal/catalog"
	"github.com/warden-authz/warden/internal/discovery"
	"github.com/warden-authz/warden/internal/identity"
	jobmetrics "github.com/warden-authz/warden/internal/jobs"
	"github.com/warden-authz/warden/internal/platform/cache"
	"github.com/warden-authz/warden/internal/platform/db"
	"github.com/warden-authz/warden/jobs"
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

	permCache := authz.NewPermissionCache(redisClient, cfg.PermissionCacheTTL)
	catalogService := catalog.NewService(catalog.NewRepository(pool), permCache, nil)
	identityService := identity.NewService(identity.NewRepository(pool), identity.BcryptHasher{}, nil)
	syncer := discovery.NewSyncer(catalogService, logger)
	metrics := jobmetrics.NewMetrics(nil)

	reconcileTask, err := jobs.NewReconcileTask(jobs.ReconcilePayload{Guard: cfg.DefaultGuard})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewCacheWarmupTask(jobs.CacheWarmupPayload{Guard: cfg.DefaultGuard})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionReconcile, Handler: jobs.NewReconcileHandler(syncer, metrics, logger)},
			{Type: jobs.TaskCacheWarmup, Handler: jobs.NewCacheWarmupHandler(identityService, catalogService, permCache, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 3 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
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
