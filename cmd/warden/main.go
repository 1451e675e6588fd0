package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warden-authz/warden/internal/app"
	"github.com/warden-authz/warden/internal/authz"
	"github.com/warden-authz/warden/internal/catalog"
	cataloghttp "github.com/warden-authz/warden/internal/catalog/http"
	"github.com/warden-authz/warden/internal/discovery"
	"github.com/warden-authz/warden/internal/identity"
	"github.com/warden-authz/warden/internal/observability"
	"github.com/warden-authz/warden/internal/platform/cache"
	"github.com/warden-authz/warden/internal/platform/db"
	"github.com/warden-authz/warden/internal/shared"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	permCache := authz.NewPermissionCache(redisClient, cfg.PermissionCacheTTL)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, permCache, auditLogger)

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, identity.BcryptHasher{}, auditLogger)

	engine := authz.NewEngine(catalogService, identityService, permCache, cfg.SuperAdminRole)
	authzMiddleware := authz.Middleware{Engine: engine, Guard: cfg.DefaultGuard, Logger: logger}

	syncer := discovery.NewSyncer(catalogService, logger)

	metrics := observability.NewMetrics()

	identityHandler := identity.NewHandler(logger, identityService, authzMiddleware)
	catalogHandler := cataloghttp.NewHandler(logger, catalogService, authzMiddleware)
	authzHandler := authz.NewHandler(logger, engine, metrics)
	discoveryHandler := discovery.NewHandler(logger, syncer, authzMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		IdentityHandler:  identityHandler,
		CatalogHandler:   catalogHandler,
		AuthzHandler:     authzHandler,
		DiscoveryHandler: discoveryHandler,
		Metrics:          metrics,
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
