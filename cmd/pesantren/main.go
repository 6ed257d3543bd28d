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
	"github.com/joho/godotenv"

	"github.com/pesantren-erp/pesantren-erp/internal/app"
	"github.com/pesantren-erp/pesantren-erp/internal/coop"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/journal"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/reconcile"
	"github.com/pesantren-erp/pesantren-erp/internal/inventory"
	"github.com/pesantren-erp/pesantren-erp/internal/observability"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/cache"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
	"github.com/pesantren-erp/pesantren-erp/internal/savings"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
	"github.com/pesantren-erp/pesantren-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

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
		logger.Warn("redis unavailable, balance cache disabled", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	balanceCache := reconcile.NewCache(redisClient, cfg.BalanceCacheTTL)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, auditLogger)

	reconcileRepo := reconcile.NewRepository(pool)
	reconcileEngine := reconcile.NewEngine(reconcileRepo, balanceCache, auditLogger)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger)

	coopRepo := coop.NewRepository(pool)
	coopService := coop.NewService(coopRepo, auditLogger, accountsService, balanceCache)

	journalRepo := journal.NewRepository(pool)
	journalService := journal.NewService(journalRepo, auditLogger, coopService, balanceCache, metrics)

	savingsRepo := savings.NewRepository(pool)
	savingsService := savings.NewService(savingsRepo, auditLogger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterDeps{
		Logger:    logger,
		Config:    cfg,
		Metrics:   metrics,
		Accounts:  accounts.NewHandler(logger, accountsService),
		Reconcile: reconcile.NewHandler(logger, reconcileEngine),
		Journal:   journal.NewHandler(logger, journalService),
		Savings:   savings.NewHandler(logger, savingsService),
		Coop:      coop.NewHandler(logger, coopService),
		Inventory: inventory.NewHandler(logger, inventoryService),
		Jobs:      jobs.NewHandler(inspector, logger),
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
