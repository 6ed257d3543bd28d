package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/pesantren-erp/pesantren-erp/internal/app"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/reconcile"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/cache"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
	"github.com/pesantren-erp/pesantren-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	auditLogger := shared.NewAuditLogger(pool)
	balanceCache := reconcile.NewCache(redisClient, cfg.BalanceCacheTTL)
	reconcileRepo := reconcile.NewRepository(pool)
	engine := reconcile.NewEngine(reconcileRepo, balanceCache, auditLogger)

	integrityJob := jobs.NewBalanceIntegrityJob(engine, logger)
	recomputeJob := jobs.NewBalanceRecomputeJob(engine, logger)

	integrityTask, err := jobs.NewBalanceIntegrityTask(jobs.BalanceIntegrityPayload{Fix: true})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBalanceIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskBalanceRecompute, Handler: recomputeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegrityScanCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
