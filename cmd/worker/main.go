package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/logiflow/logiflow/internal/app"
	"github.com/logiflow/logiflow/internal/backups"
	jobmetrics "github.com/logiflow/logiflow/internal/jobs"
	"github.com/logiflow/logiflow/internal/platform/cache"
	"github.com/logiflow/logiflow/internal/platform/db"
	"github.com/logiflow/logiflow/internal/shared"
	"github.com/logiflow/logiflow/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
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

	schedule := backups.NewScheduleStore(redisClient)
	// Runs are created by the API before enqueueing, so the worker needs no queue.
	backupsService := backups.NewService(backups.NewRepository(pool), nil, schedule, shared.NewAuditLogger(pool), logger)
	backupJob := jobs.NewBackupRunJob(backupsService, schedule, logger, jobmetrics.NewMetrics(nil))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBackupCreate, Handler: backupJob.Handle},
			{Type: jobs.TaskBackupNightly, Handler: backupJob.HandleNightly},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BackupCron, Task: jobs.NewNightlyBackupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
