package main

import (
	"context"
	"errors"
	"os"
	"time"

	"saldo/internal/cli"
	"saldo/internal/log"
	"saldo/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting saldo-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	res := cli.InitBackend(context.Background(), logger, cfg, true)
	defer cli.CloseBackend(logger, res)
	if res.Queue == nil {
		logger.Error("Job queue unavailable, worker cannot start")
		os.Exit(1)
	}

	svc := cli.NewLedgerService(logger, cfg, res)
	w := worker.NewRecalcWorker(svc, cfg.WorkerBatchSize, cfg.WorkerStaleJobAfter)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Jobs stored while no broker was reachable are still pending.
	logger.Info("Performing startup check for pending jobs...")
	if err := w.StartupCheck(ctx); err != nil {
		logger.Error("Startup check failed", log.FieldError, err)
	}

	go func() {
		err := res.Queue.ConsumeRecalculationJobs(ctx, w.HandleJobMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
