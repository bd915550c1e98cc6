package main

import (
	"context"
	"os"
	"time"

	"saldo/internal/cli"
	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentScheduler)
	logger.Info("Starting saldo-scheduler")

	cfg := cli.LoadAndValidateConfig(logger)

	window, err := services.GetWindowStrategy(cfg.SchedulerWindow, cfg.SchedulerWindowSize)
	if err != nil {
		logger.Error("Invalid scheduler window", log.FieldError, err)
		os.Exit(1)
	}

	// The scheduler runs the engine in-process and never publishes jobs.
	res := cli.InitBackend(context.Background(), logger, cfg, false)
	defer cli.CloseBackend(logger, res)

	svc := cli.NewLedgerService(logger, cfg, res)
	scheduler := services.NewScheduler(svc, services.SchedulerConfig{
		Interval: cfg.SchedulerInterval,
		Window:   window,
		Modes:    []core.ReconciliationMode{core.BankMode, core.BillingMode},
	})

	ctx, done := cli.GracefulShutdown(logger, 2*time.Minute, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Error("Scheduler stop error", log.FieldError, err)
		}
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Scheduler running",
		"interval", cfg.SchedulerInterval,
		"window", cfg.SchedulerWindow,
		"window_size", cfg.SchedulerWindowSize)

	cli.WaitForShutdown(ctx, done)
}
