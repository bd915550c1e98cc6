package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"saldo/internal/cache"
	"saldo/internal/cli"
	apphttp "saldo/internal/http"
	"saldo/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentHTTP)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg, true)
	defer cli.CloseBackend(logger, res)

	svc := cli.NewLedgerService(logger, cfg, res)

	caches := cache.NewManager(logger)
	caches.Register(svc.ReconcileCache())
	caches.StartCleanup(10 * time.Minute)

	opts := apphttp.Options{
		Ready:              res.Ready,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}
	if res.Queue != nil {
		opts.QueueHealthy = res.Queue.Healthy
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, opts)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
	})

	logger.Info("Starting saldo server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"observations", cfg.ObservationSource,
		"queue", res.Queue != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cli.CloseBackend(logger, res)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
