// Package cli provides common CLI initialization utilities shared by
// cmd/saldo, cmd/saldo-worker, cmd/saldo-scheduler and cmd/saldoctl.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"saldo/internal/backend"
	"saldo/internal/config"
	"saldo/internal/log"
	"saldo/internal/reconcile"
	"saldo/internal/services"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend builds the storage backend, observation source and optional
// job queue described by cfg. Exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config, withQueue bool) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	bcfg.DisableQueue = !withQueue

	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err,
			"backend", cfg.DataBackend, "observations", cfg.ObservationSource)
		os.Exit(1)
	}
	return res
}

// NewLedgerService wires the backend into the service shared by all binaries.
func NewLedgerService(logger *log.Logger, cfg *config.Config, res *backend.BackendResult) *services.LedgerService {
	deps := res.LedgerDeps(ReconcileOptions(cfg), logger)
	deps.ReconcileCacheTTL = cfg.ReconcileCacheTTL
	return services.NewLedgerService(deps)
}

// ReconcileOptions maps the reconciliation settings of cfg.
func ReconcileOptions(cfg *config.Config) reconcile.Options {
	return reconcile.Options{
		LookbackDays:     cfg.ReconcileLookbackDays,
		BusinessDaysOnly: cfg.ReconcileBusinessDaysOnly,
	}
}

// CloseBackend runs the backend cleanup, logging failures.
func CloseBackend(logger *log.Logger, res *backend.BackendResult) {
	if res == nil || res.Cleanup == nil {
		return
	}
	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", log.FieldError, err)
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
