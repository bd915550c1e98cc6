// Package commands implements saldoctl, the operator CLI over the ledger
// service.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"saldo/internal/backend"
	"saldo/internal/cli"
	"saldo/internal/config"
	"saldo/internal/log"
	"saldo/internal/services"
)

// Opener builds the ledger service for one command run. The returned
// close function releases the backend.
type Opener func(ctx context.Context, withQueue bool) (*services.LedgerService, func(), error)

// App carries what subcommands share.
type App struct {
	Open   Opener
	Config func() *config.Config
	Out    io.Writer
}

// NewApp returns an App backed by the environment configuration.
func NewApp(logger *log.Logger) *App {
	return &App{
		Open:   envOpener(logger),
		Config: config.Load,
		Out:    os.Stdout,
	}
}

func envOpener(logger *log.Logger) Opener {
	return func(ctx context.Context, withQueue bool) (*services.LedgerService, func(), error) {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
		bcfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			return nil, nil, err
		}
		bcfg.DisableQueue = !withQueue
		res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize backend: %w", err)
		}
		return cli.NewLedgerService(logger, cfg, res), func() { cli.CloseBackend(logger, res) }, nil
	}
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "saldoctl",
		Short: "Daily balance ledger and reconciliation",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRecalculateCommand(app),
		newResyncCommand(app),
		newReconcileCommand(app),
		newImportCommand(app),
		newBalancesCommand(app),
		newJobsCommand(app),
		newApplicationCommand(app),
		newMigrateCommand(app),
	)
	return rootCmd
}

// withService opens the service, runs fn and closes the backend.
func (a *App) withService(cmd *cobra.Command, withQueue bool, fn func(ctx context.Context, svc *services.LedgerService) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := a.Open(ctx, withQueue)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(ctx, svc)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// rangeFlags registers --start and --end on cmd.
func rangeFlags(cmd *cobra.Command, start, end *string) {
	cmd.Flags().StringVar(start, "start", "", "first date (YYYY-MM-DD, required)")
	cmd.Flags().StringVar(end, "end", "", "last date, defaults to --start")
	_ = cmd.MarkFlagRequired("start")
}
