package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/services"
)

var errNothingImported = errors.New("no rows imported")

func newRecalculateCommand(app *App) *cobra.Command {
	var start, end, anchor string
	var async bool

	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Recompute daily balances from movements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var anchorOpening *string
			if cmd.Flags().Changed("anchor") {
				anchorOpening = &anchor
			}
			return app.withService(cmd, async, func(ctx context.Context, svc *services.LedgerService) error {
				if async {
					job, err := svc.EnqueueJob(ctx, core.JobRecalculate, start, end, anchorOpening)
					if err != nil {
						return err
					}
					return app.printJSON(job)
				}
				report, err := svc.RunRecalculation(ctx, start, end, anchorOpening)
				if err != nil {
					return err
				}
				if err := app.printJSON(report); err != nil {
					return err
				}
				if report.Status == core.JobFailed {
					return fmt.Errorf("recalculation failed: %d of %d dates persisted", report.UpdatedCount, report.TotalDays)
				}
				return nil
			})
		},
	}
	rangeFlags(cmd, &start, &end)
	cmd.Flags().StringVar(&anchor, "anchor", "", "opening balance of the first date")
	cmd.Flags().BoolVar(&async, "async", false, "queue a job for the worker instead of running inline")
	return cmd
}

func newResyncCommand(app *App) *cobra.Command {
	var start, end string
	var async bool

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Re-chain stored balances without reading movements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withService(cmd, async, func(ctx context.Context, svc *services.LedgerService) error {
				if async {
					job, err := svc.EnqueueJob(ctx, core.JobResync, start, end, nil)
					if err != nil {
						return err
					}
					return app.printJSON(job)
				}
				res, err := svc.Resync(ctx, start, end)
				if err != nil {
					return err
				}
				return app.printJSON(res)
			})
		},
	}
	rangeFlags(cmd, &start, &end)
	cmd.Flags().BoolVar(&async, "async", false, "queue a job for the worker instead of running inline")
	return cmd
}

func newReconcileCommand(app *App) *cobra.Command {
	var start, end, mode string
	var divergentOnly bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare computed totals with observed bank or billing figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withService(cmd, false, func(ctx context.Context, svc *services.LedgerService) error {
				rows, err := svc.RunReconciliation(ctx, start, end, mode)
				if err != nil {
					return err
				}
				if divergentOnly {
					kept := rows[:0:0]
					for _, r := range rows {
						if r.Divergent {
							kept = append(kept, r)
						}
					}
					rows = kept
				}
				if rows == nil {
					rows = []core.ReconciliationRow{}
				}
				return app.printJSON(rows)
			})
		},
	}
	rangeFlags(cmd, &start, &end)
	cmd.Flags().StringVar(&mode, "mode", string(core.BankMode), "bank or billing")
	cmd.Flags().BoolVar(&divergentOnly, "divergent", false, "print divergent days only")
	return cmd
}

func newImportCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json|->",
		Short: "Import externally supplied daily balances",
		Long:  "Reads a JSON array of {date, opening, closing, note} rows, or an object with a \"rows\" array.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readImportRows(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return app.withService(cmd, false, func(ctx context.Context, svc *services.LedgerService) error {
				report := svc.Import(ctx, rows)
				if err := app.printJSON(report); err != nil {
					return err
				}
				if report.Imported == 0 {
					return errNothingImported
				}
				return nil
			})
		},
	}
}

func readImportRows(stdin io.Reader, path string) ([]ledger.ImportRow, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}

	var rows []ledger.ImportRow
	if err := json.Unmarshal(data, &rows); err == nil {
		return rows, nil
	}
	var wrapped struct {
		Rows []ledger.ImportRow `json:"rows"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode import rows: %w", err)
	}
	return wrapped.Rows, nil
}

func newBalancesCommand(app *App) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "List stored daily balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withService(cmd, false, func(ctx context.Context, svc *services.LedgerService) error {
				recs, err := svc.ListBalances(ctx, start, end)
				if err != nil {
					return err
				}
				if recs == nil {
					recs = []core.DailyBalanceRecord{}
				}
				return app.printJSON(recs)
			})
		},
	}
	rangeFlags(cmd, &start, &end)
	return cmd
}

func newJobsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect queued recalculation jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withService(cmd, false, func(ctx context.Context, svc *services.LedgerService) error {
				job, err := svc.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return app.printJSON(job)
			})
		},
	}, &cobra.Command{
		Use:   "pending",
		Short: "List jobs that never finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withService(cmd, false, func(ctx context.Context, svc *services.LedgerService) error {
				jobs, err := svc.PendingJobs(ctx)
				if err != nil {
					return err
				}
				if jobs == nil {
					jobs = []core.RecalcJob{}
				}
				return app.printJSON(jobs)
			})
		},
	})
	return cmd
}
