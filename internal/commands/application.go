package commands

import (
	"context"

	"github.com/spf13/cobra"

	"saldo/internal/services"
)

func newApplicationCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "application",
		Short: "Investment account statement and openings",
	}

	var start, end string
	statement := &cobra.Command{
		Use:   "statement",
		Short: "Print deposits, redemptions and running balance over a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withService(cmd, false, func(ctx context.Context, svc *services.LedgerService) error {
				st, err := svc.ApplicationStatement(ctx, start, end)
				if err != nil {
					return err
				}
				return app.printJSON(st)
			})
		},
	}
	rangeFlags(statement, &start, &end)

	var note string
	opening := &cobra.Command{
		Use:   "opening <date> <amount>",
		Short: "Record a known investment account balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withService(cmd, false, func(ctx context.Context, svc *services.LedgerService) error {
				o, err := svc.SetApplicationOpening(ctx, args[0], args[1], note)
				if err != nil {
					return err
				}
				return app.printJSON(o)
			})
		},
	}
	opening.Flags().StringVar(&note, "note", "", "free text kept with the opening")

	cmd.AddCommand(statement, opening)
	return cmd
}
