package ledger

import (
	"context"
	"fmt"

	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/store"
)

// ResyncChange describes one record rewritten by a resync.
type ResyncChange struct {
	Date       core.Date  `json:"date"`
	OldOpening core.Money `json:"old_opening"`
	NewOpening core.Money `json:"new_opening"`
	OldClosing core.Money `json:"old_closing"`
	NewClosing core.Money `json:"new_closing"`
}

type ResyncResult struct {
	TotalRecords int                `json:"total_records"`
	Unchanged    int                `json:"unchanged"`
	Changes      []ResyncChange     `json:"changes"`
	Failures     []core.DateFailure `json:"failures"`
}

// Resyncer re-chains stored records without looking at movements. Each record
// keeps its own variation (closing minus opening) and is shifted so that its
// opening matches the previous closing.
type Resyncer struct {
	balances store.BalanceStore
	logger   *log.Logger
}

func NewResyncer(balances store.BalanceStore, logger *log.Logger) *Resyncer {
	return &Resyncer{balances: balances, logger: logger.OrDiscard().WithComponent(log.ComponentResync)}
}

// Resync walks the records in rng. The first one is the starting point and is
// left untouched. A failed write is recorded and the chain continues from the
// computed closing.
func (r *Resyncer) Resync(ctx context.Context, rng core.DateRange) (ResyncResult, error) {
	if err := rng.Validate(); err != nil {
		return ResyncResult{}, err
	}
	records, err := r.balances.FetchBalanceRange(ctx, rng)
	if err != nil {
		return ResyncResult{}, &core.StoreFetchError{Op: "balance range", Date: rng.Start, Err: err}
	}

	res := ResyncResult{TotalRecords: len(records)}
	if len(records) == 0 {
		r.logger.InfoContext(ctx, "No records to resync", log.FieldStart, rng.Start.String(), log.FieldEnd, rng.End.String())
		return res, nil
	}

	prevClosing := records[0].ClosingBalance
	res.Unchanged++
	for _, rec := range records[1:] {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, core.DateFailure{Date: rec.Date, Kind: core.FailureCancelled, Reason: err.Error(), Terminal: true})
			break
		}

		opening := prevClosing
		closing := opening.Add(rec.Variation())
		prevClosing = closing

		if opening.Equal(rec.OpeningBalance) && closing.Equal(rec.ClosingBalance) {
			res.Unchanged++
			continue
		}

		updated := rec
		updated.OpeningBalance = opening
		updated.ClosingBalance = closing
		if err := r.balances.UpsertBalanceRecord(ctx, updated, true); err != nil {
			uerr := &core.StoreUpsertError{Date: rec.Date, Err: err}
			r.logger.ErrorContext(ctx, "Resync write failed", log.FieldDate, rec.Date.String(), log.FieldError, uerr)
			res.Failures = append(res.Failures, core.DateFailure{Date: rec.Date, Kind: core.FailureUpsert, Reason: uerr.Error()})
			continue
		}
		res.Changes = append(res.Changes, ResyncChange{
			Date:       rec.Date,
			OldOpening: rec.OpeningBalance,
			NewOpening: opening,
			OldClosing: rec.ClosingBalance,
			NewClosing: closing,
		})
		r.logger.DebugContext(ctx, "Record resynced", log.NewFields().WithBalance(rec.Date.String(), opening.String(), closing.String()).ToSlice()...)
	}

	r.logger.InfoContext(ctx, "Resync finished",
		log.FieldStart, rng.Start.String(), log.FieldEnd, rng.End.String(),
		"records", res.TotalRecords, "changed", len(res.Changes), "failures", len(res.Failures))
	return res, nil
}

func (c ResyncChange) String() string {
	return fmt.Sprintf("%s: %s/%s -> %s/%s", c.Date, c.OldOpening, c.OldClosing, c.NewOpening, c.NewClosing)
}
