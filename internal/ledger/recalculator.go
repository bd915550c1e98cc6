package ledger

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/store"
)

// DayResult is what the recalculator computed for one date.
type DayResult struct {
	Date      core.Date                 `json:"date"`
	Opening   core.Money                `json:"opening"`
	Closing   core.Money                `json:"closing"`
	Summary   core.DailyMovementSummary `json:"summary"`
	Anchor    bool                      `json:"anchor,omitempty"`
	Persisted bool                      `json:"persisted"`
}

// Result reports a recalculation batch. Days lists every date that was
// computed, persisted or not; Updated only those written to the store.
type Result struct {
	TotalDays int                       `json:"total_days"`
	Updated   []core.DailyBalanceRecord `json:"updated"`
	Days      []DayResult               `json:"days"`
	Failures  []core.DateFailure        `json:"failures"`
}

// Processed is the number of dates that were computed.
func (r Result) Processed() int { return len(r.Days) }

// Partial reports whether some dates were skipped or not persisted.
func (r Result) Partial() bool { return len(r.Failures) > 0 }

// Terminated reports whether the batch stopped before the end of the range.
func (r Result) Terminated() bool {
	for _, f := range r.Failures {
		if f.Terminal {
			return true
		}
	}
	return false
}

// Recalculator walks a date range in order and rewrites each day's balance
// record so that every opening equals the previous closing.
type Recalculator struct {
	movements  store.MovementReader
	balances   store.BalanceStore
	aggregator *Aggregator
	kinds      []core.SourceKind
	logger     *log.Logger
}

func NewRecalculator(movements store.MovementReader, balances store.BalanceStore, agg *Aggregator, logger *log.Logger) *Recalculator {
	if agg == nil {
		agg = NewAggregator(nil)
	}
	return &Recalculator{
		movements:  movements,
		balances:   balances,
		aggregator: agg,
		kinds:      core.AllSourceKinds(),
		logger:     logger.OrDiscard().WithComponent(log.ComponentRecalculator),
	}
}

type anchorPoint struct {
	date    core.Date
	opening core.Money
}

// foldState is threaded through the walk over the range.
type foldState struct {
	carry    core.Money
	updated  []core.DailyBalanceRecord
	days     []DayResult
	failures []core.DateFailure
	stopped  bool
}

// Recalculate recomputes every date of rng. When anchorOpening is set, rng.Start
// is the anchor and gets that opening. Only rng.Start can be an anchor, so a
// re-run of the same range always yields the same records.
//
// Only an invalid range is returned as an error. Store failures are reported
// in Result.Failures: a failed read stops the batch at that date, a failed
// write is recorded and the walk continues with the computed closing.
func (rc *Recalculator) Recalculate(ctx context.Context, rng core.DateRange, anchorOpening *core.Money) (Result, error) {
	if err := rng.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{TotalDays: rng.Len()}
	rc.logger.InfoContext(ctx, "Recalculation started",
		log.FieldStart, rng.Start.String(), log.FieldEnd, rng.End.String(), "total_days", res.TotalDays)

	first, anchor, err := rc.startingPoint(ctx, rng, anchorOpening)
	if err != nil {
		res.Failures = append(res.Failures, terminalFetch(rng.Start, err))
		rc.logger.ErrorContext(ctx, "Opening lookup failed", log.FieldDate, rng.Start.String(), log.FieldError, err)
		return res, nil
	}

	final := foldDays(rng.Days(), first, func(st foldState, d core.Date) foldState {
		if err := ctx.Err(); err != nil {
			st.failures = append(st.failures, core.DateFailure{
				Date: d, Kind: core.FailureCancelled, Reason: err.Error(), Terminal: true,
			})
			st.stopped = true
			return st
		}
		return rc.step(ctx, st, d, anchor)
	})

	res.Updated = final.updated
	res.Days = final.days
	res.Failures = final.failures

	rc.logger.InfoContext(ctx, "Recalculation finished",
		log.FieldStart, rng.Start.String(), log.FieldEnd, rng.End.String(),
		"processed", res.Processed(), "updated", len(res.Updated), "failures", len(res.Failures))
	return res, nil
}

// foldDays is a left fold over dates that stops once the state says so.
func foldDays(days []core.Date, st foldState, f func(foldState, core.Date) foldState) foldState {
	for _, d := range days {
		if st.stopped {
			break
		}
		st = f(st, d)
	}
	return st
}

// startingPoint decides where the walk begins. An explicit opening anchors
// rng.Start. Otherwise the carry is the closing of the latest record before
// the range; with nothing before it, a record already stored for rng.Start
// keeps its opening and anchors the walk. Every later day takes the carry.
func (rc *Recalculator) startingPoint(ctx context.Context, rng core.DateRange, anchorOpening *core.Money) (foldState, *anchorPoint, error) {
	if anchorOpening != nil {
		return foldState{}, &anchorPoint{date: rng.Start, opening: *anchorOpening}, nil
	}
	prev, err := rc.balances.FetchLatestBalanceBefore(ctx, rng.Start)
	if err != nil {
		return foldState{}, nil, &core.StoreFetchError{Op: "latest balance before", Date: rng.Start, Err: err}
	}
	if prev != nil {
		return foldState{carry: prev.ClosingBalance}, nil, nil
	}
	existing, err := rc.balances.FetchBalanceRecord(ctx, rng.Start)
	if err != nil {
		return foldState{}, nil, &core.StoreFetchError{Op: "balance record", Date: rng.Start, Err: err}
	}
	if existing != nil {
		return foldState{}, &anchorPoint{date: rng.Start, opening: existing.OpeningBalance}, nil
	}
	rc.logger.WarnContext(ctx, "No prior balance found, starting from zero", log.FieldDate, rng.Start.String())
	return foldState{}, nil, nil
}

func (rc *Recalculator) step(ctx context.Context, st foldState, d core.Date, anchor *anchorPoint) foldState {
	isAnchor := anchor != nil && anchor.date.SameDay(d)
	opening := st.carry
	if isAnchor {
		opening = anchor.opening
	}

	movements, existing, err := rc.loadDay(ctx, d)
	if err != nil {
		rc.logger.ErrorContext(ctx, "Stopping batch: day could not be read", log.FieldDate, d.String(), log.FieldError, err)
		st.failures = append(st.failures, terminalFetch(d, err))
		st.stopped = true
		return st
	}

	summary := rc.aggregator.Aggregate(d, movements)
	for _, w := range summary.Warnings {
		rc.logger.WarnContext(ctx, "Classification warning", log.FieldDate, d.String(), "warning", w)
	}
	closing := summary.Closing(opening)

	rec := core.DailyBalanceRecord{Date: d, OpeningBalance: opening, ClosingBalance: closing}
	if existing != nil {
		rec.Description = existing.Description
		rec.Note = existing.Note
		rec.CreatedAt = existing.CreatedAt
	}

	day := DayResult{Date: d, Opening: opening, Closing: closing, Summary: summary, Anchor: isAnchor}
	if err := rc.balances.UpsertBalanceRecord(ctx, rec, true); err != nil {
		uerr := &core.StoreUpsertError{Date: d, Err: err}
		rc.logger.ErrorContext(ctx, "Balance not persisted, continuing with computed closing",
			log.FieldDate, d.String(), log.FieldClosing, closing.String(), log.FieldError, uerr)
		st.failures = append(st.failures, core.DateFailure{Date: d, Kind: core.FailureUpsert, Reason: uerr.Error()})
	} else {
		day.Persisted = true
		st.updated = append(st.updated, rec)
		rc.logger.DebugContext(ctx, "Day recalculated", log.NewFields().WithBalance(d.String(), opening.String(), closing.String()).ToSlice()...)
	}

	st.days = append(st.days, day)
	st.carry = closing
	return st
}

// loadDay reads every movement source and the existing record for d concurrently.
func (rc *Recalculator) loadDay(ctx context.Context, d core.Date) ([]core.MovementRecord, *core.DailyBalanceRecord, error) {
	g, gctx := errgroup.WithContext(ctx)
	perKind := make([][]core.MovementRecord, len(rc.kinds))
	for i, kind := range rc.kinds {
		g.Go(func() error {
			ms, err := rc.movements.FetchMovements(gctx, d, kind)
			if err != nil {
				return &core.StoreFetchError{Op: "movements " + kind.String(), Date: d, Err: err}
			}
			perKind[i] = ms
			return nil
		})
	}
	var existing *core.DailyBalanceRecord
	g.Go(func() error {
		rec, err := rc.balances.FetchBalanceRecord(gctx, d)
		if err != nil {
			return &core.StoreFetchError{Op: "balance record", Date: d, Err: err}
		}
		existing = rec
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var all []core.MovementRecord
	for _, ms := range perKind {
		all = append(all, ms...)
	}
	return all, existing, nil
}

func terminalFetch(d core.Date, err error) core.DateFailure {
	reason := err.Error()
	var fe *core.StoreFetchError
	if !errors.As(err, &fe) {
		reason = fmt.Sprintf("fetch failed: %v", err)
	}
	return core.DateFailure{Date: d, Kind: core.FailureFetch, Reason: reason, Terminal: true}
}
