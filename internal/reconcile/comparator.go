// Package reconcile compares the computed ledger with figures reported by
// banks and by billing. It only reads.
package reconcile

import (
	"context"
	"sort"

	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/store"
)

// firstSnapshotDate is the window start when snapshot age is unbounded.
var firstSnapshotDate = core.NewDate(1, 1, 1)

type Options struct {
	// LookbackDays, when positive, ignores bank snapshots older than that
	// many days. Zero keeps a bank's last snapshot in force indefinitely.
	LookbackDays int
	// BusinessDaysOnly skips weekends, when banks publish nothing.
	BusinessDaysOnly bool
}

type Comparator struct {
	balances     store.BalanceReader
	movements    store.MovementReader
	observations store.ObservationReader
	aggregator   *ledger.Aggregator
	opts         Options
	logger       *log.Logger
}

func NewComparator(balances store.BalanceReader, movements store.MovementReader, observations store.ObservationReader, agg *ledger.Aggregator, opts Options, logger *log.Logger) *Comparator {
	if opts.LookbackDays < 0 {
		opts.LookbackDays = 0
	}
	if agg == nil {
		agg = ledger.NewAggregator(nil)
	}
	return &Comparator{
		balances:     balances,
		movements:    movements,
		observations: observations,
		aggregator:   agg,
		opts:         opts,
		logger:       logger.OrDiscard().WithComponent(log.ComponentReconcile),
	}
}

// CompareBankBalances compares the closing balance of date with the sum of
// each bank's latest snapshot on or before date.
func (c *Comparator) CompareBankBalances(ctx context.Context, date core.Date) (core.ReconciliationRow, error) {
	rows, err := c.CompareBankRange(ctx, core.DateRange{Start: date, End: date})
	if err != nil {
		return core.ReconciliationRow{}, err
	}
	if len(rows) == 0 {
		// Only possible when date is a weekend and weekends are skipped.
		return core.NewReconciliationRow(date, core.BankMode, core.Money{}, core.Money{}), nil
	}
	return rows[0], nil
}

// CompareBankRange is CompareBankBalances for every date of rng, reading each
// source once.
func (c *Comparator) CompareBankRange(ctx context.Context, rng core.DateRange) ([]core.ReconciliationRow, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	window := core.DateRange{Start: oldestSnapshot(rng.Start, c.opts.LookbackDays), End: rng.End}
	snaps, err := c.observations.FetchObservedBalances(ctx, window)
	if err != nil {
		return nil, &core.StoreFetchError{Op: "observed balances", Date: rng.Start, Err: err}
	}
	records, err := c.balances.FetchBalanceRange(ctx, rng)
	if err != nil {
		return nil, &core.StoreFetchError{Op: "balance range", Date: rng.Start, Err: err}
	}
	closing := make(map[string]core.Money, len(records))
	for _, r := range records {
		closing[r.Date.String()] = r.ClosingBalance
	}

	var rows []core.ReconciliationRow
	for _, d := range c.dates(rng) {
		banks := latestPerBank(snaps, d, c.opts.LookbackDays)
		observed := core.Money{}
		for _, b := range banks {
			observed = observed.Add(b.Amount)
		}
		computed, ok := closing[d.String()]
		row := core.NewReconciliationRow(d, core.BankMode, computed, observed)
		row.LedgerMissing = !ok
		row.Banks = banks
		c.logRow(ctx, row)
		rows = append(rows, row)
	}
	return rows, nil
}

// CompareBilling compares, per date, what billing reports with the operating
// revenue the ledger computes. The application account is excluded on both sides.
func (c *Comparator) CompareBilling(ctx context.Context, rng core.DateRange) ([]core.ReconciliationRow, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	totals, err := c.observations.FetchBillingTotals(ctx, rng)
	if err != nil {
		return nil, &core.StoreFetchError{Op: "billing totals", Date: rng.Start, Err: err}
	}
	billed := make(map[string]core.Money)
	for _, b := range totals {
		if b.ApplicationAccount {
			continue
		}
		key := b.Date.String()
		billed[key] = billed[key].Add(b.Amount)
	}

	var rows []core.ReconciliationRow
	for _, d := range c.dates(rng) {
		ms, err := c.movements.FetchMovements(ctx, d, core.Revenue)
		if err != nil {
			return nil, &core.StoreFetchError{Op: "movements revenue", Date: d, Err: err}
		}
		computed := c.aggregator.Aggregate(d, ms).RevenueTotal
		row := core.NewReconciliationRow(d, core.BillingMode, computed, billed[d.String()])
		c.logRow(ctx, row)
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Comparator) dates(rng core.DateRange) []core.Date {
	days := rng.Days()
	if !c.opts.BusinessDaysOnly {
		return days
	}
	out := days[:0]
	for _, d := range days {
		if core.IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}

func (c *Comparator) logRow(ctx context.Context, row core.ReconciliationRow) {
	if !row.Divergent {
		return
	}
	c.logger.WarnContext(ctx, "Divergence found",
		log.FieldDate, row.Date.String(), log.FieldMode, string(row.Mode),
		"computed", row.ComputedTotal.String(), "observed", row.ObservedTotal.String(),
		log.FieldDifference, row.Difference.String(), "ledger_missing", row.LedgerMissing)
}

func oldestSnapshot(d core.Date, lookback int) core.Date {
	if lookback <= 0 {
		return firstSnapshotDate
	}
	return d.AddDays(-lookback)
}

// latestPerBank picks, for every bank, the newest snapshot dated on or before
// d, no older than lookback days when lookback is positive. Result is ordered
// by bank id.
func latestPerBank(snaps []core.ObservedBalanceSnapshot, d core.Date, lookback int) []core.BankBalance {
	oldest := oldestSnapshot(d, lookback)
	latest := make(map[string]core.ObservedBalanceSnapshot)
	for _, s := range snaps {
		if s.Date.After(d.Time) || s.Date.Before(oldest.Time) {
			continue
		}
		if cur, ok := latest[s.BankID]; ok && cur.Date.After(s.Date.Time) {
			continue
		}
		latest[s.BankID] = s
	}

	out := make([]core.BankBalance, 0, len(latest))
	for _, s := range latest {
		out = append(out, core.BankBalance{BankID: s.BankID, BankName: s.BankName, AsOf: s.Date, Amount: s.Amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BankID < out[j].BankID })
	return out
}
