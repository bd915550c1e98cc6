package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saldo/internal/core"
	"saldo/internal/store/memory"
)

var (
	jan1 = core.NewDate(2025, 1, 1)
	jan2 = core.NewDate(2025, 1, 2)
	jan3 = core.NewDate(2025, 1, 3)
	jan4 = core.NewDate(2025, 1, 4)
)

func newRecalc(s *memory.Store) *Recalculator {
	return NewRecalculator(s, s, NewAggregator(nil), nil)
}

func seed(t *testing.T, s *memory.Store, ms ...core.MovementRecord) {
	t.Helper()
	require.NoError(t, s.AppendMovements(context.Background(), ms...))
}

func money(s string) *core.Money {
	m := core.MustMoney(s)
	return &m
}

func byDate(recs []core.DailyBalanceRecord) map[string]core.DailyBalanceRecord {
	out := make(map[string]core.DailyBalanceRecord, len(recs))
	for _, r := range recs {
		out[r.Date.String()] = r
	}
	return out
}

// assertContinuous checks opening(d) == closing(d-1) for consecutive stored days.
func assertContinuous(t *testing.T, recs []core.DailyBalanceRecord, anchor core.Date) {
	t.Helper()
	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		if cur.Date.SameDay(anchor) || !prev.Date.AddDays(1).SameDay(cur.Date) {
			continue
		}
		assert.Truef(t, cur.OpeningBalance.Equal(prev.ClosingBalance),
			"%s opens at %s but %s closed at %s", cur.Date, cur.OpeningBalance, prev.Date, prev.ClosingBalance)
	}
}

func TestRecalculateCarriesClosingForward(t *testing.T) {
	s := memory.New()
	seed(t, s,
		mv(jan1, core.Revenue, "500.00", "Mensalidades"),
		mv(jan1, core.AreaExpense, "200.00", "Manutenção"),
	)

	rng, err := core.NewDateRange(jan1, jan2)
	require.NoError(t, err)
	res, err := newRecalc(s).Recalculate(context.Background(), rng, money("1000.00"))
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalDays)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Updated, 2)

	got := byDate(s.Balances())
	assert.Equal(t, "1000.00", got["2025-01-01"].OpeningBalance.String())
	assert.Equal(t, "1300.00", got["2025-01-01"].ClosingBalance.String())
	assert.Equal(t, "1300.00", got["2025-01-02"].OpeningBalance.String())
	assert.Equal(t, "1300.00", got["2025-01-02"].ClosingBalance.String())
	assert.True(t, res.Days[0].Anchor)
}

func TestRecalculateApplicationMovements(t *testing.T) {
	s := memory.New()
	seed(t, s,
		mv(jan1, core.AreaExpense, "300.00", "Resgate Aplicação"),
		mv(jan1, core.AreaExpense, "150.00", "Transferência para Aplicação"),
	)
	rng, _ := core.NewDateRange(jan1, jan1)
	res, err := newRecalc(s).Recalculate(context.Background(), rng, money("0"))
	require.NoError(t, err)
	require.Len(t, res.Days, 1)
	assert.Equal(t, "150.00", res.Days[0].Summary.ApplicationNet.String())
	assert.Equal(t, "150.00", res.Days[0].Closing.String())
}

func TestRecalculateContinuesAfterUpsertFailure(t *testing.T) {
	s := memory.New()
	for _, d := range []core.Date{jan1, jan2, jan3, jan4} {
		seed(t, s, mv(d, core.Revenue, "100.00", "Mensalidades"))
	}
	s.FailUpsert(jan2, nil)

	rng, _ := core.NewDateRange(jan1, jan4)
	res, err := newRecalc(s).Recalculate(context.Background(), rng, money("0"))
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, "2025-01-02", f.Date.String())
	assert.Equal(t, core.FailureUpsert, f.Kind)
	assert.False(t, f.Terminal)
	assert.Len(t, res.Days, 4)
	assert.Len(t, res.Updated, 3)
	assert.False(t, res.Terminated())

	got := byDate(s.Balances())
	_, stored := got["2025-01-02"]
	assert.False(t, stored)
	assert.Equal(t, "200.00", got["2025-01-03"].OpeningBalance.String(), "carry comes from the unpersisted day")
	assert.Equal(t, "300.00", got["2025-01-03"].ClosingBalance.String())
	assert.Equal(t, "400.00", got["2025-01-04"].ClosingBalance.String())

	// Once the store recovers, a re-run fills the gap with the same values.
	s.ClearFaults()
	res, err = newRecalc(s).Recalculate(context.Background(), rng, money("0"))
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	recs := s.Balances()
	require.Len(t, recs, 4)
	assert.Equal(t, "200.00", recs[1].ClosingBalance.String())
	assertContinuous(t, recs, jan1)
}

func TestRecalculateStopsOnFetchFailure(t *testing.T) {
	s := memory.New()
	for _, d := range []core.Date{jan1, jan2, jan3} {
		seed(t, s, mv(d, core.Revenue, "10.00", "x"))
	}
	s.FailFetch(jan2, core.AreaExpense, errors.New("timeout"))

	rng, _ := core.NewDateRange(jan1, jan3)
	res, err := newRecalc(s).Recalculate(context.Background(), rng, money("0"))
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, core.FailureFetch, res.Failures[0].Kind)
	assert.True(t, res.Failures[0].Terminal)
	assert.Equal(t, "2025-01-02", res.Failures[0].Date.String())
	assert.Contains(t, res.Failures[0].Reason, "timeout")
	assert.Equal(t, 3, res.TotalDays)
	assert.Equal(t, 1, res.Processed())
	assert.True(t, res.Terminated())
	assert.Len(t, s.Balances(), 1)
}

func TestRecalculateRejectsInvalidRange(t *testing.T) {
	s := memory.New()
	_, err := newRecalc(s).Recalculate(context.Background(), core.DateRange{Start: jan3, End: jan1}, nil)

	var rangeErr *core.InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Zero(t, s.Calls(), "no store access before validation")
}

func TestRecalculateIsIdempotentAndKeepsCreatedAt(t *testing.T) {
	s := memory.New()
	tick := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})
	seed(t, s,
		mv(jan1, core.Revenue, "1234.56", "Mensalidades"),
		mv(jan2, core.AreaExpense, "34.50", "Limpeza"),
		mv(jan3, core.BankTransfer, "99.99", "Aplicação"),
	)
	rng, _ := core.NewDateRange(jan1, jan3)
	rc := newRecalc(s)

	_, err := rc.Recalculate(context.Background(), rng, money("500.00"))
	require.NoError(t, err)
	first := s.Balances()

	_, err = rc.Recalculate(context.Background(), rng, money("500.00"))
	require.NoError(t, err)
	second := s.Balances()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].OpeningBalance.String(), second[i].OpeningBalance.String())
		assert.Equal(t, first[i].ClosingBalance.String(), second[i].ClosingBalance.String())
		assert.True(t, first[i].CreatedAt.Equal(second[i].CreatedAt), "created_at must survive a re-run")
		assert.True(t, second[i].UpdatedAt.After(first[i].UpdatedAt))
	}
	assertContinuous(t, second, jan1)
}

func TestRecalculateKeepsStoredStartOpening(t *testing.T) {
	s := memory.New()
	s.PutBalance(core.DailyBalanceRecord{Date: jan1, OpeningBalance: core.MustMoney("750.00"), ClosingBalance: core.MustMoney("1.00")})
	s.PutBalance(core.DailyBalanceRecord{Date: jan2, OpeningBalance: core.MustMoney("5.00"), ClosingBalance: core.MustMoney("1.00")})
	seed(t, s,
		mv(jan1, core.Revenue, "50.00", "x"),
		mv(jan2, core.AreaExpense, "25.00", "x"),
	)

	rng, _ := core.NewDateRange(jan1, jan2)
	res, err := newRecalc(s).Recalculate(context.Background(), rng, nil)
	require.NoError(t, err)
	require.Len(t, res.Days, 2)

	got := byDate(s.Balances())
	assert.Equal(t, "750.00", got["2025-01-01"].OpeningBalance.String(), "nothing precedes the start, its opening stays")
	assert.Equal(t, "800.00", got["2025-01-01"].ClosingBalance.String())
	assert.Equal(t, "800.00", got["2025-01-02"].OpeningBalance.String(), "later stored openings are recomputed")
	assert.Equal(t, "775.00", got["2025-01-02"].ClosingBalance.String())
	assert.True(t, res.Days[0].Anchor)
	assert.False(t, res.Days[1].Anchor)
}

func TestRecalculateRerunAfterPartialRangeIsStable(t *testing.T) {
	s := memory.New()
	seed(t, s,
		mv(jan1, core.Revenue, "100.00", "Mensalidades"),
		mv(jan2, core.Revenue, "50.00", "Mensalidades"),
		mv(jan3, core.Revenue, "10.00", "Mensalidades"),
	)
	rc := newRecalc(s)
	ctx := context.Background()

	// An earlier run over the last day alone stores it from a zero opening.
	only3, _ := core.NewDateRange(jan3, jan3)
	_, err := rc.Recalculate(ctx, only3, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.00", byDate(s.Balances())["2025-01-03"].ClosingBalance.String())

	full, _ := core.NewDateRange(jan1, jan3)
	_, err = rc.Recalculate(ctx, full, nil)
	require.NoError(t, err)
	first := s.Balances()

	_, err = rc.Recalculate(ctx, full, nil)
	require.NoError(t, err)
	second := s.Balances()

	got := byDate(second)
	assert.Equal(t, "150.00", got["2025-01-03"].OpeningBalance.String())
	assert.Equal(t, "160.00", got["2025-01-03"].ClosingBalance.String())
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].OpeningBalance.String(), second[i].OpeningBalance.String())
		assert.Equal(t, first[i].ClosingBalance.String(), second[i].ClosingBalance.String())
	}
	assertContinuous(t, second, jan1)
}

func TestRecalculateStartsFromLatestPriorClosing(t *testing.T) {
	s := memory.New()
	dec31 := core.NewDate(2024, 12, 31)
	s.PutBalance(core.DailyBalanceRecord{Date: dec31, OpeningBalance: core.MustMoney("0"), ClosingBalance: core.MustMoney("800.00")})
	seed(t, s, mv(jan2, core.Revenue, "100.00", "x"))

	rng, _ := core.NewDateRange(jan2, jan3)
	_, err := newRecalc(s).Recalculate(context.Background(), rng, nil)
	require.NoError(t, err)

	got := byDate(s.Balances())
	assert.Equal(t, "800.00", got["2025-01-02"].OpeningBalance.String())
	assert.Equal(t, "900.00", got["2025-01-03"].ClosingBalance.String())
}

func TestRecalculateStoredValuesHaveTwoDecimals(t *testing.T) {
	s := memory.New()
	for i, d := range []core.Date{jan1, jan2, jan3, jan4} {
		seed(t, s,
			mv(d, core.Revenue, "10.005", "x"),
			mv(d, core.AreaExpense, "3.333", "y"),
			mv(d, core.BankTransfer, "0.015", "Resgate aplicação"),
		)
		if i%2 == 0 {
			seed(t, s, mv(d, core.AreaExpense, "0.004", "z"))
		}
	}
	rng, _ := core.NewDateRange(jan1, jan4)
	_, err := newRecalc(s).Recalculate(context.Background(), rng, money("0.1"))
	require.NoError(t, err)

	re := regexp.MustCompile(`^-?\d+\.\d{2}$`)
	for _, r := range s.Balances() {
		assert.Regexp(t, re, r.OpeningBalance.String())
		assert.Regexp(t, re, r.ClosingBalance.String())
	}
	assertContinuous(t, s.Balances(), jan1)
}

func TestRecalculateStopsWhenCancelled(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rng, _ := core.NewDateRange(jan1, jan3)
	res, err := newRecalc(s).Recalculate(ctx, rng, money("0"))
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, core.FailureCancelled, res.Failures[0].Kind)
	assert.True(t, res.Failures[0].Terminal)
	assert.Empty(t, res.Days)
}
