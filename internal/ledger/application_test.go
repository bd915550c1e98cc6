package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saldo/internal/core"
	"saldo/internal/store/memory"
)

func appRevenue(date core.Date, amount, label, ref string) core.MovementRecord {
	return core.MovementRecord{Date: date, Amount: core.MustMoney(amount), CategoryLabel: label, SourceKind: core.Revenue, Ref: ref, ApplicationAccount: true}
}

func TestApplicationStatement(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	jan := func(d int) core.Date { return core.NewDate(2025, 1, d) }

	require.NoError(t, s.RecordApplicationOpening(ctx, core.ApplicationOpening{Date: jan(1), Amount: core.MustMoney("1000.00")}))
	require.NoError(t, s.AppendMovements(ctx,
		mv(jan(5), core.AreaExpense, "200.00", "Aplicação"),
		appRevenue(jan(8), "50.00", "Resgate Aplicação", "r1"),
		appRevenue(jan(8), "50.00", "Resgate Aplicação", "r1"),
		mv(jan(10), core.AreaExpense, "300.00", "Limpeza"),
		mv(jan(12), core.BankTransfer, "100.00", "Resgate aplicação"),
		mv(jan(12), core.AreaExpense, "25.00", "Aplicação"),
		mv(jan(12), core.Revenue, "999.00", "Mensalidades"),
		mv(jan(20), core.AreaExpense, "0.00", "Aplicação"),
		mv(core.NewDate(2025, 2, 1), core.AreaExpense, "500.00", "Aplicação"),
	))

	rng, err := core.ParseDateRange("2025-01-07", "2025-01-31")
	require.NoError(t, err)
	st, err := NewStatementBuilder(s, nil, nil).Statement(ctx, rng)
	require.NoError(t, err)

	require.NotNil(t, st.BaseDate)
	assert.Equal(t, "2025-01-01", st.BaseDate.String())
	assert.Equal(t, "1200.00", st.OpeningBalance.String())
	assert.Equal(t, "1075.00", st.ClosingBalance.String())
	assert.Equal(t, "25.00", st.TotalDeposits.String())
	assert.Equal(t, "150.00", st.TotalRedemptions.String())

	require.Len(t, st.Movements, 3)
	assert.Equal(t, FlowRedemption, st.Movements[0].Flow)
	assert.Equal(t, "1150.00", st.Movements[0].BalanceAfter.String())
	assert.Equal(t, FlowDeposit, st.Movements[1].Flow)
	assert.Equal(t, core.AreaExpense, st.Movements[1].Source)
	assert.Equal(t, "1175.00", st.Movements[1].BalanceAfter.String())
	assert.Equal(t, "1075.00", st.Movements[2].BalanceAfter.String())

	require.Len(t, st.Days, 2)
	assert.Equal(t, "2025-01-08", st.Days[0].Date.String())
	assert.Equal(t, "50.00", st.Days[0].Redeemed.String())
	assert.Equal(t, "-50.00", st.Days[0].Net.String())
	assert.Equal(t, "1150.00", st.Days[0].Closing.String())
	assert.Equal(t, "25.00", st.Days[1].Deposited.String())
	assert.Equal(t, "100.00", st.Days[1].Redeemed.String())
	assert.Equal(t, "-75.00", st.Days[1].Net.String())
	assert.Equal(t, "1075.00", st.Days[1].Closing.String())
}

func TestApplicationStatementWithoutOpening(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.AppendMovements(ctx,
		mv(core.NewDate(2025, 3, 1), core.AreaExpense, "80.00", "Aplicação"),
		appRevenue(core.NewDate(2025, 3, 4), "30.00", "", ""),
	))

	rng, err := core.ParseDateRange("2025-03-02", "2025-03-05")
	require.NoError(t, err)
	st, err := NewStatementBuilder(s, nil, nil).Statement(ctx, rng)
	require.NoError(t, err)

	assert.Nil(t, st.BaseDate)
	assert.True(t, st.OpeningBalance.IsZero(), "movements before start are not read without an opening")
	require.Len(t, st.Movements, 1)
	assert.Equal(t, "Resgate aplicação", st.Movements[0].Label)
	assert.Equal(t, "-30.00", st.ClosingBalance.String())
}

func TestApplicationStatementOpeningAfterPeriod(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.RecordApplicationOpening(ctx, core.ApplicationOpening{Date: core.NewDate(2025, 6, 1), Amount: core.MustMoney("400.00")}))
	s.FailFetch(core.NewDate(2025, 1, 1), core.AreaExpense, nil)

	rng, err := core.ParseDateRange("2025-01-01", "2025-01-31")
	require.NoError(t, err)
	st, err := NewStatementBuilder(s, nil, nil).Statement(ctx, rng)
	require.NoError(t, err)

	assert.Equal(t, "400.00", st.OpeningBalance.String())
	assert.Equal(t, "400.00", st.ClosingBalance.String())
	assert.Empty(t, st.Movements)
	assert.Empty(t, st.Days)
}

func TestApplicationStatementFetchFailure(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.FailFetch(core.NewDate(2025, 1, 2), core.BankTransfer, nil)

	rng, err := core.ParseDateRange("2025-01-01", "2025-01-03")
	require.NoError(t, err)
	_, err = NewStatementBuilder(s, nil, nil).Statement(ctx, rng)
	var fetchErr *core.StoreFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "movements bank_transfer", fetchErr.Op)
	assert.ErrorIs(t, err, memory.ErrInjected)
}

func TestApplicationStatementRejectsInvertedRange(t *testing.T) {
	_, err := NewStatementBuilder(memory.New(), nil, nil).Statement(context.Background(),
		core.DateRange{Start: core.NewDate(2025, 2, 1), End: core.NewDate(2025, 1, 1)})
	var rangeErr *core.InvalidRangeError
	assert.ErrorAs(t, err, &rangeErr)
}
