package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/store"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "saldo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saldo.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	require.NoError(t, RunMigrations(path))
	v, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)
	assert.False(t, dirty)

	require.NoError(t, RollbackMigrations(path, 1))
	v, _, err = MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}

func TestMovementsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d := core.NewDate(2025, 1, 2)

	err := repo.AppendMovements(ctx,
		core.MovementRecord{Date: d, Amount: core.MustMoney("10.50"), CategoryLabel: "Mensalidades", SourceKind: core.Revenue, Ref: "r1"},
		core.MovementRecord{Date: d, Amount: core.MustMoney("3.00"), CategoryLabel: "Resgate", SourceKind: core.Revenue, ApplicationAccount: true},
		core.MovementRecord{Date: d, Amount: core.MustMoney("7.25"), CategoryLabel: "Limpeza", SourceKind: core.AreaExpense},
	)
	require.NoError(t, err)

	revenue, err := repo.FetchMovements(ctx, d, core.Revenue)
	require.NoError(t, err)
	require.Len(t, revenue, 2)
	assert.Equal(t, "r1", revenue[0].Ref)
	assert.Equal(t, "10.50", revenue[0].Amount.String())
	assert.True(t, revenue[1].ApplicationAccount)

	none, err := repo.FetchMovements(ctx, d.AddDays(1), core.Revenue)
	require.NoError(t, err)
	assert.Empty(t, none)

	err = repo.AppendMovements(ctx, core.MovementRecord{Date: d, SourceKind: "cash"})
	assert.ErrorIs(t, err, core.ErrInvalidSourceKind)
}

func TestMovementRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AppendMovements(ctx,
		core.MovementRecord{Date: core.NewDate(2025, 1, 3), Amount: core.MustMoney("3"), CategoryLabel: "Aplicação", SourceKind: core.AreaExpense},
		core.MovementRecord{Date: core.NewDate(2025, 1, 1), Amount: core.MustMoney("1"), CategoryLabel: "Aplicação", SourceKind: core.AreaExpense},
		core.MovementRecord{Date: core.NewDate(2025, 1, 2), Amount: core.MustMoney("2"), CategoryLabel: "Resgate", SourceKind: core.Revenue},
		core.MovementRecord{Date: core.NewDate(2025, 1, 9), Amount: core.MustMoney("9"), CategoryLabel: "Aplicação", SourceKind: core.AreaExpense},
	))

	rng, _ := core.ParseDateRange("2025-01-01", "2025-01-05")
	ms, err := repo.FetchMovementRange(ctx, rng, core.AreaExpense)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "2025-01-01", ms[0].Date.String())
	assert.Equal(t, "2025-01-03", ms[1].Date.String())
}

func TestApplicationOpenings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, err := repo.FetchEarliestApplicationOpening(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.RecordApplicationOpening(ctx, core.ApplicationOpening{Date: core.NewDate(2025, 2, 1), Amount: core.MustMoney("500")}))
	require.NoError(t, repo.RecordApplicationOpening(ctx, core.ApplicationOpening{Date: core.NewDate(2025, 1, 1), Amount: core.MustMoney("100")}))
	require.NoError(t, repo.RecordApplicationOpening(ctx, core.ApplicationOpening{Date: core.NewDate(2025, 1, 1), Amount: core.MustMoney("150.5"), Note: "extrato"}))

	got, err = repo.FetchEarliestApplicationOpening(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-01-01", got.Date.String())
	assert.Equal(t, "150.50", got.Amount.String())
	assert.Equal(t, "extrato", got.Note)
}

func TestUpsertBalancePreservesCreatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d := core.NewDate(2025, 1, 2)

	first := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return first }
	rec := core.DailyBalanceRecord{Date: d, OpeningBalance: core.MustMoney("100"), ClosingBalance: core.MustMoney("150")}
	require.NoError(t, repo.UpsertBalanceRecord(ctx, rec, true))

	later := first.Add(time.Hour)
	repo.now = func() time.Time { return later }
	rec.ClosingBalance = core.MustMoney("175.5")
	rec.CreatedAt = later
	require.NoError(t, repo.UpsertBalanceRecord(ctx, rec, true))

	got, err := repo.FetchBalanceRecord(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "175.50", got.ClosingBalance.String())
	assert.True(t, got.CreatedAt.Equal(first), "created_at %s", got.CreatedAt)
	assert.True(t, got.UpdatedAt.Equal(later))

	// Without preservation the incoming created_at wins.
	require.NoError(t, repo.UpsertBalanceRecord(ctx, rec, false))
	got, err = repo.FetchBalanceRecord(ctx, d)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(later))
}

func TestBalanceLookups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	missing, err := repo.FetchBalanceRecord(ctx, core.NewDate(2025, 1, 1))
	require.NoError(t, err)
	assert.Nil(t, missing)

	for i, closing := range []string{"10", "20", "30"} {
		require.NoError(t, repo.UpsertBalanceRecord(ctx, core.DailyBalanceRecord{
			Date:           core.NewDate(2025, 1, 1+i*2),
			ClosingBalance: core.MustMoney(closing),
		}, true))
	}

	prev, err := repo.FetchLatestBalanceBefore(ctx, core.NewDate(2025, 1, 5))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "2025-01-03", prev.Date.String())

	none, err := repo.FetchLatestBalanceBefore(ctx, core.NewDate(2025, 1, 1))
	require.NoError(t, err)
	assert.Nil(t, none)

	rng, _ := core.ParseDateRange("2025-01-02", "2025-01-05")
	recs, err := repo.FetchBalanceRange(ctx, rng)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "30.00", recs[1].ClosingBalance.String())
}

func TestObservations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d := core.NewDate(2025, 3, 10)

	require.NoError(t, repo.RecordSnapshot(ctx, core.ObservedBalanceSnapshot{Date: d, BankID: "001", BankName: "BB", Amount: core.MustMoney("10")}))
	require.NoError(t, repo.RecordSnapshot(ctx, core.ObservedBalanceSnapshot{Date: d, BankID: "001", BankName: "BB", Amount: core.MustMoney("12")}))
	require.NoError(t, repo.RecordBillingTotal(ctx, core.BillingTotal{Date: d, AccountID: "app", Amount: core.MustMoney("5"), ApplicationAccount: true}))

	rng := core.DateRange{Start: d, End: d}
	snaps, err := repo.FetchObservedBalances(ctx, rng)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "12.00", snaps[0].Amount.String())

	totals, err := repo.FetchBillingTotals(ctx, rng)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].ApplicationAccount)
}

func TestJobs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	anchor := "1000.00"

	require.NoError(t, repo.CreateJob(ctx, core.RecalcJob{ID: "j1", Kind: core.JobRecalculate, Start: "2025-01-01", End: "2025-01-31", AnchorOpening: &anchor}))
	require.NoError(t, repo.CreateJob(ctx, core.RecalcJob{ID: "j2", Kind: core.JobResync, Start: "2025-01-01"}))

	pending, err := repo.ListPendingJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, repo.UpdateJobStatus(ctx, "j1", core.JobPartial, "1 date not persisted"))
	job, err := repo.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, core.JobPartial, job.Status)
	require.NotNil(t, job.AnchorOpening)
	assert.Equal(t, "1000.00", *job.AnchorOpening)

	pending, err = repo.ListPendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "j2", pending[0].ID)

	stale, err := repo.ListStaleRunningJobs(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale, "no running jobs yet")

	repo.now = func() time.Time { return time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC) }
	require.NoError(t, repo.UpdateJobStatus(ctx, "j2", core.JobRunning, ""))
	stale, err = repo.ListStaleRunningJobs(ctx, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "j2", stale[0].ID)

	stale, err = repo.ListStaleRunningJobs(ctx, time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, stale, "recently updated jobs are still owned by a worker")

	_, err = repo.GetJob(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.ErrorIs(t, repo.UpdateJobStatus(ctx, "missing", core.JobDone, ""), store.ErrNotFound)
}

func TestRecalculationAgainstSQLite(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d1 := core.NewDate(2025, 1, 1)

	require.NoError(t, repo.AppendMovements(ctx,
		core.MovementRecord{Date: d1, Amount: core.MustMoney("500.00"), CategoryLabel: "Mensalidades", SourceKind: core.Revenue},
		core.MovementRecord{Date: d1, Amount: core.MustMoney("200.00"), CategoryLabel: "Manutenção", SourceKind: core.AreaExpense},
	))

	rng, _ := core.NewDateRange(d1, d1.AddDays(1))
	opening := core.MustMoney("1000.00")
	res, err := ledger.NewRecalculator(repo, repo, nil, nil).Recalculate(ctx, rng, &opening)
	require.NoError(t, err)
	require.Empty(t, res.Failures)

	recs, err := repo.FetchBalanceRange(ctx, rng)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1300.00", recs[0].ClosingBalance.String())
	assert.Equal(t, "1300.00", recs[1].OpeningBalance.String())
}

func TestApplicationStatementOverSQLite(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordApplicationOpening(ctx, core.ApplicationOpening{Date: core.NewDate(2025, 1, 1), Amount: core.MustMoney("1000")}))
	require.NoError(t, repo.AppendMovements(ctx,
		core.MovementRecord{Date: core.NewDate(2025, 1, 2), Amount: core.MustMoney("100"), CategoryLabel: "Aplicação", SourceKind: core.AreaExpense},
		core.MovementRecord{Date: core.NewDate(2025, 1, 3), Amount: core.MustMoney("30"), CategoryLabel: "Resgate", SourceKind: core.Revenue, Ref: "r9", ApplicationAccount: true},
		core.MovementRecord{Date: core.NewDate(2025, 1, 3), Amount: core.MustMoney("30"), CategoryLabel: "Resgate", SourceKind: core.Revenue, Ref: "r9", ApplicationAccount: true},
	))

	rng, err := core.ParseDateRange("2025-01-03", "2025-01-03")
	require.NoError(t, err)
	st, err := ledger.NewStatementBuilder(repo, nil, nil).Statement(ctx, rng)
	require.NoError(t, err)
	assert.Equal(t, "1100.00", st.OpeningBalance.String())
	assert.Equal(t, "1070.00", st.ClosingBalance.String())
	require.Len(t, st.Movements, 1)
}
