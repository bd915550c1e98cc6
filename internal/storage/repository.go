package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"saldo/internal/core"
	"saldo/internal/store"

	_ "modernc.org/sqlite"
)

const timestampLayout = time.RFC3339Nano

// DefaultQueryTimeout bounds each statement when no timeout is configured.
const DefaultQueryTimeout = 10 * time.Second

type SQLiteRepository struct {
	db           *sql.DB
	queries      *Queries
	queryTimeout time.Duration
	now          func() time.Time
}

var (
	_ store.LedgerStore       = (*SQLiteRepository)(nil)
	_ store.MovementWriter    = (*SQLiteRepository)(nil)
	_ store.ObservationWriter = (*SQLiteRepository)(nil)
	_ store.JobStore          = (*SQLiteRepository)(nil)
	_ store.ApplicationSource = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; concurrent per-day reads still share the connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:           db,
		queries:      New(db),
		queryTimeout: DefaultQueryTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetQueryTimeout changes the per-statement timeout. Zero disables it.
func (r *SQLiteRepository) SetQueryTimeout(d time.Duration) {
	r.queryTimeout = d
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// FetchMovements implements store.MovementReader
func (r *SQLiteRepository) FetchMovements(ctx context.Context, date core.Date, kind core.SourceKind) ([]core.MovementRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.queries.ListMovements(ctx, date.String(), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	out := make([]core.MovementRecord, 0, len(rows))
	for _, row := range rows {
		m, err := movementFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("movement %d: %w", row.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// FetchMovementRange implements store.MovementRangeReader
func (r *SQLiteRepository) FetchMovementRange(ctx context.Context, rng core.DateRange, kind core.SourceKind) ([]core.MovementRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.queries.ListMovementRange(ctx, rng.Start.String(), rng.End.String(), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list movement range: %w", err)
	}
	out := make([]core.MovementRecord, 0, len(rows))
	for _, row := range rows {
		m, err := movementFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("movement %d: %w", row.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// AppendMovements inserts movements in one transaction.
func (r *SQLiteRepository) AppendMovements(ctx context.Context, ms ...core.MovementRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			return err
		}
		var app int64
		if m.ApplicationAccount {
			app = 1
		}
		err := q.InsertMovement(ctx, InsertMovementParams{
			MovementDate:       m.Date.String(),
			Amount:             m.Amount.String(),
			CategoryLabel:      m.CategoryLabel,
			SourceKind:         string(m.SourceKind),
			Ref:                sql.NullString{String: m.Ref, Valid: m.Ref != ""},
			ApplicationAccount: app,
		})
		if err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit movements: %w", err)
	}
	slog.DebugContext(ctx, "Movements saved to SQLite", "count", len(ms))
	return nil
}

// FetchBalanceRecord implements store.BalanceReader
func (r *SQLiteRepository) FetchBalanceRecord(ctx context.Context, date core.Date) (*core.DailyBalanceRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return optionalBalance(r.queries.GetBalance(ctx, date.String()))
}

func (r *SQLiteRepository) FetchLatestBalanceBefore(ctx context.Context, date core.Date) (*core.DailyBalanceRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return optionalBalance(r.queries.GetLatestBalanceBefore(ctx, date.String()))
}

func (r *SQLiteRepository) FetchBalanceRange(ctx context.Context, rng core.DateRange) ([]core.DailyBalanceRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.queries.ListBalances(ctx, rng.Start.String(), rng.End.String())
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]core.DailyBalanceRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := balanceFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", row.BalanceDate, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpsertBalanceRecord implements store.BalanceWriter. Uniqueness on
// balance_date serializes concurrent writers of the same day.
func (r *SQLiteRepository) UpsertBalanceRecord(ctx context.Context, rec core.DailyBalanceRecord, preserveCreatedAt bool) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.now()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	err := r.queries.UpsertBalance(ctx, UpsertBalanceParams{
		BalanceDate:       rec.Date.String(),
		OpeningBalance:    rec.OpeningBalance.String(),
		ClosingBalance:    rec.ClosingBalance.String(),
		Description:       rec.Description,
		Note:              rec.Note,
		CreatedAt:         created.UTC().Format(timestampLayout),
		UpdatedAt:         now.Format(timestampLayout),
		PreserveCreatedAt: preserveCreatedAt,
	})
	if err != nil {
		return fmt.Errorf("upsert daily balance: %w", err)
	}
	return nil
}

// FetchObservedBalances implements store.ObservationReader
func (r *SQLiteRepository) FetchObservedBalances(ctx context.Context, rng core.DateRange) ([]core.ObservedBalanceSnapshot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.queries.ListSnapshots(ctx, rng.Start.String(), rng.End.String())
	if err != nil {
		return nil, fmt.Errorf("list bank snapshots: %w", err)
	}
	out := make([]core.ObservedBalanceSnapshot, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseISODate(row.SnapshotDate)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", row.ID, err)
		}
		amount, err := core.ParseMoney(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", row.ID, err)
		}
		out = append(out, core.ObservedBalanceSnapshot{Date: d, BankID: row.BankID, BankName: row.BankName, Amount: amount})
	}
	return out, nil
}

func (r *SQLiteRepository) FetchBillingTotals(ctx context.Context, rng core.DateRange) ([]core.BillingTotal, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.queries.ListBillingTotals(ctx, rng.Start.String(), rng.End.String())
	if err != nil {
		return nil, fmt.Errorf("list billing totals: %w", err)
	}
	out := make([]core.BillingTotal, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseISODate(row.BillingDate)
		if err != nil {
			return nil, fmt.Errorf("billing total %d: %w", row.ID, err)
		}
		amount, err := core.ParseMoney(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("billing total %d: %w", row.ID, err)
		}
		out = append(out, core.BillingTotal{Date: d, AccountID: row.AccountID, Amount: amount, ApplicationAccount: row.ApplicationAccount != 0})
	}
	return out, nil
}

// RecordSnapshot implements store.ObservationWriter. A second snapshot for the
// same bank and date replaces the first.
func (r *SQLiteRepository) RecordSnapshot(ctx context.Context, s core.ObservedBalanceSnapshot) error {
	if err := s.Date.Validate(); err != nil {
		return err
	}
	err := r.queries.UpsertSnapshot(ctx, BankSnapshot{
		SnapshotDate: s.Date.String(),
		BankID:       s.BankID,
		BankName:     s.BankName,
		Amount:       s.Amount.String(),
	})
	if err != nil {
		return fmt.Errorf("record bank snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RecordBillingTotal(ctx context.Context, b core.BillingTotal) error {
	if err := b.Date.Validate(); err != nil {
		return err
	}
	var app int64
	if b.ApplicationAccount {
		app = 1
	}
	err := r.queries.InsertBillingTotal(ctx, BillingTotal{
		BillingDate:        b.Date.String(),
		AccountID:          b.AccountID,
		Amount:             b.Amount.String(),
		ApplicationAccount: app,
	})
	if err != nil {
		return fmt.Errorf("record billing total: %w", err)
	}
	return nil
}

// CreateJob implements store.JobStore
func (r *SQLiteRepository) CreateJob(ctx context.Context, job core.RecalcJob) error {
	now := r.now().Format(timestampLayout)
	status := job.Status
	if status == "" {
		status = core.JobPending
	}
	var anchor sql.NullString
	if job.AnchorOpening != nil {
		anchor = sql.NullString{String: *job.AnchorOpening, Valid: true}
	}
	err := r.queries.CreateJob(ctx, RecalcJob{
		ID:            job.ID,
		Kind:          string(job.Kind),
		StartDate:     job.Start,
		EndDate:       job.End,
		AnchorOpening: anchor,
		Status:        string(status),
		Error:         job.Error,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	slog.InfoContext(ctx, "Recalculation job saved", "job_id", job.ID, "kind", job.Kind)
	return nil
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*core.RecalcJob, error) {
	row, err := r.queries.GetJob(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	job := jobFromRow(row)
	return &job, nil
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id string, status core.JobStatus, errMsg string) error {
	n, err := r.queries.UpdateJobStatus(ctx, id, string(status), errMsg, r.now().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]core.RecalcJob, error) {
	rows, err := r.queries.ListJobsByStatus(ctx, string(core.JobPending))
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	out := make([]core.RecalcJob, len(rows))
	for i, row := range rows {
		out[i] = jobFromRow(row)
	}
	return out, nil
}

// ListStaleRunningJobs returns running jobs not updated since before.
func (r *SQLiteRepository) ListStaleRunningJobs(ctx context.Context, before time.Time) ([]core.RecalcJob, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.queries.ListJobsByStatus(ctx, string(core.JobRunning))
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	var out []core.RecalcJob
	for _, row := range rows {
		job := jobFromRow(row)
		if job.UpdatedAt.Before(before) {
			out = append(out, job)
		}
	}
	return out, nil
}

// RecordApplicationOpening implements store.ApplicationOpeningWriter
func (r *SQLiteRepository) RecordApplicationOpening(ctx context.Context, o core.ApplicationOpening) error {
	if err := o.Validate(); err != nil {
		return err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.queries.UpsertApplicationOpening(ctx, ApplicationOpening{
		OpeningDate: o.Date.String(),
		Amount:      o.Amount.String(),
		Note:        o.Note,
	})
	if err != nil {
		return fmt.Errorf("record application opening: %w", err)
	}
	return nil
}

// FetchEarliestApplicationOpening implements store.ApplicationOpeningReader
func (r *SQLiteRepository) FetchEarliestApplicationOpening(ctx context.Context) (*core.ApplicationOpening, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row, err := r.queries.GetEarliestApplicationOpening(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get application opening: %w", err)
	}
	d, err := core.ParseISODate(row.OpeningDate)
	if err != nil {
		return nil, fmt.Errorf("application opening %s: %w", row.OpeningDate, err)
	}
	amount, err := core.ParseMoney(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("application opening %s: %w", row.OpeningDate, err)
	}
	return &core.ApplicationOpening{Date: d, Amount: amount, Note: row.Note}, nil
}

func optionalBalance(row DailyBalance, err error) (*core.DailyBalanceRecord, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily balance: %w", err)
	}
	rec, err := balanceFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", row.BalanceDate, err)
	}
	return &rec, nil
}

func balanceFromRow(row DailyBalance) (core.DailyBalanceRecord, error) {
	d, err := core.ParseISODate(row.BalanceDate)
	if err != nil {
		return core.DailyBalanceRecord{}, err
	}
	opening, err := core.ParseMoney(row.OpeningBalance)
	if err != nil {
		return core.DailyBalanceRecord{}, err
	}
	closing, err := core.ParseMoney(row.ClosingBalance)
	if err != nil {
		return core.DailyBalanceRecord{}, err
	}
	return core.DailyBalanceRecord{
		Date:           d,
		OpeningBalance: opening,
		ClosingBalance: closing,
		Description:    row.Description,
		Note:           row.Note,
		CreatedAt:      parseTimestamp(row.CreatedAt),
		UpdatedAt:      parseTimestamp(row.UpdatedAt),
	}, nil
}

func movementFromRow(row Movement) (core.MovementRecord, error) {
	d, err := core.ParseISODate(row.MovementDate)
	if err != nil {
		return core.MovementRecord{}, err
	}
	amount, err := core.ParseMoney(row.Amount)
	if err != nil {
		return core.MovementRecord{}, err
	}
	kind, err := core.ParseSourceKind(row.SourceKind)
	if err != nil {
		return core.MovementRecord{}, err
	}
	return core.MovementRecord{
		Date:               d,
		Amount:             amount,
		CategoryLabel:      row.CategoryLabel,
		SourceKind:         kind,
		Ref:                row.Ref.String,
		ApplicationAccount: row.ApplicationAccount != 0,
	}, nil
}

func jobFromRow(row RecalcJob) core.RecalcJob {
	job := core.RecalcJob{
		ID:        row.ID,
		Kind:      core.JobKind(row.Kind),
		Start:     row.StartDate,
		End:       row.EndDate,
		Status:    core.JobStatus(row.Status),
		Error:     row.Error,
		CreatedAt: parseTimestamp(row.CreatedAt),
		UpdatedAt: parseTimestamp(row.UpdatedAt),
	}
	if row.AnchorOpening.Valid {
		a := row.AnchorOpening.String
		job.AnchorOpening = &a
	}
	return job
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
