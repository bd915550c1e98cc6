package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const insertMovement = `INSERT INTO movements (movement_date, amount, category_label, source_kind, ref, application_account)
VALUES (?, ?, ?, ?, ?, ?)`

type InsertMovementParams struct {
	MovementDate       string
	Amount             string
	CategoryLabel      string
	SourceKind         string
	Ref                sql.NullString
	ApplicationAccount int64
}

func (q *Queries) InsertMovement(ctx context.Context, arg InsertMovementParams) error {
	_, err := q.db.ExecContext(ctx, insertMovement,
		arg.MovementDate, arg.Amount, arg.CategoryLabel, arg.SourceKind, arg.Ref, arg.ApplicationAccount)
	return err
}

const listMovements = `SELECT id, movement_date, amount, category_label, source_kind, ref, application_account
FROM movements
WHERE movement_date = ? AND source_kind = ?
ORDER BY id`

func (q *Queries) ListMovements(ctx context.Context, date, kind string) ([]Movement, error) {
	rows, err := q.db.QueryContext(ctx, listMovements, date, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Movement
	for rows.Next() {
		var i Movement
		if err := rows.Scan(&i.ID, &i.MovementDate, &i.Amount, &i.CategoryLabel, &i.SourceKind, &i.Ref, &i.ApplicationAccount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listMovementRange = `SELECT id, movement_date, amount, category_label, source_kind, ref, application_account
FROM movements
WHERE movement_date BETWEEN ? AND ? AND source_kind = ?
ORDER BY movement_date, id`

func (q *Queries) ListMovementRange(ctx context.Context, start, end, kind string) ([]Movement, error) {
	rows, err := q.db.QueryContext(ctx, listMovementRange, start, end, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Movement
	for rows.Next() {
		var i Movement
		if err := rows.Scan(&i.ID, &i.MovementDate, &i.Amount, &i.CategoryLabel, &i.SourceKind, &i.Ref, &i.ApplicationAccount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const upsertApplicationOpening = `INSERT INTO application_openings (opening_date, amount, note)
VALUES (?, ?, ?)
ON CONFLICT (opening_date) DO UPDATE SET amount = excluded.amount, note = excluded.note`

func (q *Queries) UpsertApplicationOpening(ctx context.Context, arg ApplicationOpening) error {
	_, err := q.db.ExecContext(ctx, upsertApplicationOpening, arg.OpeningDate, arg.Amount, arg.Note)
	return err
}

const getEarliestApplicationOpening = `SELECT opening_date, amount, note FROM application_openings
ORDER BY opening_date ASC
LIMIT 1`

func (q *Queries) GetEarliestApplicationOpening(ctx context.Context) (ApplicationOpening, error) {
	var i ApplicationOpening
	err := q.db.QueryRowContext(ctx, getEarliestApplicationOpening).Scan(&i.OpeningDate, &i.Amount, &i.Note)
	return i, err
}

const balanceColumns = `balance_date, opening_balance, closing_balance, description, note, created_at, updated_at`

func scanBalance(row interface{ Scan(...any) error }) (DailyBalance, error) {
	var i DailyBalance
	err := row.Scan(&i.BalanceDate, &i.OpeningBalance, &i.ClosingBalance, &i.Description, &i.Note, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getBalance = `SELECT ` + balanceColumns + ` FROM daily_balances WHERE balance_date = ?`

func (q *Queries) GetBalance(ctx context.Context, date string) (DailyBalance, error) {
	return scanBalance(q.db.QueryRowContext(ctx, getBalance, date))
}

const getLatestBalanceBefore = `SELECT ` + balanceColumns + ` FROM daily_balances
WHERE balance_date < ?
ORDER BY balance_date DESC
LIMIT 1`

func (q *Queries) GetLatestBalanceBefore(ctx context.Context, date string) (DailyBalance, error) {
	return scanBalance(q.db.QueryRowContext(ctx, getLatestBalanceBefore, date))
}

const listBalances = `SELECT ` + balanceColumns + ` FROM daily_balances
WHERE balance_date BETWEEN ? AND ?
ORDER BY balance_date ASC`

func (q *Queries) ListBalances(ctx context.Context, start, end string) ([]DailyBalance, error) {
	rows, err := q.db.QueryContext(ctx, listBalances, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DailyBalance
	for rows.Next() {
		i, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// ?8 selects whether an existing row keeps its created_at.
const upsertBalance = `INSERT INTO daily_balances (balance_date, opening_balance, closing_balance, description, note, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)
ON CONFLICT (balance_date) DO UPDATE SET
    opening_balance = excluded.opening_balance,
    closing_balance = excluded.closing_balance,
    description     = excluded.description,
    note            = excluded.note,
    updated_at      = excluded.updated_at,
    created_at      = CASE WHEN ?8 THEN daily_balances.created_at ELSE excluded.created_at END`

type UpsertBalanceParams struct {
	BalanceDate       string
	OpeningBalance    string
	ClosingBalance    string
	Description       string
	Note              string
	CreatedAt         string
	UpdatedAt         string
	PreserveCreatedAt bool
}

func (q *Queries) UpsertBalance(ctx context.Context, arg UpsertBalanceParams) error {
	_, err := q.db.ExecContext(ctx, upsertBalance,
		arg.BalanceDate, arg.OpeningBalance, arg.ClosingBalance, arg.Description, arg.Note,
		arg.CreatedAt, arg.UpdatedAt, arg.PreserveCreatedAt)
	return err
}

const upsertSnapshot = `INSERT INTO bank_snapshots (snapshot_date, bank_id, bank_name, amount)
VALUES (?, ?, ?, ?)
ON CONFLICT (snapshot_date, bank_id) DO UPDATE SET bank_name = excluded.bank_name, amount = excluded.amount`

func (q *Queries) UpsertSnapshot(ctx context.Context, arg BankSnapshot) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot, arg.SnapshotDate, arg.BankID, arg.BankName, arg.Amount)
	return err
}

const listSnapshots = `SELECT id, snapshot_date, bank_id, bank_name, amount FROM bank_snapshots
WHERE snapshot_date BETWEEN ? AND ?
ORDER BY snapshot_date, bank_id`

func (q *Queries) ListSnapshots(ctx context.Context, start, end string) ([]BankSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshots, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BankSnapshot
	for rows.Next() {
		var i BankSnapshot
		if err := rows.Scan(&i.ID, &i.SnapshotDate, &i.BankID, &i.BankName, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertBillingTotal = `INSERT INTO billing_totals (billing_date, account_id, amount, application_account)
VALUES (?, ?, ?, ?)`

func (q *Queries) InsertBillingTotal(ctx context.Context, arg BillingTotal) error {
	_, err := q.db.ExecContext(ctx, insertBillingTotal, arg.BillingDate, arg.AccountID, arg.Amount, arg.ApplicationAccount)
	return err
}

const listBillingTotals = `SELECT id, billing_date, account_id, amount, application_account FROM billing_totals
WHERE billing_date BETWEEN ? AND ?
ORDER BY billing_date, id`

func (q *Queries) ListBillingTotals(ctx context.Context, start, end string) ([]BillingTotal, error) {
	rows, err := q.db.QueryContext(ctx, listBillingTotals, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BillingTotal
	for rows.Next() {
		var i BillingTotal
		if err := rows.Scan(&i.ID, &i.BillingDate, &i.AccountID, &i.Amount, &i.ApplicationAccount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const jobColumns = `id, kind, start_date, end_date, anchor_opening, status, error, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (RecalcJob, error) {
	var i RecalcJob
	err := row.Scan(&i.ID, &i.Kind, &i.StartDate, &i.EndDate, &i.AnchorOpening, &i.Status, &i.Error, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const createJob = `INSERT INTO recalc_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateJob(ctx context.Context, arg RecalcJob) error {
	_, err := q.db.ExecContext(ctx, createJob,
		arg.ID, arg.Kind, arg.StartDate, arg.EndDate, arg.AnchorOpening, arg.Status, arg.Error, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const getJob = `SELECT ` + jobColumns + ` FROM recalc_jobs WHERE id = ?`

func (q *Queries) GetJob(ctx context.Context, id string) (RecalcJob, error) {
	return scanJob(q.db.QueryRowContext(ctx, getJob, id))
}

const updateJobStatus = `UPDATE recalc_jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateJobStatus(ctx context.Context, id, status, errMsg, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateJobStatus, status, errMsg, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listJobsByStatus = `SELECT ` + jobColumns + ` FROM recalc_jobs WHERE status = ? ORDER BY created_at`

func (q *Queries) ListJobsByStatus(ctx context.Context, status string) ([]RecalcJob, error) {
	rows, err := q.db.QueryContext(ctx, listJobsByStatus, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecalcJob
	for rows.Next() {
		i, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
