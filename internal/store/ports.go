// Package store declares the persistence ports the ledger engine depends on.
// Adapters live in internal/storage (SQLite), internal/store/memory and
// internal/sheets/google (observations only).
package store

import (
	"context"
	"errors"
	"time"

	"saldo/internal/core"
)

// ErrNotFound is returned by lookups that need a row to exist.
var ErrNotFound = errors.New("not found")

// Ports for outbound adapters.
type (
	// MovementReader returns the movements of one source kind on one date.
	MovementReader interface {
		FetchMovements(ctx context.Context, date core.Date, kind core.SourceKind) ([]core.MovementRecord, error)
	}

	// MovementRangeReader returns the movements of one source kind over a range,
	// in date order.
	MovementRangeReader interface {
		FetchMovementRange(ctx context.Context, rng core.DateRange, kind core.SourceKind) ([]core.MovementRecord, error)
	}

	// BalanceReader reads persisted daily balance records. Single-record
	// lookups return (nil, nil) when nothing matches.
	BalanceReader interface {
		FetchBalanceRecord(ctx context.Context, date core.Date) (*core.DailyBalanceRecord, error)
		FetchLatestBalanceBefore(ctx context.Context, date core.Date) (*core.DailyBalanceRecord, error)
		FetchBalanceRange(ctx context.Context, rng core.DateRange) ([]core.DailyBalanceRecord, error)
	}

	// BalanceWriter persists one record per date. When preserveCreatedAt is
	// set an existing row keeps its created_at.
	BalanceWriter interface {
		UpsertBalanceRecord(ctx context.Context, rec core.DailyBalanceRecord, preserveCreatedAt bool) error
	}

	BalanceStore interface {
		BalanceReader
		BalanceWriter
	}

	// ObservationReader returns externally observed figures to reconcile against.
	ObservationReader interface {
		FetchObservedBalances(ctx context.Context, rng core.DateRange) ([]core.ObservedBalanceSnapshot, error)
		FetchBillingTotals(ctx context.Context, rng core.DateRange) ([]core.BillingTotal, error)
	}

	// MovementWriter loads movements. Movement entry itself happens elsewhere;
	// this is used for seeding and tests.
	MovementWriter interface {
		AppendMovements(ctx context.Context, ms ...core.MovementRecord) error
	}

	// ObservationWriter records observed figures when the store is the
	// observation source.
	ObservationWriter interface {
		RecordSnapshot(ctx context.Context, s core.ObservedBalanceSnapshot) error
		RecordBillingTotal(ctx context.Context, b core.BillingTotal) error
	}

	// JobStore tracks queued recalculation jobs.
	JobStore interface {
		CreateJob(ctx context.Context, job core.RecalcJob) error
		GetJob(ctx context.Context, id string) (*core.RecalcJob, error)
		UpdateJobStatus(ctx context.Context, id string, status core.JobStatus, errMsg string) error
		ListPendingJobs(ctx context.Context) ([]core.RecalcJob, error)
		// ListStaleRunningJobs returns running jobs last updated before the given time.
		ListStaleRunningJobs(ctx context.Context, before time.Time) ([]core.RecalcJob, error)
	}

	ApplicationOpeningReader interface {
		// FetchEarliestApplicationOpening returns (nil, nil) when none is recorded.
		FetchEarliestApplicationOpening(ctx context.Context) (*core.ApplicationOpening, error)
	}

	ApplicationOpeningWriter interface {
		RecordApplicationOpening(ctx context.Context, o core.ApplicationOpening) error
	}

	// ApplicationSource feeds the investment account statement.
	ApplicationSource interface {
		MovementRangeReader
		ApplicationOpeningReader
		ApplicationOpeningWriter
	}

	// LedgerStore is everything the engine needs.
	LedgerStore interface {
		MovementReader
		BalanceStore
		ObservationReader
	}

	// Backend is the full set of ports a storage backend provides.
	Backend interface {
		LedgerStore
		JobStore
		MovementWriter
		ObservationWriter
		ApplicationSource
	}
)
