package backend

import (
	"context"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/log"
	"saldo/internal/reconcile"
	"saldo/internal/services"
	gsheet "saldo/internal/sheets/google"
	"saldo/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult carries the storage ports and the optional job queue.
type BackendResult struct {
	Store store.Backend

	// Queue is nil when AMQP is disabled or could not be reached.
	Queue *amqp.Client

	// Ready reports whether the storage answers. Nil means always ready.
	Ready func(ctx context.Context) error

	Cleanup CleanupFunc
}

// Publisher returns the queue as a job publisher, or nil without one.
func (r *BackendResult) Publisher() services.JobPublisher {
	if r.Queue == nil {
		return nil
	}
	return r.Queue
}

// LedgerDeps wires every port of the backend into service dependencies.
func (r *BackendResult) LedgerDeps(opts reconcile.Options, logger *log.Logger) services.LedgerDeps {
	return services.LedgerDeps{
		Movements:    r.Store,
		Balances:     r.Store,
		Observations: r.Store,
		Jobs:         r.Store,
		Publisher:    r.Publisher(),
		Applications: r.Store,
		Reconcile:    opts,
		Logger:       logger,
	}
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	Observations ObservationSource

	// SQLite specific
	SQLiteDBPath string
	QueryTimeout time.Duration

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	DisableQueue bool

	// Google Sheets observation source
	Sheets gsheet.Options
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// ObservationSource selects where observed bank balances and billing totals are read.
type ObservationSource string

const (
	// StoreObservations reads observations from the data backend itself.
	StoreObservations ObservationSource = "store"
	// SheetsObservations reads them from a Google spreadsheet.
	SheetsObservations ObservationSource = "sheets"
)

func (o ObservationSource) IsValid() bool {
	return o == StoreObservations || o == SheetsObservations
}
