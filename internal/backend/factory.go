package backend

import (
	"context"
	"errors"
	"fmt"

	"saldo/internal/adapters"
	"saldo/internal/amqp"
	"saldo/internal/log"
	gsheet "saldo/internal/sheets/google"
	"saldo/internal/storage"
	"saldo/internal/store"
	"saldo/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger

	// newQueue is swapped in tests so no broker is needed.
	newQueue func(url, exchange, queue string) (*amqp.Client, error)
	// newSheets is swapped in tests so no credentials are needed.
	newSheets func(ctx context.Context, opts gsheet.Options) (store.ObservationReader, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{
		logger:   logger.OrDiscard().WithComponent(log.ComponentBackend),
		newQueue: amqp.NewClient,
		newSheets: func(ctx context.Context, opts gsheet.Options) (store.ObservationReader, error) {
			return gsheet.New(ctx, opts)
		},
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		result, err = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.Observations == SheetsObservations {
		obs, err := f.newSheets(ctx, config.Sheets)
		if err != nil {
			if result.Cleanup != nil {
				_ = result.Cleanup()
			}
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		result.Store = adapters.NewObservationOverlay(result.Store, obs)
		f.logger.Info("Reading observations from Google Sheets",
			"spreadsheet_id", config.Sheets.SpreadsheetID,
			"bank_sheet", config.Sheets.BankSheetName,
			"billing_sheet", config.Sheets.BillingSheetName)
	}

	f.attachQueue(result, config)
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	if config.QueryTimeout > 0 {
		repo.SetQueryTimeout(config.QueryTimeout)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   repo,
		Ready:   repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend")
	return &BackendResult{Store: memory.New()}, nil
}

// attachQueue connects to AMQP when configured. A broker that cannot be
// reached is logged and the backend runs without a queue.
func (f *DefaultFactory) attachQueue(result *BackendResult, config Config) {
	if config.DisableQueue || config.AMQPURL == "" {
		return
	}
	client, err := f.newQueue(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without job queue", log.FieldError, err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	result.Queue = client
	storeCleanup := result.Cleanup
	result.Cleanup = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
		if storeCleanup != nil {
			if err := storeCleanup(); err != nil {
				errs = append(errs, fmt.Errorf("close storage: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}
