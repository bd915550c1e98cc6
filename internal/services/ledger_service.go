package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"saldo/internal/amqp"
	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/reconcile"
	"saldo/internal/store"
)

var (
	ErrInvalidMode       = errors.New("invalid reconciliation mode")
	ErrInvalidJobKind    = errors.New("invalid job kind")
	ErrQueueUnavailable  = errors.New("job queue not configured")
	ErrNoApplicationData = errors.New("application statement not configured")
)

// JobPublisher hands a stored job to the worker queue.
type JobPublisher interface {
	PublishRecalculationJob(ctx context.Context, msg *amqp.RecalculationJobMessage) error
}

// RecalculationReport is what callers of RunRecalculation get back.
type RecalculationReport struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	TotalDays int    `json:"total_days"`
	Processed int    `json:"processed"`
	// Updated lists the records written, in date order.
	Updated      []core.DailyBalanceRecord `json:"updated"`
	UpdatedCount int                       `json:"updated_count"`
	Failures     []core.DateFailure        `json:"failures"`
	Status       core.JobStatus            `json:"status"`
	Duration     time.Duration             `json:"duration_ns"`
}

// LedgerDeps lists what the service is built from. Jobs and Publisher are
// optional; without them EnqueueJob reports ErrQueueUnavailable.
type LedgerDeps struct {
	Movements    store.MovementReader
	Balances     store.BalanceStore
	Observations store.ObservationReader
	Jobs         store.JobStore
	Publisher    JobPublisher
	// Applications feeds the investment account statement. Optional.
	Applications store.ApplicationSource
	Reconcile    reconcile.Options
	// ReconcileCacheTTL keeps reconciliation reports for this long. Zero
	// disables the cache. Any write through the service clears it.
	ReconcileCacheTTL time.Duration
	Logger            *log.Logger
}

const reconcileCacheSize = 256

// LedgerService is the entry point shared by the HTTP API, the worker, the
// scheduler and the CLI.
type LedgerService struct {
	balances     store.BalanceReader
	jobs         store.JobStore
	publisher    JobPublisher
	recalculator *ledger.Recalculator
	resyncer     *ledger.Resyncer
	importer     *ledger.Importer
	comparator   *reconcile.Comparator
	applications store.ApplicationSource
	statements   *ledger.StatementBuilder
	rows         *cache.LRUCache[[]core.ReconciliationRow]
	logger       *log.Logger
	newID        func() string
}

func NewLedgerService(d LedgerDeps) *LedgerService {
	logger := d.Logger.OrDiscard()
	agg := ledger.NewAggregator(nil)
	svc := &LedgerService{
		balances:     d.Balances,
		jobs:         d.Jobs,
		publisher:    d.Publisher,
		recalculator: ledger.NewRecalculator(d.Movements, d.Balances, agg, logger),
		resyncer:     ledger.NewResyncer(d.Balances, logger),
		importer:     ledger.NewImporter(d.Balances, logger),
		comparator:   reconcile.NewComparator(d.Balances, d.Movements, d.Observations, agg, d.Reconcile, logger),
		applications: d.Applications,
		logger:       logger.WithComponent(log.ComponentApp),
		newID:        uuid.NewString,
	}
	if d.Applications != nil {
		svc.statements = ledger.NewStatementBuilder(d.Applications, nil, logger)
	}
	if d.ReconcileCacheTTL > 0 {
		svc.rows = cache.NewLRUCache[[]core.ReconciliationRow](reconcileCacheSize, d.ReconcileCacheTTL)
	}
	return svc
}

// ReconcileCache exposes the report cache for periodic eviction, or nil
// when caching is disabled.
func (s *LedgerService) ReconcileCache() cache.Cleaner {
	if s.rows == nil {
		return nil
	}
	return s.rows
}

func (s *LedgerService) invalidate() {
	if s.rows != nil {
		s.rows.Clear()
	}
}

// RunRecalculation recomputes [start, end]. An empty end recalculates start
// only. anchorOpening, when given, overrides the opening of start.
func (s *LedgerService) RunRecalculation(ctx context.Context, start, end string, anchorOpening *string) (RecalculationReport, error) {
	rng, err := core.ParseDateRange(start, end)
	if err != nil {
		return RecalculationReport{}, err
	}
	anchor, err := parseAnchor(anchorOpening)
	if err != nil {
		return RecalculationReport{}, err
	}

	began := time.Now()
	res, err := s.recalculator.Recalculate(ctx, rng, anchor)
	if len(res.Updated) > 0 {
		s.invalidate()
	}
	if err != nil {
		return RecalculationReport{}, err
	}
	report := RecalculationReport{
		Start:        rng.Start.String(),
		End:          rng.End.String(),
		TotalDays:    res.TotalDays,
		Processed:    res.Processed(),
		Updated:      res.Updated,
		UpdatedCount: len(res.Updated),
		Failures:     res.Failures,
		Status:       recalculationStatus(res),
		Duration:     time.Since(began),
	}
	if report.Updated == nil {
		report.Updated = []core.DailyBalanceRecord{}
	}
	if report.Failures == nil {
		report.Failures = []core.DateFailure{}
	}
	return report, nil
}

// RunReconciliation compares computed and observed figures per date. mode is
// "bank" or "billing".
func (s *LedgerService) RunReconciliation(ctx context.Context, start, end, mode string) ([]core.ReconciliationRow, error) {
	m, ok := core.ParseReconciliationMode(strings.ToLower(strings.TrimSpace(mode)))
	if !ok {
		return nil, fmt.Errorf("%w: %q (want bank or billing)", ErrInvalidMode, mode)
	}
	rng, err := core.ParseDateRange(start, end)
	if err != nil {
		return nil, err
	}
	key := string(m) + "|" + rng.Start.String() + "|" + rng.End.String()
	if s.rows != nil {
		if rows, ok := s.rows.Get(key); ok {
			return rows, nil
		}
	}

	var rows []core.ReconciliationRow
	if m == core.BillingMode {
		rows, err = s.comparator.CompareBilling(ctx, rng)
	} else {
		rows, err = s.comparator.CompareBankRange(ctx, rng)
	}
	if err != nil {
		return nil, err
	}
	if s.rows != nil {
		s.rows.Set(key, rows)
	}
	return rows, nil
}

// Resync re-chains the stored records of [start, end].
func (s *LedgerService) Resync(ctx context.Context, start, end string) (ledger.ResyncResult, error) {
	rng, err := core.ParseDateRange(start, end)
	if err != nil {
		return ledger.ResyncResult{}, err
	}
	defer s.invalidate()
	return s.resyncer.Resync(ctx, rng)
}

func (s *LedgerService) Import(ctx context.Context, rows []ledger.ImportRow) ledger.ImportReport {
	defer s.invalidate()
	return s.importer.Import(ctx, rows)
}

// ListBalances returns the stored records of [start, end] in date order.
func (s *LedgerService) ListBalances(ctx context.Context, start, end string) ([]core.DailyBalanceRecord, error) {
	rng, err := core.ParseDateRange(start, end)
	if err != nil {
		return nil, err
	}
	recs, err := s.balances.FetchBalanceRange(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return recs, nil
}

// EnqueueJob stores a pending job and publishes it. A publish failure is
// logged only: the job stays pending and the worker picks it up at startup.
func (s *LedgerService) EnqueueJob(ctx context.Context, kind core.JobKind, start, end string, anchorOpening *string) (core.RecalcJob, error) {
	if s.jobs == nil {
		return core.RecalcJob{}, ErrQueueUnavailable
	}
	if !kind.Valid() {
		return core.RecalcJob{}, fmt.Errorf("%w: %q", ErrInvalidJobKind, kind)
	}
	rng, err := core.ParseDateRange(start, end)
	if err != nil {
		return core.RecalcJob{}, err
	}
	anchor, err := parseAnchor(anchorOpening)
	if err != nil {
		return core.RecalcJob{}, err
	}

	job := core.RecalcJob{
		ID:     s.newID(),
		Kind:   kind,
		Start:  rng.Start.String(),
		End:    rng.End.String(),
		Status: core.JobPending,
	}
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	if anchor != nil {
		a := anchor.String()
		job.AnchorOpening = &a
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return core.RecalcJob{}, fmt.Errorf("create job: %w", err)
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, job left pending", log.FieldJobID, job.ID)
		return job, nil
	}
	if err := s.publisher.PublishRecalculationJob(ctx, amqp.NewRecalculationJobMessage(job)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish recalculation job", log.FieldJobID, job.ID, log.FieldError, err)
	}
	return job, nil
}

// GetJob returns a stored job or store.ErrNotFound.
func (s *LedgerService) GetJob(ctx context.Context, id string) (*core.RecalcJob, error) {
	if s.jobs == nil {
		return nil, ErrQueueUnavailable
	}
	return s.jobs.GetJob(ctx, id)
}

// RunJob executes a queued job and records its outcome in the job store.
// The returned error is only set when the job could not be run at all.
func (s *LedgerService) RunJob(ctx context.Context, job core.RecalcJob) error {
	if !job.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidJobKind, job.Kind)
	}
	s.setJobStatus(ctx, job.ID, core.JobRunning, "")

	var (
		status core.JobStatus
		msg    string
		err    error
	)
	switch job.Kind {
	case core.JobResync:
		var res ledger.ResyncResult
		res, err = s.Resync(ctx, job.Start, job.End)
		status, msg = core.JobDone, ""
		if len(res.Failures) > 0 {
			status, msg = core.JobPartial, failureSummary(res.Failures)
		}
	default:
		var rep RecalculationReport
		rep, err = s.RunRecalculation(ctx, job.Start, job.End, job.AnchorOpening)
		status, msg = rep.Status, failureSummary(rep.Failures)
	}
	if err != nil {
		s.setJobStatus(ctx, job.ID, core.JobFailed, err.Error())
		return err
	}

	s.setJobStatus(ctx, job.ID, status, msg)
	s.logger.InfoContext(ctx, "Job finished", log.FieldJobID, job.ID, "kind", string(job.Kind), "status", string(status))
	return nil
}

// PendingJobs lists jobs that were queued but never finished.
func (s *LedgerService) PendingJobs(ctx context.Context) ([]core.RecalcJob, error) {
	if s.jobs == nil {
		return nil, nil
	}
	return s.jobs.ListPendingJobs(ctx)
}

// ApplicationStatement reports the investment account over [start, end].
func (s *LedgerService) ApplicationStatement(ctx context.Context, start, end string) (ledger.ApplicationStatement, error) {
	if s.statements == nil {
		return ledger.ApplicationStatement{}, ErrNoApplicationData
	}
	rng, err := core.ParseDateRange(start, end)
	if err != nil {
		return ledger.ApplicationStatement{}, err
	}
	return s.statements.Statement(ctx, rng)
}

// SetApplicationOpening records a known investment account balance. The
// earliest one recorded is where statements start.
func (s *LedgerService) SetApplicationOpening(ctx context.Context, date, amount, note string) (core.ApplicationOpening, error) {
	if s.applications == nil {
		return core.ApplicationOpening{}, ErrNoApplicationData
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.ApplicationOpening{}, err
	}
	m, err := core.ParseMoney(amount)
	if err != nil {
		return core.ApplicationOpening{}, err
	}
	o := core.ApplicationOpening{Date: d, Amount: m, Note: strings.TrimSpace(note)}
	if err := s.applications.RecordApplicationOpening(ctx, o); err != nil {
		return core.ApplicationOpening{}, err
	}
	s.logger.InfoContext(ctx, "Application opening recorded", log.FieldDate, d.String(), "amount", m.String())
	return o, nil
}

// RecoverableJobs lists pending jobs plus running jobs whose status has not
// moved for staleAfter. A worker that dies mid-run leaves its job running
// with no message left to redeliver it.
func (s *LedgerService) RecoverableJobs(ctx context.Context, staleAfter time.Duration) ([]core.RecalcJob, error) {
	if s.jobs == nil {
		return nil, nil
	}
	pending, err := s.jobs.ListPendingJobs(ctx)
	if err != nil {
		return nil, err
	}
	if staleAfter <= 0 {
		return pending, nil
	}
	stale, err := s.jobs.ListStaleRunningJobs(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		return nil, err
	}
	for _, job := range stale {
		s.logger.WarnContext(ctx, "Recovering stale running job",
			log.FieldJobID, job.ID, "updated_at", job.UpdatedAt)
	}
	return append(stale, pending...), nil
}

func (s *LedgerService) setJobStatus(ctx context.Context, id string, status core.JobStatus, msg string) {
	if s.jobs == nil || id == "" {
		return
	}
	if err := s.jobs.UpdateJobStatus(ctx, id, status, msg); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "Failed to update job status", log.FieldJobID, id, "status", string(status), log.FieldError, err)
	}
}

func parseAnchor(raw *string) (*core.Money, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	m, err := core.ParseMoney(*raw)
	if err != nil {
		return nil, fmt.Errorf("anchor opening: %w", err)
	}
	return &m, nil
}

// recalculationStatus maps a result to a job status. A run that stopped
// before persisting anything failed; any other run with failures is partial.
func recalculationStatus(res ledger.Result) core.JobStatus {
	switch {
	case len(res.Failures) == 0:
		return core.JobDone
	case res.Terminated() && len(res.Updated) == 0:
		return core.JobFailed
	default:
		return core.JobPartial
	}
}

func failureSummary(fs []core.DateFailure) string {
	if len(fs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		parts = append(parts, fmt.Sprintf("%s %s: %s", f.Date, f.Kind, f.Reason))
	}
	return strings.Join(parts, "; ")
}
