package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"saldo/internal/core"
	"saldo/internal/log"
)

// SchedulerConfig holds configuration for the periodic recalculation
type SchedulerConfig struct {
	// Interval between runs (default: 1h)
	Interval time.Duration

	// Window picks the dates each run recalculates (default: last 7 days)
	Window WindowStrategy

	// Modes are reconciled after every recalculation. Empty disables the sweep.
	Modes []core.ReconciliationMode
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: time.Hour,
		Window:   TrailingDays{N: 7},
		Modes:    []core.ReconciliationMode{core.BankMode, core.BillingMode},
	}
}

// RunSummary describes one scheduled pass.
type RunSummary struct {
	Window      core.DateRange
	Report      RecalculationReport
	Divergences map[core.ReconciliationMode]int
}

// Scheduler recalculates a trailing window on a ticker and then sweeps
// reconciliation over the same dates, logging divergences.
type Scheduler struct {
	service *LedgerService
	config  SchedulerConfig
	today   func() core.Date

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(service *LedgerService, config SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Window == nil {
		config.Window = def.Window
	}
	return &Scheduler{
		service: service,
		config:  config,
		today:   core.Today,
	}
}

// Start begins the run loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	s.stopCh, s.doneCh = stopCh, doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Scheduler started",
		"interval", s.config.Interval,
		"modes", s.config.Modes)
	return nil
}

// Stop signals the loop and waits for the current run to finish. Only the
// first of concurrent callers closes the stop channel; the rest return nil.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	// A loop ended by ctx leaves nothing for Stop to do.
	defer func() {
		s.mu.Lock()
		if s.doneCh == doneCh {
			s.running = false
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runLogged(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Scheduled run failed", log.FieldError, err)
	}
}

// RunOnce recalculates the current window, then reconciles every configured
// mode concurrently. Reconciliation only reads, so the modes share nothing.
func (s *Scheduler) RunOnce(ctx context.Context) (RunSummary, error) {
	rng := s.config.Window.Window(s.today())
	start, end := rng.Start.String(), rng.End.String()
	summary := RunSummary{Window: rng, Divergences: make(map[core.ReconciliationMode]int)}

	report, err := s.service.RunRecalculation(ctx, start, end, nil)
	if err != nil {
		return summary, fmt.Errorf("recalculate %s: %w", rng, err)
	}
	summary.Report = report
	slog.InfoContext(ctx, "Scheduled recalculation finished",
		log.FieldStart, start, log.FieldEnd, end,
		"processed", report.Processed, "updated", report.UpdatedCount,
		"failures", len(report.Failures), "status", string(report.Status))

	counts := make([]int, len(s.config.Modes))
	g, gctx := errgroup.WithContext(ctx)
	for i, mode := range s.config.Modes {
		g.Go(func() error {
			rows, err := s.service.RunReconciliation(gctx, start, end, string(mode))
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", mode, err)
			}
			for _, row := range rows {
				if row.Divergent {
					counts[i]++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	for i, mode := range s.config.Modes {
		summary.Divergences[mode] = counts[i]
		slog.InfoContext(ctx, "Reconciliation sweep finished",
			log.FieldMode, string(mode), log.FieldStart, start, log.FieldEnd, end,
			"divergent_days", counts[i])
	}
	return summary, nil
}
