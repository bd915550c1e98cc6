package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/store"
)

// JobRunner runs queued jobs and tracks their status.
type JobRunner interface {
	RunJob(ctx context.Context, job core.RecalcJob) error
	GetJob(ctx context.Context, id string) (*core.RecalcJob, error)
	RecoverableJobs(ctx context.Context, staleAfter time.Duration) ([]core.RecalcJob, error)
}

// RecalcWorker executes recalculation and resync jobs delivered over AMQP.
type RecalcWorker struct {
	runner     JobRunner
	batchSize  int
	staleAfter time.Duration
}

// NewRecalcWorker builds a worker. Running jobs untouched for staleAfter
// are treated as abandoned by the startup check.
func NewRecalcWorker(runner JobRunner, batchSize int, staleAfter time.Duration) *RecalcWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &RecalcWorker{runner: runner, batchSize: batchSize, staleAfter: staleAfter}
}

// HandleJobMessage processes a single job message from AMQP. Jobs that
// already finished are acknowledged without running again. A job whose row
// is missing still runs from the message contents.
func (w *RecalcWorker) HandleJobMessage(ctx context.Context, msg *amqp.RecalculationJobMessage) error {
	slog.InfoContext(ctx, "Processing job message",
		log.FieldJobID, msg.JobID,
		"kind", string(msg.Kind),
		log.FieldStart, msg.Start,
		log.FieldEnd, msg.End)

	job := msg.Job()
	stored, err := w.runner.GetJob(ctx, msg.JobID)
	switch {
	case err == nil:
		if stored.Status.Finished() {
			slog.InfoContext(ctx, "Job already finished, skipping",
				log.FieldJobID, msg.JobID, "status", string(stored.Status))
			return nil
		}
		job = *stored
	case errors.Is(err, store.ErrNotFound):
		slog.WarnContext(ctx, "Job not found in store, running from message", log.FieldJobID, msg.JobID)
	default:
		return fmt.Errorf("get job %s: %w", msg.JobID, err)
	}

	if err := w.runner.RunJob(ctx, job); err != nil {
		var fetchErr *core.StoreFetchError
		if ctx.Err() != nil || errors.As(err, &fetchErr) {
			return err
		}
		// Bad ranges and anchors will fail the same way on every redelivery.
		return amqp.Permanent(fmt.Errorf("run job %s: %w", job.ID, err))
	}
	return nil
}

// StartupCheck runs jobs left pending by lost messages or worker downtime,
// and jobs a crashed worker left running.
func (w *RecalcWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.runner.RecoverableJobs(ctx, w.staleAfter)
	if err != nil {
		return fmt.Errorf("list recoverable jobs for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending jobs found on startup")
		return nil
	}
	if len(pending) > w.batchSize*5 {
		pending = pending[:w.batchSize*5]
	}

	slog.InfoContext(ctx, "Found pending jobs on startup, processing...", "count", len(pending))

	successCount, errorCount := 0, 0
	for _, job := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := w.runner.RunJob(ctx, job); err != nil {
			slog.ErrorContext(ctx, "Failed to run job during startup",
				log.FieldJobID, job.ID, log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup job check completed",
		"total", len(pending),
		"run", successCount,
		"errors", errorCount)
	return ctx.Err()
}
