package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"saldo/internal/core"
	"saldo/internal/log"
)

// appMetrics counts what the API did since startup.
type appMetrics struct {
	uptime          time.Time
	recalculations  int64
	reconciliations int64
	imports         int64
	jobsEnqueued    int64
	failedDates     int64
	divergentDays   int64
}

func newAppMetrics() *appMetrics {
	return &appMetrics{uptime: time.Now()}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.uptime).String(),
	}).Write(w)
}

// handleReady checks the storage backend. A missing or disconnected queue is
// reported but does not make the API unready, since jobs stay pending.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.opts.Ready != nil {
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "ok"
	}

	switch {
	case s.opts.QueueHealthy == nil:
		checks["queue"] = "not_configured"
	case s.opts.QueueHealthy():
		checks["queue"] = "ok"
	default:
		checks["queue"] = "disconnected"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()

	counters := []struct {
		name, help string
		value      int64
	}{
		{"http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests},
		{"recalculations_total", "Recalculation requests served", atomic.LoadInt64(&s.metrics.recalculations)},
		{"recalculation_failed_dates_total", "Dates not persisted by recalculations", atomic.LoadInt64(&s.metrics.failedDates)},
		{"reconciliations_total", "Reconciliation requests served", atomic.LoadInt64(&s.metrics.reconciliations)},
		{"reconciliation_divergent_days_total", "Divergent days reported", atomic.LoadInt64(&s.metrics.divergentDays)},
		{"imports_total", "Import requests served", atomic.LoadInt64(&s.metrics.imports)},
		{"jobs_enqueued_total", "Recalculation jobs enqueued", atomic.LoadInt64(&s.metrics.jobsEnqueued)},
		{"rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits},
		{"suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests},
	}

	w.WriteHeader(http.StatusOK)
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", c.name, c.help, c.name, c.name, c.value)
	}
	fmt.Fprintf(w, "# HELP http_request_duration_avg_microseconds Mean request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_microseconds %d\n\n", traceMetrics.AverageResponseTime)
	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)
	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.metrics.uptime).Seconds())
}

// parseBody parses a JSON or form body, writing a 400 on failure.
func (s *Server) parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return nil, false
	}
	return p, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := log.FromContext(r.Context())
	if StatusForError(err) >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, op, nil)
	} else {
		logger.InfoContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err)
	}
	FromError(err).Write(w)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	rng := p.Range()

	rep, err := s.service.RunRecalculation(r.Context(), rng.Start, rng.End, p.GetOptional("anchor_opening"))
	if err != nil {
		s.fail(w, r, log.OpRecalculate, err)
		return
	}
	atomic.AddInt64(&s.metrics.recalculations, 1)
	atomic.AddInt64(&s.metrics.failedDates, int64(len(rep.Failures)))

	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogBatch(r.Context(), log.OpRecalculate, rep.Start, rep.End, rep.TotalDays, rep.UpdatedCount, len(rep.Failures))
	NewJSONResponse().Data(rep).Write(w)
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	rng := p.Range()

	res, err := s.service.Resync(r.Context(), rng.Start, rng.End)
	if err != nil {
		s.fail(w, r, log.OpResync, err)
		return
	}
	NewJSONResponse().Data(res).Write(w)
}

// handleImport returns 422 only when no row at all could be imported.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	rows, err := DecodeImportRows(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	rep := s.service.Import(r.Context(), rows)
	atomic.AddInt64(&s.metrics.imports, 1)

	status := http.StatusOK
	if rep.Imported == 0 {
		status = http.StatusUnprocessableEntity
	}
	NewJSONResponse().Status(status).Data(rep).Write(w)
}

type reconciliationResponse struct {
	Mode      string                   `json:"mode"`
	Start     string                   `json:"start"`
	End       string                   `json:"end,omitempty"`
	Divergent int                      `json:"divergent"`
	Rows      []core.ReconciliationRow `json:"rows"`
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng := ParseRangeParams(q)
	mode := strings.ToLower(sanitizeInput(q.Get("mode")))
	if mode == "" {
		mode = string(core.BankMode)
	}

	rows, err := s.service.RunReconciliation(r.Context(), rng.Start, rng.End, mode)
	if err != nil {
		s.fail(w, r, log.OpReconcile, err)
		return
	}

	resp := reconciliationResponse{Mode: mode, Start: rng.Start, End: rng.End, Rows: rows}
	if resp.Rows == nil {
		resp.Rows = []core.ReconciliationRow{}
	}
	for _, row := range rows {
		if row.Divergent {
			resp.Divergent++
		}
	}
	atomic.AddInt64(&s.metrics.reconciliations, 1)
	atomic.AddInt64(&s.metrics.divergentDays, int64(resp.Divergent))
	NewJSONResponse().Data(resp).Write(w)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	rng := ParseRangeParams(r.URL.Query())
	recs, err := s.service.ListBalances(r.Context(), rng.Start, rng.End)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	if recs == nil {
		recs = []core.DailyBalanceRecord{}
	}
	NewJSONResponse().Data(map[string]any{"balances": recs}).Write(w)
}

func (s *Server) handleApplicationStatement(w http.ResponseWriter, r *http.Request) {
	rng := ParseRangeParams(r.URL.Query())
	st, err := s.service.ApplicationStatement(r.Context(), rng.Start, rng.End)
	if err != nil {
		s.fail(w, r, log.OpFetch, err)
		return
	}
	NewJSONResponse().Data(st).Write(w)
}

func (s *Server) handleApplicationOpening(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	o, err := s.service.SetApplicationOpening(r.Context(), p.Get("date"), p.Get("amount"), p.Get("note"))
	if err != nil {
		s.fail(w, r, log.OpUpsert, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(o).Write(w)
}

// handleEnqueueJob stores and publishes a job, answering 202 with its id.
func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	kind := core.JobKind(strings.ToLower(p.Get("kind")))
	if kind == "" {
		kind = core.JobRecalculate
	}
	rng := p.Range()

	job, err := s.service.EnqueueJob(r.Context(), kind, rng.Start, rng.End, p.GetOptional("anchor_opening"))
	if err != nil {
		s.fail(w, r, log.OpEnqueue, err)
		return
	}
	atomic.AddInt64(&s.metrics.jobsEnqueued, 1)
	NewJSONResponse().
		Status(http.StatusAccepted).
		Header("Location", "/api/jobs/"+job.ID).
		Data(job).
		Write(w)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "get_job", err)
		return
	}
	NewJSONResponse().Data(job).Write(w)
}

func (s *Server) handlePendingJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.PendingJobs(r.Context())
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	if jobs == nil {
		jobs = []core.RecalcJob{}
	}
	NewJSONResponse().Data(map[string]any{"jobs": jobs}).Write(w)
}
