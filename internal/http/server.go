// Package http serves the ledger over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"saldo/internal/log"
	"saldo/internal/middleware/ratelimit"
	"saldo/internal/middleware/security"
	"saldo/internal/middleware/trace"
	"saldo/internal/services"
)

// maxBodyBytes bounds request bodies, imports included.
const maxBodyBytes = 4 << 20

// Options carries the optional collaborators of the server.
type Options struct {
	// Ready checks the storage backend for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
	// QueueHealthy reports the AMQP connection state. Nil means no queue.
	QueueHealthy func() bool

	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server
	service *services.LedgerService
	opts    Options
	logger  *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	metrics  *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	logger := opts.Logger.OrDiscard().WithComponent(log.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		service:  svc,
		opts:     opts,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
		metrics:  newAppMetrics(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/recalculate", s.handleRecalculate)
	mux.HandleFunc("POST /api/resync", s.handleResync)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/reconciliation", s.handleReconciliation)
	mux.HandleFunc("GET /api/balances", s.handleBalances)
	mux.HandleFunc("GET /api/application-statement", s.handleApplicationStatement)
	mux.HandleFunc("POST /api/application-openings", s.handleApplicationOpening)
	mux.HandleFunc("POST /api/jobs", s.handleEnqueueJob)
	mux.HandleFunc("GET /api/jobs", s.handlePendingJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	var h http.Handler = mux
	h = s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimit, http.MethodPost)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = detector.Middleware(logger)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
