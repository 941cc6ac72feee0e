// Package server exposes the normalization-and-analytics pipeline over
// HTTP: CSV upload, schema and table introspection, read-only SQL
// passthrough, and natural-language questions.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rshade/costlens/internal/store"
)

// DefaultMaxUploadBytes bounds uploads when the caller does not configure
// a limit. 64 MiB covers multi-month CUR extracts comfortably.
const DefaultMaxUploadBytes = 64 << 20

// DefaultTableName is the raw table used when an upload names none.
const DefaultTableName = "cost_data"

// Server wires the pipeline, the store, and the NL translator behind an
// http.Handler. All handlers are safe for concurrent use; the pipeline
// itself is stateless and the store serializes writes.
type Server struct {
	store          *store.Store
	asker          Asker
	logger         zerolog.Logger
	maxUploadBytes int64
	now            func() time.Time
	registry       *prometheus.Registry
	metrics        metrics
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes overrides the upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUploadBytes = n }
}

// WithClock overrides the clock used to stamp anomalies, recommendations,
// and log lines. Tests use it for deterministic output.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds a Server. asker may be nil, in which case /ask reports the
// translator as unavailable instead of failing at startup.
func New(st *store.Store, asker Asker, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		store:          st,
		asker:          asker,
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
		now:            time.Now,
		registry:       prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registry)
	return s
}

// Handler returns the routed handler, request logging included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /schema", s.handleSchema)
	mux.HandleFunc("GET /tables", s.handleTables)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return s.logRequests(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests emits one summary line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metrics are the service-level Prometheus collectors, registered on the
// server's own registry so tests can build servers side by side.
type metrics struct {
	uploads     prometheus.Counter
	rowsIn      prometheus.Counter
	rowsDropped prometheus.Counter
	queries     prometheus.Counter
	questions   prometheus.Counter
	batchCost   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) metrics {
	factory := promauto.With(reg)
	return metrics{
		uploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "costlens_uploads_total",
			Help: "Billing exports processed successfully.",
		}),
		rowsIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "costlens_rows_ingested_total",
			Help: "Raw rows that produced a canonical cost event.",
		}),
		rowsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "costlens_rows_dropped_total",
			Help: "Raw rows dropped for a missing date or non-positive cost.",
		}),
		queries: factory.NewCounter(prometheus.CounterOpts{
			Name: "costlens_queries_total",
			Help: "Passthrough SQL queries executed.",
		}),
		questions: factory.NewCounter(prometheus.CounterOpts{
			Name: "costlens_questions_total",
			Help: "Natural-language questions answered.",
		}),
		batchCost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "costlens_last_batch_cost",
			Help: "Total cost of the most recently processed batch.",
		}),
	}
}
