// Package server implements the HTTP server that exposes the compliance
// query pipeline via a small JSON API. The server is started by the
// `reguscope serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reguscope/reguscope-go/internal/logging"
	"github.com/reguscope/reguscope-go/internal/pipeline"
	"github.com/reguscope/reguscope-go/internal/store"
)

// New constructs a Server around the provided workflow and config.
func New(workflow invoker, cfg *Config) (*Server, error) {
	if workflow == nil {
		return nil, fmt.Errorf("server: workflow must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full pipeline run including LLM calls.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		workflow: workflow,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(reg),
		audit:    cfg.Audit,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: REGUSCOPE_API_KEY not set, authentication disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /compliance-query",
		authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleQuery))))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, s.metrics.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("reguscope server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /compliance-query. The pipeline contains its own
// failures, so this handler always responds 200 with a well-formed body once
// the request itself parses.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserQuery == "" {
		http.Error(w, "user_query is required", http.StatusBadRequest)
		return
	}

	s.metrics.queryActive.Inc()
	start := time.Now()
	result := s.workflow.Invoke(r.Context(), req.UserQuery, req.UserID, req.TraceID)
	elapsed := time.Since(start)
	s.metrics.queryActive.Dec()

	outcome := queryOutcome(result)
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	s.persistAudit(r.Context(), req, result)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error("query encode error", slog.Any("error", err))
	}
}

// queryOutcome maps a pipeline result to a metrics label.
func queryOutcome(result pipeline.Result) string {
	switch {
	case result.Diagnostic != "" && !result.ValidationPassed:
		return "error"
	case !result.ValidationPassed:
		return "rejected"
	default:
		return "ok"
	}
}

// persistAudit writes the answered query to the audit store. Persistence
// failures are logged and never affect the response.
func (s *Server) persistAudit(ctx context.Context, req queryRequest, result pipeline.Result) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(ctx, store.Record{
		UserID:           req.UserID,
		TraceID:          result.TraceID,
		Query:            req.UserQuery,
		Answer:           result.Answer,
		ValidationPassed: result.ValidationPassed,
		Diagnostic:       result.Diagnostic,
	})
	if err != nil {
		logging.FromContext(ctx).Error("audit append failed",
			slog.String("trace_id", result.TraceID), slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
