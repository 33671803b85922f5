package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reguscope/reguscope-go/internal/pipeline"
	"github.com/reguscope/reguscope-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on POST /compliance-query.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. If nil, a private
	// registry is created and served at GET /metrics.
	Registry *prometheus.Registry
	// Audit persists answered queries. Nil disables audit persistence.
	Audit store.QueryStore
}

// invoker is the interface handleQuery calls to run the compliance pipeline.
// *pipeline.Workflow satisfies it; tests inject a fake.
type invoker interface {
	// Invoke runs the full query workflow and always returns a well-formed result.
	Invoke(ctx context.Context, query, userID, traceID string) pipeline.Result
}

// Server is the HTTP server that exposes the compliance query pipeline.
type Server struct {
	// workflow runs compliance queries; a fake in tests.
	workflow invoker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// audit persists answered queries; nil when disabled.
	audit store.QueryStore
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /compliance-query.
type queryRequest struct {
	// UserQuery is the compliance question. Required.
	UserQuery string `json:"user_query"`
	// UserID identifies the requesting user for logging and audit.
	UserID string `json:"user_id"`
	// TraceID is an optional caller-supplied correlation ID; generated
	// server-side when absent.
	TraceID string `json:"trace_id"`
}
