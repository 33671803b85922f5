package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/reguscope/reguscope-go/internal/logging"
	"github.com/reguscope/reguscope-go/internal/server"
	"github.com/reguscope/reguscope-go/internal/store"
	"github.com/reguscope/reguscope-go/internal/tracing"
)

// NewServeCmd constructs the `reguscope serve` command, which starts the
// HTTP server exposing the compliance query API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ReguScope HTTP server",
		Long: `Start the ReguScope HTTP server on localhost.

The server exposes POST /compliance-query for answering regulatory questions,
plus health, readiness, and Prometheus metrics endpoints.

Examples:
  reguscope serve
  reguscope serve --port 9090
  LLM_PROVIDER=ollama reguscope serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", getEnvOrDefault("LLM_PROVIDER", "llamacpp")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			workflow, completer, qdrantStore, closeStore, err := buildWorkflow(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStore()

			// Open the query audit store. REGUSCOPE_AUDIT_DB overrides the
			// default path (~/.reguscope/queries.db); "disabled" turns it off.
			var auditStore store.QueryStore
			dbPath := os.Getenv("REGUSCOPE_AUDIT_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("audit: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					qs, qsErr := store.Open(dbPath)
					if qsErr != nil {
						log.Warn("audit: failed to open store, disabling", slog.Any("error", qsErr))
					} else {
						auditStore = qs
						defer func() { _ = qs.Close() }()
						log.Info("audit: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("audit: disabled via REGUSCOPE_AUDIT_DB=disabled")
			}

			pingers := []server.Pinger{server.NewQdrantPinger(qdrantStore.Client())}
			if p, ok := completer.(server.Pinger); ok {
				pingers = append([]server.Pinger{p}, pingers...)
			}

			srv, err := server.New(workflow, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("REGUSCOPE_API_KEY"),
				Audit:   auditStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
