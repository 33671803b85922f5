// Package commands defines all Cobra CLI commands for the reguscope binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/reguscope/reguscope-go/internal/audit"
	"github.com/reguscope/reguscope-go/internal/config"
	"github.com/reguscope/reguscope-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reguscope",
		Short: "ReguScope — a compliance query assistant grounded in regulatory documents",
		Long: `ReguScope answers regulatory compliance questions from an indexed corpus
of regulation documents.

Each query is decomposed into focused sub-questions, relevant regulation
chunks are retrieved from a Qdrant vector index, and an answer is synthesized
with per-source citations and an automated quality check.

The completion backend is selected via the LLM_PROVIDER environment variable
or a YAML config file (~/.reguscope/config.yaml).
See 'reguscope --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load .env first so its values participate in config layering.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.reguscope/config.yaml)")

	root.AddCommand(
		NewQueryCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
