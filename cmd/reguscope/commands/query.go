package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reguscope/reguscope-go/internal/logging"
)

// NewQueryCmd constructs the `reguscope query` command, which runs one
// compliance question through the full pipeline and prints the result.
func NewQueryCmd() *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a compliance question from the indexed regulations",
		Long: `Run a single compliance question through the query pipeline.

The question is decomposed into sub-questions, relevant regulation chunks are
retrieved from the vector index, and a cited answer is synthesized.

Examples:
  reguscope query "What are the GDPR data retention requirements?"
  reguscope query --json "Which records must controllers maintain under Article 30?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			workflow, _, _, closeStore, err := buildWorkflow(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer closeStore()

			question := strings.Join(args, " ")
			result := workflow.Invoke(ctx, question, userID, "")

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Println(result.Answer)
			if len(result.Citations) > 0 {
				fmt.Println("\nCitations:")
				data, err := json.MarshalIndent(result.Citations, "", "  ")
				if err != nil {
					return fmt.Errorf("query: marshal citations: %w", err)
				}
				fmt.Println(string(data))
			}
			fmt.Printf("\ntrace_id: %s\n", result.TraceID)
			if !result.ValidationPassed {
				fmt.Fprintln(os.Stderr, "warning: answer failed the automated quality check")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID recorded in logs and audit entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}
