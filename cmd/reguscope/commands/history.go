package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/reguscope/reguscope-go/internal/store"
)

// NewHistoryCmd constructs the `reguscope history` command, which lists
// recent queries from the audit store.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent compliance queries from the audit log",
		Long: `Print the most recent compliance queries recorded by the server,
newest first, with their validation outcome and trace IDs.

The audit database path is taken from REGUSCOPE_AUDIT_DB, defaulting to
~/.reguscope/queries.db.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := os.Getenv("REGUSCOPE_AUDIT_DB")
			if dbPath == "" || dbPath == "disabled" {
				var err error
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
			}

			s, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("history: open %s: %w", dbPath, err)
			}
			defer s.Close()

			recs, err := s.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(recs) == 0 {
				fmt.Println("no queries recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tUSER\tVALIDATED\tTRACE\tQUERY")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
					rec.CreatedAt.Format(time.DateTime),
					rec.UserID,
					rec.ValidationPassed,
					rec.TraceID,
					truncate(rec.Query, 60),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of queries to list")

	return cmd
}

// truncate caps s at n characters for single-line table output. Counted in
// runes so a multibyte character is never split.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
