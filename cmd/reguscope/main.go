// Command reguscope is the entry point for the ReguScope compliance query
// assistant. It provides a CLI interface (via Cobra) and an HTTP server that
// exposes the agentic compliance query pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/reguscope/reguscope-go/cmd/reguscope/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
