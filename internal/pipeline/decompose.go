package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/reguscope/reguscope-go/internal/llm"
	"github.com/reguscope/reguscope-go/internal/logging"
)

const (
	decomposeMaxTokens   = 300
	decomposeTemperature = 0.3
)

const decomposePromptFormat = `Task: Break this regulatory question into 2-3 specific sub-questions for searching compliance documents.

Question: %s

Format: Return only numbered sub-questions, one per line.

Sub-questions:`

// DecompositionStage splits the original query into 2-3 focused sub-queries
// so retrieval can cover multiple aspects of a compliance question. It never
// fails the workflow: any LLM error or unparseable output falls back to
// searching with the original query verbatim.
type DecompositionStage struct {
	llm llm.Completer
}

func (s *DecompositionStage) Name() string { return "decompose" }

func (s *DecompositionStage) Run(ctx context.Context, state *State) error {
	log := logging.FromContext(ctx)

	resp, err := s.llm.Complete(ctx, &llm.Request{
		Prompt:      fmt.Sprintf(decomposePromptFormat, state.OriginalQuery),
		MaxTokens:   decomposeMaxTokens,
		Temperature: decomposeTemperature,
		Stop:        llm.DefaultStop,
	})
	if err != nil {
		log.Warn("query decomposition failed, falling back to original query",
			"trace_id", state.TraceID, "error", err)
		state.DecomposedQueries = []string{state.OriginalQuery}
		state.recordError(fmt.Sprintf("decomposition failed: %v", err))
		return nil
	}

	subs := parseSubQueries(resp)
	if len(subs) == 0 {
		log.Warn("decomposition produced no parseable sub-questions, falling back to original query",
			"trace_id", state.TraceID)
		state.DecomposedQueries = []string{state.OriginalQuery}
		state.recordError("decomposition produced no sub-questions")
		return nil
	}

	log.Debug("query decomposed", "trace_id", state.TraceID, "sub_queries", len(subs))
	state.DecomposedQueries = subs
	return nil
}

// parseSubQueries extracts numbered sub-questions from LLM output. A line
// counts as a sub-question when a digit appears within its first three
// characters after trimming, which tolerates "1.", "1)", and " 1 -" style
// numbering without committing to any one format.
func parseSubQueries(text string) []string {
	var subs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !hasLeadingDigit(line) {
			continue
		}
		subs = append(subs, line)
	}
	return subs
}

func hasLeadingDigit(line string) bool {
	for i, r := range line {
		if i >= 3 {
			return false
		}
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
