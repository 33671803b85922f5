package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/reguscope/reguscope-go/internal/budget"
	"github.com/reguscope/reguscope-go/internal/llm"
	"github.com/reguscope/reguscope-go/internal/logging"
)

const (
	synthesizeMaxTokens   = 600
	synthesizeTemperature = 0.5

	// answerFailedSentinel is stored as the answer when the synthesis LLM
	// call fails; validation rejects it by construction via empty citations.
	answerFailedSentinel = "Error generating answer."

	// snippetLength bounds the cited content excerpt.
	snippetLength = 200
)

const synthesizePromptFormat = `You are a regulatory compliance assistant. Answer the question using ONLY the provided sources.

Sources:
%s

Question: %s

Instructions:
- Answer based only on the provided sources
- Cite sources using [Source X] format
- If sources don't contain enough information, state what's missing
- Be concise and precise

Answer:`

// SynthesisStage composes the retrieved contexts into a numbered source
// block, asks the LLM for a grounded answer, and builds one citation per
// retrieved context. With no contexts at all it still calls the LLM, whose
// instructions direct it to state that information is missing.
type SynthesisStage struct {
	llm llm.Completer
}

func (s *SynthesisStage) Name() string { return "synthesize" }

func (s *SynthesisStage) Run(ctx context.Context, state *State) error {
	log := logging.FromContext(ctx)

	prompt := fmt.Sprintf(synthesizePromptFormat,
		buildSourceBlock(state.RetrievedContexts), state.OriginalQuery)

	if budget.ExceedsBudget(prompt, budget.DefaultMaxContextTokens) {
		log.Warn("synthesis prompt may exceed model context window",
			"trace_id", state.TraceID,
			"estimated_tokens", budget.Estimate(prompt),
			"contexts", len(state.RetrievedContexts))
	}

	resp, err := s.llm.Complete(ctx, &llm.Request{
		Prompt:      prompt,
		MaxTokens:   synthesizeMaxTokens,
		Temperature: synthesizeTemperature,
		Stop:        llm.DefaultStop,
	})
	if err != nil {
		log.Warn("answer synthesis failed", "trace_id", state.TraceID, "error", err)
		state.SynthesizedAnswer = answerFailedSentinel
		state.Citations = map[string]Citation{}
		state.recordError(fmt.Sprintf("synthesis failed: %v", err))
		return nil
	}

	state.SynthesizedAnswer = strings.TrimSpace(resp)
	state.Citations = buildCitations(state.RetrievedContexts)
	return nil
}

// buildSourceBlock renders contexts as numbered source entries. Numbering is
// 1-indexed in context order so [Source N] markers in the answer line up
// with the source_N citation keys.
func buildSourceBlock(contexts []ContextItem) string {
	blocks := make([]string, 0, len(contexts))
	for i, c := range contexts {
		blocks = append(blocks, fmt.Sprintf("[Source %d] Doc: %s, Section: %s\n%s",
			i+1, c.DocumentID, c.SectionNumber, c.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// buildCitations emits one citation per retrieved context, keyed source_1
// through source_n in context order. Every context is cited regardless of
// whether the answer references it; the full set is the audit trail of what
// the answer was grounded on.
func buildCitations(contexts []ContextItem) map[string]Citation {
	citations := make(map[string]Citation, len(contexts))
	for i, c := range contexts {
		citations[fmt.Sprintf("source_%d", i+1)] = Citation{
			DocumentID:     c.DocumentID,
			SectionNumber:  c.SectionNumber,
			EffectiveDate:  c.EffectiveDate,
			Jurisdiction:   c.Jurisdiction,
			RelevanceScore: math.Round(float64(c.Score)*1000) / 1000,
			Snippet:        snippet(c.Content),
		}
	}
	return citations
}

// snippet bounds content to snippetLength characters. Truncation counts
// runes, not bytes, so section marks and other multibyte characters common
// in regulation text are never split mid-sequence.
func snippet(content string) string {
	if r := []rune(content); len(r) > snippetLength {
		content = string(r[:snippetLength])
	}
	return content + "..."
}
