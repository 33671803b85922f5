// Package pipeline implements the agentic compliance query workflow: a
// fixed-order state machine that decomposes a user query into sub-queries,
// fans retrieval out across them, synthesizes a grounded answer with
// citations, and validates the result. Each stage contains its own failures
// so a failing sub-query or LLM call never aborts the whole invocation; the
// workflow wraps the rest in a top-level catch-all so the caller always
// receives a well-formed result.
package pipeline

// ContextItem is one retrieved regulation chunk together with the compliance
// metadata needed for citation.
type ContextItem struct {
	// Content is the retrieved text snippet.
	Content string

	// DocumentID identifies the source regulation ("Unknown" when absent).
	DocumentID string

	// SectionNumber is the regulation section ("N/A" when absent).
	SectionNumber string

	// EffectiveDate is the regulation's effective date ("Unknown" when absent).
	EffectiveDate string

	// Jurisdiction is the issuing authority ("Unknown" when absent).
	Jurisdiction string

	// Score is the similarity score from the vector search (higher = more
	// relevant).
	Score float32

	// SubQuery is the decomposed query that produced this context.
	SubQuery string
}

// Citation is the auditable record attached to one source marker in the
// synthesized answer.
type Citation struct {
	// DocumentID identifies the source regulation.
	DocumentID string `json:"document_id"`

	// SectionNumber is the cited regulation section.
	SectionNumber string `json:"section_number"`

	// EffectiveDate is the regulation's effective date.
	EffectiveDate string `json:"effective_date"`

	// Jurisdiction is the issuing authority.
	Jurisdiction string `json:"jurisdiction"`

	// RelevanceScore is the similarity score rounded to 3 decimals.
	RelevanceScore float64 `json:"relevance_score"`

	// Snippet is the cited content truncated to 200 characters plus an
	// ellipsis marker.
	Snippet string `json:"snippet"`
}

// State is the single mutable record threaded through all workflow stages.
// It is owned exclusively by one invocation and never shared across
// concurrent queries — the workflow creates a fresh instance per call.
type State struct {
	// OriginalQuery is the user's question. Immutable once set; never empty.
	OriginalQuery string

	// UserID identifies the requesting user (for logging and audit).
	UserID string

	// TraceID correlates this invocation across logs and traces.
	TraceID string

	// DecomposedQueries is non-empty after the decomposition stage; it
	// defaults to [OriginalQuery] when decomposition fails.
	DecomposedQueries []string

	// RetrievedContexts is ordered sub-query-first, then per-query rank.
	// May legitimately be empty when every sub-query fails or misses.
	RetrievedContexts []ContextItem

	// SynthesizedAnswer is empty until the synthesis stage completes.
	SynthesizedAnswer string

	// Citations maps "source_<n>" (1-indexed, in context order) to its
	// citation record.
	Citations map[string]Citation

	// ValidationPassed is set only by the validation stage.
	ValidationPassed bool

	// Err holds the first non-fatal diagnostic recorded by a stage. It is
	// never cleared by a later stage; subsequent failures are logged but do
	// not overwrite it.
	Err string
}

// newState creates a State with all sequence and mapping fields empty.
func newState(query, userID, traceID string) *State {
	return &State{
		OriginalQuery:     query,
		UserID:            userID,
		TraceID:           traceID,
		DecomposedQueries: []string{},
		RetrievedContexts: []ContextItem{},
		Citations:         map[string]Citation{},
	}
}

// recordError stores the diagnostic if no earlier stage has recorded one.
// First write wins: masking of later partial failures is a known limitation
// of the single diagnostic field — later failures remain visible in the log.
func (s *State) recordError(msg string) {
	if s.Err == "" {
		s.Err = msg
	}
}
