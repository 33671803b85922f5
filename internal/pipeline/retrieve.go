package pipeline

import (
	"context"
	"fmt"

	"github.com/reguscope/reguscope-go/internal/logging"
	"github.com/reguscope/reguscope-go/internal/rag"
)

const defaultTopK = 3

// metadata keys written by the ingestion pipeline and read back here.
const (
	metaDocumentID    = "document_ID"
	metaSectionNumber = "section_number"
	metaEffectiveDate = "effective_date"
	metaJurisdiction  = "jurisdiction"
)

// RetrievalStage searches the vector index once per decomposed sub-query and
// accumulates results in sub-query order. A failing sub-query is logged and
// skipped; the stage only records a diagnostic, so partial retrieval still
// feeds synthesis.
type RetrievalStage struct {
	retriever rag.Retriever
	topK      int
}

func (s *RetrievalStage) Name() string { return "retrieve" }

func (s *RetrievalStage) Run(ctx context.Context, state *State) error {
	log := logging.FromContext(ctx)

	k := s.topK
	if k <= 0 {
		k = defaultTopK
	}

	for _, sub := range state.DecomposedQueries {
		docs, err := s.retriever.Retrieve(ctx, sub, k)
		if err != nil {
			log.Warn("retrieval failed for sub-query, continuing",
				"trace_id", state.TraceID, "sub_query", sub, "error", err)
			state.recordError(fmt.Sprintf("retrieval failed for %q: %v", sub, err))
			continue
		}
		for _, doc := range docs {
			state.RetrievedContexts = append(state.RetrievedContexts, contextFromDocument(doc, sub))
		}
	}

	log.Debug("retrieval complete", "trace_id", state.TraceID,
		"sub_queries", len(state.DecomposedQueries), "contexts", len(state.RetrievedContexts))
	return nil
}

// contextFromDocument maps a search hit into a ContextItem, substituting
// placeholder values for any compliance metadata the payload is missing so
// downstream citation fields are always populated.
func contextFromDocument(doc rag.Document, subQuery string) ContextItem {
	return ContextItem{
		Content:       doc.Content,
		DocumentID:    metaOrDefault(doc.Metadata, metaDocumentID, "Unknown"),
		SectionNumber: metaOrDefault(doc.Metadata, metaSectionNumber, "N/A"),
		EffectiveDate: metaOrDefault(doc.Metadata, metaEffectiveDate, "Unknown"),
		Jurisdiction:  metaOrDefault(doc.Metadata, metaJurisdiction, "Unknown"),
		Score:         doc.Score,
		SubQuery:      subQuery,
	}
}

func metaOrDefault(meta map[string]string, key, fallback string) string {
	if v, ok := meta[key]; ok && v != "" {
		return v
	}
	return fallback
}
