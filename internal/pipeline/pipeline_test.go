package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/reguscope/reguscope-go/internal/llm"
	"github.com/reguscope/reguscope-go/internal/rag"
)

// fakeCompleter routes decomposition and synthesis prompts to separate
// canned responses so one fake can serve both LLM stages.
type fakeCompleter struct {
	decomposeResp string
	decomposeErr  error
	synthesisResp string
	synthesisErr  error

	requests []*llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req *llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if strings.Contains(req.Prompt, "Break this regulatory question") {
		return f.decomposeResp, f.decomposeErr
	}
	return f.synthesisResp, f.synthesisErr
}

type fakeRetriever struct {
	docs    map[string][]rag.Document
	err     error
	errFor  string
	queries []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int) ([]rag.Document, error) {
	f.queries = append(f.queries, query)
	if f.err != nil && (f.errFor == "" || f.errFor == query) {
		return nil, f.err
	}
	docs := f.docs[query]
	if len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}

func doc(id, section, content string, score float32) rag.Document {
	return rag.Document{
		Content: content,
		Score:   score,
		Metadata: map[string]string{
			"document_ID":    id,
			"section_number": section,
			"effective_date": "2024-01-01",
			"jurisdiction":   "EU",
		},
	}
}

const goodAnswer = "Under GDPR Article 30, controllers must maintain records of processing activities [Source 1]."

func newTestWorkflow(t *testing.T, completer llm.Completer, retriever rag.Retriever) *Workflow {
	t.Helper()
	w, err := New(Config{LLM: completer, Retriever: retriever})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func TestInvokeSuccess(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{
		decomposeResp: "1. What does GDPR require for record keeping?\n2. Which article covers processing records?",
		synthesisResp: goodAnswer,
	}
	retriever := &fakeRetriever{docs: map[string][]rag.Document{
		"1. What does GDPR require for record keeping?": {doc("GDPR", "30", "Records of processing activities.", 0.91)},
		"2. Which article covers processing records?":   {doc("GDPR", "30.1", "Each controller shall maintain a record.", 0.8754)},
	}}

	result := newTestWorkflow(t, completer, retriever).Invoke(context.Background(), "What are GDPR record keeping requirements?", "user-1", "trace-1")

	if result.Answer != goodAnswer {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.TraceID != "trace-1" {
		t.Errorf("TraceID = %q, want trace-1", result.TraceID)
	}
	if !result.ValidationPassed {
		t.Error("ValidationPassed = false, want true")
	}
	if result.Diagnostic != "" {
		t.Errorf("Diagnostic = %q, want empty", result.Diagnostic)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("citations = %d, want 2", len(result.Citations))
	}

	c1, ok := result.Citations["source_1"].(Citation)
	if !ok {
		t.Fatalf("source_1 is %T, want Citation", result.Citations["source_1"])
	}
	if c1.DocumentID != "GDPR" || c1.SectionNumber != "30" {
		t.Errorf("source_1 = %+v", c1)
	}
	if c1.Snippet != "Records of processing activities...." {
		t.Errorf("source_1 snippet = %q", c1.Snippet)
	}

	c2 := result.Citations["source_2"].(Citation)
	if c2.RelevanceScore != 0.875 {
		t.Errorf("source_2 relevance = %v, want 0.875", c2.RelevanceScore)
	}
}

func TestInvokeGeneratesTraceID(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{decomposeResp: "1. q", synthesisResp: goodAnswer}
	retriever := &fakeRetriever{docs: map[string][]rag.Document{"1. q": {doc("D", "1", "text", 0.5)}}}

	result := newTestWorkflow(t, completer, retriever).Invoke(context.Background(), "query", "", "")
	if result.TraceID == "" {
		t.Error("TraceID not generated")
	}
}

func TestDecompositionFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		completer *fakeCompleter
	}{
		{"llm error", &fakeCompleter{decomposeErr: errors.New("connection refused"), synthesisResp: goodAnswer}},
		{"unparseable output", &fakeCompleter{decomposeResp: "I cannot split this question.", synthesisResp: goodAnswer}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			const query = "What is the data retention rule?"
			retriever := &fakeRetriever{docs: map[string][]rag.Document{
				query: {doc("CCPA", "1798.105", "Retention rules.", 0.7)},
			}}

			result := newTestWorkflow(t, tt.completer, retriever).Invoke(context.Background(), query, "u", "t")

			if len(retriever.queries) != 1 || retriever.queries[0] != query {
				t.Errorf("retriever queried with %q, want only the original query", retriever.queries)
			}
			if result.Diagnostic == "" {
				t.Error("Diagnostic empty, want decomposition failure recorded")
			}
			if result.Answer != goodAnswer {
				t.Errorf("Answer = %q, fallback should still synthesize", result.Answer)
			}
		})
	}
}

func TestRetrievalPartialFailure(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{
		decomposeResp: "1. first\n2. second",
		synthesisResp: goodAnswer,
	}
	retriever := &fakeRetriever{
		err:    errors.New("search unavailable"),
		errFor: "1. first",
		docs: map[string][]rag.Document{
			"2. second": {doc("SOX", "404", "Internal controls.", 0.6)},
		},
	}

	result := newTestWorkflow(t, completer, retriever).Invoke(context.Background(), "q", "u", "t")

	if len(result.Citations) != 1 {
		t.Errorf("citations = %d, want 1 from the surviving sub-query", len(result.Citations))
	}
	if !strings.Contains(result.Diagnostic, "retrieval failed") {
		t.Errorf("Diagnostic = %q, want retrieval failure recorded", result.Diagnostic)
	}
	if !result.ValidationPassed {
		t.Error("partial retrieval should still validate with a long answer and citations")
	}
}

func TestRetrievalBoundsContexts(t *testing.T) {
	t.Parallel()

	var many []rag.Document
	for i := 0; i < 10; i++ {
		many = append(many, doc("D", fmt.Sprint(i), "c", 0.5))
	}
	completer := &fakeCompleter{decomposeResp: "1. a\n2. b", synthesisResp: goodAnswer}
	retriever := &fakeRetriever{docs: map[string][]rag.Document{"1. a": many, "2. b": many}}

	result := newTestWorkflow(t, completer, retriever).Invoke(context.Background(), "q", "u", "t")

	// topK defaults to 3, two sub-queries, so at most 6 citations.
	if len(result.Citations) != 6 {
		t.Errorf("citations = %d, want 6 (topK * sub-queries)", len(result.Citations))
	}
}

func TestSynthesisFailure(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{
		decomposeResp: "1. q",
		synthesisErr:  errors.New("model overloaded"),
	}
	retriever := &fakeRetriever{docs: map[string][]rag.Document{"1. q": {doc("D", "1", "text", 0.5)}}}

	result := newTestWorkflow(t, completer, retriever).Invoke(context.Background(), "q", "u", "t")

	if result.Answer != "Error generating answer." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.Citations) != 0 {
		t.Errorf("citations = %d, want 0 after synthesis failure", len(result.Citations))
	}
	if result.ValidationPassed {
		t.Error("failed synthesis must not pass validation")
	}
}

func TestEmptyContextsStillSynthesize(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{
		decomposeResp: "1. q",
		synthesisResp: "The provided sources do not contain information to answer this compliance question at all.",
	}
	retriever := &fakeRetriever{docs: map[string][]rag.Document{}}

	result := newTestWorkflow(t, completer, retriever).Invoke(context.Background(), "q", "u", "t")

	if len(completer.requests) != 2 {
		t.Fatalf("LLM calls = %d, want decomposition and synthesis", len(completer.requests))
	}
	synth := completer.requests[1]
	if !strings.Contains(synth.Prompt, "Sources:\n\n") {
		t.Errorf("synthesis prompt should carry an empty source block:\n%s", synth.Prompt)
	}
	if result.ValidationPassed {
		t.Error("no citations must fail validation even with a long answer")
	}
}

func TestValidationBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		answer    string
		citations int
		want      bool
	}{
		{"exactly threshold", strings.Repeat("a", 50), 1, false},
		{"one over threshold", strings.Repeat("a", 51), 1, true},
		{"long but uncited", strings.Repeat("a", 51), 0, false},
		// 50 section marks are 100 bytes but only 50 characters.
		{"multibyte at threshold", strings.Repeat("§", 50), 1, false},
		{"multibyte over threshold", strings.Repeat("§", 51), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			state := newState("q", "u", "t")
			state.SynthesizedAnswer = tt.answer
			for i := 0; i < tt.citations; i++ {
				state.Citations[fmt.Sprintf("source_%d", i+1)] = Citation{}
			}

			if err := (&ValidationStage{}).Run(context.Background(), state); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if state.ValidationPassed != tt.want {
				t.Errorf("ValidationPassed = %v, want %v", state.ValidationPassed, tt.want)
			}
		})
	}
}

func TestInvokeContainsPanics(t *testing.T) {
	t.Parallel()

	w := newTestWorkflow(t, &fakeCompleter{}, &fakeRetriever{})
	w.stages[0] = panicStage{}

	result := w.Invoke(context.Background(), "q", "u", "trace-p")

	if !strings.HasPrefix(result.Answer, "I encountered an error processing your compliance query: ") {
		t.Errorf("Answer = %q", result.Answer)
	}
	if _, ok := result.Citations["error"]; !ok {
		t.Error("error result should carry an error citation entry")
	}
	if result.TraceID != "trace-p" {
		t.Errorf("TraceID = %q, want preserved on error", result.TraceID)
	}
}

type panicStage struct{}

func (panicStage) Name() string                      { return "panic" }
func (panicStage) Run(context.Context, *State) error { panic("boom") }

func TestInvokeTimeout(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{decomposeResp: "1. q", synthesisResp: goodAnswer}
	retriever := &fakeRetriever{}
	w, err := New(Config{LLM: completer, Retriever: retriever, Timeout: time.Nanosecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result := w.Invoke(context.Background(), "q", "u", "t")

	if !strings.Contains(result.Answer, "timed out") {
		t.Errorf("Answer = %q, want timeout error result", result.Answer)
	}
}

func TestInvokeIdempotent(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{decomposeResp: "1. q", synthesisResp: goodAnswer}
	retriever := &fakeRetriever{docs: map[string][]rag.Document{"1. q": {doc("D", "1", "text", 0.5)}}}
	w := newTestWorkflow(t, completer, retriever)

	first := w.Invoke(context.Background(), "q", "u", "t1")
	second := w.Invoke(context.Background(), "q", "u", "t2")

	if first.Answer != second.Answer || len(first.Citations) != len(second.Citations) {
		t.Error("repeated invocations diverged; state leaked between calls")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Retriever: &fakeRetriever{}}); err == nil {
		t.Error("New() without LLM should error")
	}
	if _, err := New(Config{LLM: &fakeCompleter{}}); err == nil {
		t.Error("New() without retriever should error")
	}
}
