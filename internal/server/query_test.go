package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reguscope/reguscope-go/internal/pipeline"
	"github.com/reguscope/reguscope-go/internal/store"
)

// okHandler is a trivial handler used by middleware tests.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// fakeWorkflow is a test double for the invoker interface.
type fakeWorkflow struct {
	result pipeline.Result

	gotQuery   string
	gotUserID  string
	gotTraceID string
}

func (f *fakeWorkflow) Invoke(_ context.Context, query, userID, traceID string) pipeline.Result {
	f.gotQuery = query
	f.gotUserID = userID
	f.gotTraceID = traceID
	return f.result
}

// fakeAudit records appended audit entries in memory.
type fakeAudit struct {
	records []store.Record
}

func (f *fakeAudit) Append(_ context.Context, rec store.Record) error {
	f.records = append(f.records, rec)
	return nil
}
func (f *fakeAudit) Recent(context.Context, int) ([]store.Record, error) { return f.records, nil }
func (f *fakeAudit) Close() error                                        { return nil }

// newTestServer builds a *Server with a fake workflow and a private registry.
func newTestServer() *Server {
	s, err := New(&fakeWorkflow{}, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		panic(err)
	}
	return s
}

func postQuery(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/compliance-query", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.handleQuery(w, req)
	return w
}

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()

	wf := &fakeWorkflow{result: pipeline.Result{
		Answer: "Controllers must maintain records of processing activities [Source 1].",
		Citations: map[string]any{
			"source_1": pipeline.Citation{DocumentID: "GDPR", SectionNumber: "30"},
		},
		TraceID:          "trace-1",
		ValidationPassed: true,
	}}
	s, err := New(wf, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postQuery(t, s, `{"user_query":"GDPR records?","user_id":"u1","trace_id":"trace-1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if wf.gotQuery != "GDPR records?" || wf.gotUserID != "u1" || wf.gotTraceID != "trace-1" {
		t.Errorf("workflow received %q/%q/%q", wf.gotQuery, wf.gotUserID, wf.gotTraceID)
	}

	var body struct {
		Answer    string            `json:"answer"`
		Citations map[string]any    `json:"citations"`
		TraceID   string            `json:"trace_id"`
		Extra     map[string]string `json:"-"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Answer == "" || body.TraceID != "trace-1" {
		t.Errorf("response: %+v", body)
	}
	if len(body.Citations) != 1 {
		t.Errorf("citations = %d, want 1", len(body.Citations))
	}
}

func TestHandleQuery_ValidationFieldsNotSerialized(t *testing.T) {
	t.Parallel()

	wf := &fakeWorkflow{result: pipeline.Result{
		Answer:     "Error generating answer.",
		Citations:  map[string]any{},
		TraceID:    "t",
		Diagnostic: "synthesis failed: boom",
	}}
	s, _ := New(wf, &Config{Registry: prometheus.NewRegistry()})

	w := postQuery(t, s, `{"user_query":"q"}`)

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"ValidationPassed", "Diagnostic", "validation_passed", "diagnostic"} {
		if _, ok := raw[key]; ok {
			t.Errorf("response leaked internal field %q", key)
		}
	}
}

func TestHandleQuery_BadRequests(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	if w := postQuery(t, s, `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", w.Code)
	}
	if w := postQuery(t, s, `{"user_id":"u"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing user_query: expected 400, got %d", w.Code)
	}
}

func TestHandleQuery_AuditPersisted(t *testing.T) {
	t.Parallel()

	audit := &fakeAudit{}
	wf := &fakeWorkflow{result: pipeline.Result{
		Answer:           "A long enough answer citing the relevant regulation [Source 1].",
		Citations:        map[string]any{"source_1": pipeline.Citation{}},
		TraceID:          "trace-a",
		ValidationPassed: true,
	}}
	s, _ := New(wf, &Config{Registry: prometheus.NewRegistry(), Audit: audit})

	postQuery(t, s, `{"user_query":"q","user_id":"u2"}`)

	if len(audit.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(audit.records))
	}
	rec := audit.records[0]
	if rec.UserID != "u2" || rec.TraceID != "trace-a" || !rec.ValidationPassed {
		t.Errorf("audit record: %+v", rec)
	}
}

func TestQueryOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result pipeline.Result
		want   string
	}{
		{"validated", pipeline.Result{ValidationPassed: true}, "ok"},
		{"validated with partial failure", pipeline.Result{ValidationPassed: true, Diagnostic: "retrieval failed"}, "ok"},
		{"rejected", pipeline.Result{}, "rejected"},
		{"errored", pipeline.Result{Diagnostic: "synthesis failed"}, "error"},
	}
	for _, tt := range tests {
		if got := queryOutcome(tt.result); got != tt.want {
			t.Errorf("%s: queryOutcome = %q, want %q", tt.name, got, tt.want)
		}
	}
}
