package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reguscope/reguscope-go/internal/llm"
	"github.com/reguscope/reguscope-go/internal/logging"
	"github.com/reguscope/reguscope-go/internal/rag"
)

// errorAnswerPrefix prefixes the answer returned when the workflow itself
// fails (panic, timeout, or a stage returning an error).
const errorAnswerPrefix = "I encountered an error processing your compliance query: "

// Stage is one step of the query workflow. Stages contain their own expected
// failures in the state; a returned error means the stage could not produce a
// usable state at all and aborts the workflow.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *State) error
}

// Config assembles a Workflow from its external dependencies.
type Config struct {
	// LLM serves both decomposition and synthesis completions.
	LLM llm.Completer

	// Retriever answers sub-query searches against the vector index.
	Retriever rag.Retriever

	// TopK is the number of contexts fetched per sub-query (default 3).
	TopK int

	// Timeout bounds a single invocation end to end. Zero means no
	// workflow-imposed deadline beyond the caller's context.
	Timeout time.Duration
}

// Result is the terminal outcome of one invocation. Answer, Citations and
// TraceID form the wire shape; the unexported-to-JSON fields carry the
// validation outcome and diagnostic to in-process consumers (metrics, audit).
type Result struct {
	Answer    string         `json:"answer"`
	Citations map[string]any `json:"citations"`
	TraceID   string         `json:"trace_id,omitempty"`

	ValidationPassed bool   `json:"-"`
	Diagnostic       string `json:"-"`
}

// Workflow runs the four pipeline stages in fixed order against a fresh
// State per invocation. Safe for concurrent use.
type Workflow struct {
	stages  []Stage
	timeout time.Duration
}

// New wires the standard decompose, retrieve, synthesize, validate sequence.
func New(cfg Config) (*Workflow, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("pipeline: LLM completer is required")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever is required")
	}
	return &Workflow{
		stages: []Stage{
			&DecompositionStage{llm: cfg.LLM},
			&RetrievalStage{retriever: cfg.Retriever, topK: cfg.TopK},
			&SynthesisStage{llm: cfg.LLM},
			&ValidationStage{},
		},
		timeout: cfg.Timeout,
	}, nil
}

// Invoke runs the workflow for one query. It always returns a well-formed
// Result: stage errors, timeouts and panics all collapse into a contained
// error result rather than propagating to the caller. A trace ID is
// generated when the caller does not supply one.
func (w *Workflow) Invoke(ctx context.Context, query, userID, traceID string) Result {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	log := logging.FromContext(ctx)

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	state := newState(query, userID, traceID)

	result, failure := w.run(ctx, log, state)
	if failure != "" {
		log.Error("compliance query failed", "trace_id", traceID, "user_id", userID, "error", failure)
		return Result{
			Answer:     errorAnswerPrefix + failure,
			Citations:  map[string]any{"error": failure},
			TraceID:    traceID,
			Diagnostic: failure,
		}
	}
	return result
}

// run executes the stages and reports a non-empty failure string when the
// workflow cannot complete. The deferred recover converts stage panics into
// the same contained failure path as stage errors.
func (w *Workflow) run(ctx context.Context, log *slog.Logger, state *State) (result Result, failure string) {
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Sprintf("internal error: %v", r)
		}
	}()

	for _, stage := range w.stages {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Sprintf("query timed out before %s stage: %v", stage.Name(), err)
		}

		start := time.Now()
		if err := stage.Run(ctx, state); err != nil {
			return Result{}, fmt.Sprintf("%s stage failed: %v", stage.Name(), err)
		}
		log.Debug("stage complete", "trace_id", state.TraceID,
			"stage", stage.Name(), "duration", time.Since(start))
	}

	citations := make(map[string]any, len(state.Citations))
	for key, c := range state.Citations {
		citations[key] = c
	}
	return Result{
		Answer:           state.SynthesizedAnswer,
		Citations:        citations,
		TraceID:          state.TraceID,
		ValidationPassed: state.ValidationPassed,
		Diagnostic:       state.Err,
	}, ""
}
