package pipeline

import (
	"context"
	"unicode/utf8"

	"github.com/reguscope/reguscope-go/internal/logging"
)

// minAnswerLength is the threshold, in characters, below which an answer is
// considered too short to be substantive. The synthesis failure sentinel is
// shorter than this, so failed synthesis always fails validation.
const minAnswerLength = 50

// ValidationStage applies a cheap structural quality gate to the finished
// answer. It is a pure predicate over the state: it mutates nothing but
// ValidationPassed and never errors.
type ValidationStage struct{}

func (s *ValidationStage) Name() string { return "validate" }

func (s *ValidationStage) Run(ctx context.Context, state *State) error {
	answerLen := utf8.RuneCountInString(state.SynthesizedAnswer)
	state.ValidationPassed = answerLen > minAnswerLength && len(state.Citations) > 0

	if !state.ValidationPassed {
		logging.FromContext(ctx).Warn("answer failed validation",
			"trace_id", state.TraceID,
			"answer_length", answerLen,
			"citations", len(state.Citations))
	}
	return nil
}
