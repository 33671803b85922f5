// Package llm provides the completion-style language model client used by the
// compliance query pipeline. The primary backend is a llama.cpp-compatible
// /completion HTTP endpoint (typically running on a serverless container with
// cold-start latency); any chat backend from the provider package can be
// adapted through ChatCompleter.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/reguscope/reguscope-go/internal/provider"
)

// ErrTimeout indicates the language model did not respond within the
// configured deadline. Stages treat this as a recoverable failure, not a
// pipeline-fatal one.
var ErrTimeout = errors.New("llm: request timeout")

// DefaultStop is the stop-sequence set sent with every completion request.
// The synthesis and decomposition prompts are written so a blank line or a
// "###" heading marks the end of useful output.
var DefaultStop = []string{"\n\n", "###"}

// Request holds the parameters for a single completion call.
type Request struct {
	// Prompt is the full instruction + grounding text sent to the model.
	Prompt string

	// MaxTokens bounds the generated output length.
	MaxTokens int

	// Temperature controls sampling randomness (0.0–1.0).
	Temperature float32

	// Stop is the set of stop sequences. Nil means DefaultStop.
	Stop []string
}

// Completer is the interface the pipeline stages call to generate text.
// Implementations must be safe to call from multiple goroutines and must
// convert backend timeouts into errors wrapping ErrTimeout.
type Completer interface {
	// Complete sends the prompt and returns the generated text, trimmed of
	// surrounding whitespace.
	Complete(ctx context.Context, req *Request) (string, error)
}

// NewFromEnv constructs a Completer from environment variables.
//
//	LLM_PROVIDER = llamacpp (default) | ollama | openai | azure | bedrock | gemini
//
// For llamacpp, LLM_URL points at the /completion server (default
// http://localhost:8081) and LLM_TIMEOUT is the per-call deadline in seconds
// (default 60 — generous because of serverless cold starts). All other
// backends are constructed through the provider factory and wrapped in a
// ChatCompleter.
func NewFromEnv(ctx context.Context) (Completer, error) {
	backend := os.Getenv("LLM_PROVIDER")
	if backend == "" || backend == "llamacpp" {
		url := os.Getenv("LLM_URL")
		if url == "" {
			url = "http://localhost:8081"
		}
		timeout := 60 * time.Second
		if v := os.Getenv("LLM_TIMEOUT"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				timeout = time.Duration(secs) * time.Second
			}
		}
		return NewLlamaServer(&LlamaServerConfig{BaseURL: url, Timeout: timeout}), nil
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: failed to initialise %s backend: %w", backend, err)
	}
	return NewChatCompleter(chatModel, backend), nil
}
