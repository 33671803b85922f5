package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatCompleter adapts an eino chat model (Ollama, OpenAI, Azure, Bedrock,
// Gemini — anything the provider factory produces) to the Completer
// interface. The prompt is sent as a single user message; generation
// parameters are forwarded per call.
type ChatCompleter struct {
	// chatModel is the underlying eino chat backend.
	chatModel model.ToolCallingChatModel
	// name identifies the backend in readiness responses.
	name string
}

// NewChatCompleter wraps the given chat model as a Completer.
func NewChatCompleter(m model.ToolCallingChatModel, name string) *ChatCompleter {
	return &ChatCompleter{chatModel: m, name: name}
}

// Complete sends the prompt as a user message and returns the generated text.
func (c *ChatCompleter) Complete(ctx context.Context, req *Request) (string, error) {
	stop := req.Stop
	if stop == nil {
		stop = DefaultStop
	}

	msgs := []*schema.Message{schema.UserMessage(req.Prompt)}
	resp, err := c.chatModel.Generate(ctx, msgs,
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(req.Temperature),
		model.WithStop(stop),
	)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("llm: %s did not respond within deadline: %w", c.name, ErrTimeout)
		}
		return "", fmt.Errorf("llm: %s generate failed: %w", c.name, err)
	}
	if resp == nil {
		return "", fmt.Errorf("llm: %s returned nil response", c.name)
	}

	return strings.TrimSpace(resp.Content), nil
}

// Ping probes the backend with a minimal single-token generation. This
// consumes tokens; the llamacpp backend's zero-cost /health probe is
// preferred where available.
func (c *ChatCompleter) Ping(ctx context.Context) error {
	msgs := []*schema.Message{schema.UserMessage("ping")}
	resp, err := c.chatModel.Generate(ctx, msgs, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("llm: %s ping failed: %w", c.name, err)
	}
	if resp == nil {
		return fmt.Errorf("llm: %s ping returned nil response", c.name)
	}
	return nil
}

// Name returns the backend label used in readiness responses.
func (c *ChatCompleter) Name() string { return c.name }
