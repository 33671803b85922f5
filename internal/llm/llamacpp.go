package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// LlamaServer implements Completer against a llama.cpp-style /completion
// endpoint. It is safe for concurrent use; each call is independent and
// stateless.
type LlamaServer struct {
	// baseURL is the server base URL without trailing slash.
	baseURL string
	// client is the shared HTTP client carrying the per-call deadline.
	client *http.Client
}

// LlamaServerConfig holds the settings for constructing a LlamaServer client.
type LlamaServerConfig struct {
	// BaseURL is the completion server base URL (e.g. "https://llm.run.app").
	BaseURL string
	// Timeout is the per-call deadline. Defaults to 60s — the server may be
	// cold starting on the first call.
	Timeout time.Duration
}

// NewLlamaServer constructs a LlamaServer client from the given config.
func NewLlamaServer(cfg *LlamaServerConfig) *LlamaServer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LlamaServer{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// completionRequest is the JSON body sent to the /completion endpoint.
type completionRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float32  `json:"temperature"`
	Stop        []string `json:"stop"`
}

// completionResponse is the JSON body returned from the /completion endpoint.
type completionResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Complete sends the prompt to the /completion endpoint and returns the
// generated text. A timeout is converted into an error wrapping ErrTimeout so
// callers can distinguish a slow (possibly cold-starting) backend from a
// hard transport failure.
func (s *LlamaServer) Complete(ctx context.Context, req *Request) (string, error) {
	stop := req.Stop
	if stop == nil {
		stop = DefaultStop
	}

	body := completionRequest{
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        stop,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/completion", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("llm: no response within deadline (backend may be cold starting): %w", ErrTimeout)
		}
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return "", fmt.Errorf("llm: %s", msg)
	}

	return strings.TrimSpace(result.Content), nil
}

// Ping probes the completion server's /health endpoint. Satisfies the
// server package's Pinger contract together with Name.
func (s *LlamaServer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("llm: create health request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("llm: health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm: health returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Name returns the backend label used in readiness responses.
func (s *LlamaServer) Name() string { return "llamacpp" }

// isTimeout reports whether err is a deadline or cancellation failure from
// the HTTP client.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Timeout()
	}
	return false
}
