// Package llm is the client for the local generation endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whisperjournal/internal/models"
	"whisperjournal/internal/prompt"
)

const (
	// Generation can take minutes on a laptop-class model.
	defaultHTTPTimeout = 10 * time.Minute

	// Response size limit to keep a malformed endpoint from exhausting memory.
	maxResponseSize = 10 * 1024 * 1024
)

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrUnreachable indicates the local endpoint could not be reached at all.
var ErrUnreachable = errors.New("llm endpoint unreachable")

// Client talks to a local text-generation server speaking the /api/generate
// contract (Ollama-compatible).
type Client struct {
	baseURL    string
	model      string
	builder    *prompt.Builder
	httpClient httpDoer
}

func NewClient(baseURL, model string, builder *prompt.Builder) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		builder:    builder,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Result carries the generated output. Content is the full journal body for a
// brain dump; Reflection is the short paragraph for a daily reflection.
type Result struct {
	Content    string
	Reflection string
}

// Generate produces the LLM output for one entry. Quick notes make no call and
// return an empty result; a daily reflection with every answer blank also
// skips the call.
func (c *Client) Generate(ctx context.Context, transcript string, answers models.PromptAnswers, entryType string) (Result, error) {
	switch entryType {
	case models.TypeQuickNote:
		return Result{}, nil
	case models.TypeBrainDump:
		text, err := c.complete(ctx, c.builder.BuildJournalPrompt(transcript))
		if err != nil {
			return Result{}, err
		}
		return Result{Content: text}, nil
	case models.TypeDailyReflection:
		p := c.builder.BuildReflectionPrompt(answers)
		if p == "" {
			return Result{}, nil
		}
		text, err := c.complete(ctx, p)
		if err != nil {
			return Result{}, err
		}
		return Result{Reflection: text}, nil
	}
	return Result{}, fmt.Errorf("unknown entry type %q", entryType)
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// complete makes one synchronous call to {base}/api/generate.
func (c *Client) complete(ctx context.Context, promptText string) (_ string, err error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: promptText,
		Stream: false,
		Options: generateOptions{
			Temperature: 0.7,
			NumPredict:  4096,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}
