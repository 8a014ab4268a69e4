package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ippeo/consultd/internal/retry"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

const jsonOnlyInstruction = "Respond with a single JSON object and nothing else. Do not wrap it in markdown."

// AnthropicClient implements Generator on the Anthropic Messages API. It has
// no embedding endpoint; pair it with an Embedder from another provider.
type AnthropicClient struct {
	apiKey    string
	model     string
	maxTokens int
	apiURL    string
	client    *http.Client
	retry     retry.Policy
	logger    *slog.Logger
}

func NewAnthropicClient(apiKey, model string, logger *slog.Logger) *AnthropicClient {
	return &AnthropicClient{
		apiKey:    apiKey,
		model:     model,
		maxTokens: 8192,
		apiURL:    anthropicURL,
		client:    &http.Client{Timeout: 120 * time.Second},
		retry:     TransientRetry,
		logger:    logger,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	return withRetry(ctx, c.retry, c.logger, "generate_text", func(ctx context.Context) (string, error) {
		return c.complete(ctx, prompt, system)
	})
}

// GenerateJSON appends a JSON-only instruction to the system prompt; the
// Messages API has no response-format switch.
func (c *AnthropicClient) GenerateJSON(ctx context.Context, prompt, system string) (string, error) {
	sys := jsonOnlyInstruction
	if system != "" {
		sys = system + "\n\n" + jsonOnlyInstruction
	}
	return withRetry(ctx, c.retry, c.logger, "generate_json", func(ctx context.Context) (string, error) {
		return c.complete(ctx, prompt, sys)
	})
}

func (c *AnthropicClient) complete(ctx context.Context, prompt, system string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return "", &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error.Type + ": " + errResp.Error.Message}
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
