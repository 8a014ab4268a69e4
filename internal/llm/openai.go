package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ippeo/consultd/internal/retry"
)

// OpenAIConfig configures the OpenAI-backed client.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Dimensions     int
	Temperature    float32
}

// OpenAIClient implements Generator and Embedder on the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
	retry  retry.Policy
	logger *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		retry:  TransientRetry,
		logger: logger,
	}
}

// GenerateText returns a free-text completion.
func (c *OpenAIClient) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	return withRetry(ctx, c.retry, c.logger, "generate_text", func(ctx context.Context) (string, error) {
		return c.complete(ctx, prompt, system, nil)
	})
}

// GenerateJSON returns a completion constrained to a single JSON object.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, prompt, system string) (string, error) {
	format := &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	return withRetry(ctx, c.retry, c.logger, "generate_json", func(ctx context.Context) (string, error) {
		return c.complete(ctx, prompt, system, format)
	})
}

func (c *OpenAIClient) complete(ctx context.Context, prompt, system string, format *openai.ChatCompletionResponseFormat) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          c.cfg.Model,
		Messages:       msgs,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// EmbedDocument embeds text for indexing.
func (c *OpenAIClient) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return withRetry(ctx, c.retry, c.logger, "embed_document", func(ctx context.Context) ([]float32, error) {
		return c.embed(ctx, text)
	})
}

// EmbedQuery embeds text for similarity search. OpenAI embeddings have no
// separate query mode, so this shares the document path.
func (c *OpenAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return withRetry(ctx, c.retry, c.logger, "embed_query", func(ctx context.Context) ([]float32, error) {
		return c.embed(ctx, text)
	})
}

func (c *OpenAIClient) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp.Data[0].Embedding, nil
}
