package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ippeo/consultd/internal/analysis"
	"github.com/ippeo/consultd/internal/config"
	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/hermes"
	"github.com/ippeo/consultd/internal/llm"
	"github.com/ippeo/consultd/internal/pipeline"
	"github.com/ippeo/consultd/internal/preprocess"
	"github.com/ippeo/consultd/internal/rag"
	"github.com/ippeo/consultd/internal/report"
	"github.com/ippeo/consultd/internal/slack"
	"github.com/ippeo/consultd/internal/store"
)

// app holds the wired dependencies shared by every command.
type app struct {
	store     *store.Store
	redis     goredis.UniversalClient
	hermes    *hermes.Client
	retriever *rag.Retriever
	pipeline  *pipeline.Pipeline
}

// newApp connects to every backing service. When natsRequired is false a
// NATS failure only disables event publishing.
func newApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer, natsRequired bool) (*app, error) {
	logger := slog.Default()
	a := &app{}

	// Database
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := store.New(ctx, cfg.DatabaseURL, cfg.ReportLinkTTL)
	if err != nil {
		return nil, err
	}
	a.store = db
	slog.Info("database connected")

	// Model providers
	if cfg.OpenAIAPIKey == "" {
		a.Close()
		return nil, errors.New("OPENAI_API_KEY is required for embeddings")
	}
	openaiClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		Model:          cfg.OpenAIModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Dimensions:     cfg.EmbeddingDimensions,
	}, logger)

	var gen llm.Generator = openaiClient
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			a.Close()
			return nil, errors.New("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
		gen = llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger)
		slog.Info("anthropic generator ready", "model", cfg.AnthropicModel)
	case "openai":
		slog.Info("openai generator ready", "model", cfg.OpenAIModel)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}

	// Embedding cache (optional)
	if cfg.RedisURL != "" {
		opt, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = goredis.NewClient(opt)
		slog.Info("embedding cache ready", "ttl", cfg.EmbeddingCacheTTL)
	} else {
		slog.Warn("REDIS_URL not set, embeddings are not cached")
	}
	embedder := llm.NewCachedEmbedder(openaiClient, a.redis, cfg.EmbeddingModel, cfg.EmbeddingCacheTTL, reg, logger)
	a.retriever = rag.New(embedder, db, logger)

	// NATS/Hermes
	hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
	switch {
	case err == nil:
		a.hermes = hc
		slog.Info("NATS connected", "url", cfg.NatsURL)
	case natsRequired:
		a.Close()
		return nil, fmt.Errorf("connect to NATS: %w", err)
	default:
		slog.Warn("NATS unavailable, events will not be published", "error", err)
	}

	deps := pipeline.Deps{
		Store:      db,
		Analyzer:   analysis.New(gen, logger),
		Refiner:    preprocess.NewRefiner(gen, cfg.RefineMaxChars, logger),
		Retriever:  a.retriever,
		Writer:     report.NewWriter(gen, logger),
		Reviewer:   report.NewReviewer(gen, logger),
		Translator: report.NewTranslator(gen, logger),
		Metrics:    pipeline.NewMetrics(reg),
	}
	if a.hermes != nil {
		deps.Events = a.hermes
	}

	// Slack poster (optional, alerts are skipped without it)
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		deps.Notifier = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, review alerts are disabled")
	}

	a.pipeline = pipeline.New(deps, pipeline.Config{
		ReportTypes:  reportTypes(cfg.ReportTypes),
		MaxAttempts:  cfg.MaxReviewAttempts,
		RAGThreshold: cfg.RAGThreshold,
		RAGLimit:     cfg.RAGLimit,
	}, logger)
	return a, nil
}

func (a *app) Close() {
	if a.hermes != nil {
		a.hermes.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// reportTypes keeps the configured types that have a template.
func reportTypes(names []string) []domain.ReportType {
	var out []domain.ReportType
	for _, n := range names {
		t := domain.ReportType(n)
		if _, ok := report.Lookup(t); !ok {
			slog.Warn("ignoring unknown report type", "report_type", n)
			continue
		}
		out = append(out, t)
	}
	return out
}
