package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	LLMProvider         string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string
	EmbeddingModel      string
	EmbeddingDimensions int
	AnthropicAPIKey     string
	AnthropicModel      string

	SlackBotToken string
	SlackChannel  string

	APIToken          string
	ReportTypes       []string
	MaxReviewAttempts int
	ReportLinkTTL     time.Duration

	RAGThreshold      float64
	RAGLimit          int
	RefineMaxChars    int
	EmbeddingCacheTTL time.Duration
}

func Load() Config {
	return Config{
		Port:        envInt("CONSULTD_PORT", 8760),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		RedisURL:    envStr("REDIS_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		LLMProvider:         strings.ToLower(envStr("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       envStr("OPENAI_BASE_URL", ""),
		OpenAIModel:         envStr("OPENAI_MODEL", "gpt-4o-mini"),
		EmbeddingModel:      envStr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 768),
		AnthropicAPIKey:     envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:      envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_REVIEW_CHANNEL", ""),

		APIToken:          envStr("CONSULTD_API_TOKEN", ""),
		ReportTypes:       envList("REPORT_TYPES", []string{"r4"}),
		MaxReviewAttempts: envInt("MAX_REVIEW_ATTEMPTS", 3),
		ReportLinkTTL:     envDuration("REPORT_LINK_TTL", 720*time.Hour),

		RAGThreshold:      envFloat("RAG_THRESHOLD", 0.65),
		RAGLimit:          envInt("RAG_LIMIT", 8),
		RefineMaxChars:    envInt("REFINE_MAX_CHARS", 15000),
		EmbeddingCacheTTL: envDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated value, dropping empty items.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
