package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

const embeddingKeyPrefix = "consultd:emb:"

// CachedEmbedder memoizes embeddings in Redis. Redis failures degrade to a
// direct call on the wrapped Embedder.
type CachedEmbedder struct {
	inner   Embedder
	redis   goredis.UniversalClient
	model   string
	ttl     time.Duration
	results *prometheus.CounterVec
	logger  *slog.Logger
}

// NewCachedEmbedder wraps inner. A nil redis client disables caching. model
// is part of the key so switching embedding models never serves stale vectors.
func NewCachedEmbedder(inner Embedder, rdb goredis.UniversalClient, model string, ttl time.Duration, reg prometheus.Registerer, logger *slog.Logger) *CachedEmbedder {
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consultd_embedding_cache_total",
		Help: "Embedding cache lookups by result.",
	}, []string{"result"})
	if reg != nil {
		reg.MustRegister(results)
	}
	return &CachedEmbedder{
		inner:   inner,
		redis:   rdb,
		model:   model,
		ttl:     ttl,
		results: results,
		logger:  logger,
	}
}

func (c *CachedEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.cached(ctx, "doc", text, c.inner.EmbedDocument)
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.cached(ctx, "query", text, c.inner.EmbedQuery)
}

func (c *CachedEmbedder) key(mode, text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + mode + "\x00" + text))
	return embeddingKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) cached(ctx context.Context, mode, text string, embed func(context.Context, string) ([]float32, error)) ([]float32, error) {
	if c.redis == nil {
		return embed(ctx, text)
	}

	key := c.key(mode, text)
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float32
		if jerr := json.Unmarshal(data, &vec); jerr == nil && len(vec) > 0 {
			c.results.WithLabelValues("hit").Inc()
			return vec, nil
		}
		c.logger.Warn("corrupt cached embedding, deleting", "key", key)
		_ = c.redis.Del(ctx, key).Err()
	case errors.Is(err, goredis.Nil):
	default:
		c.results.WithLabelValues("error").Inc()
		c.logger.Warn("embedding cache read failed", "error", err)
	}

	c.results.WithLabelValues("miss").Inc()
	vec, err := embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vec); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}
