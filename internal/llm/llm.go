package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ippeo/consultd/internal/retry"
)

var (
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrMalformedJSON is returned when structured output cannot be decoded.
	ErrMalformedJSON = errors.New("malformed structured output")
)

// Generator produces text or JSON-shaped text from a prompt and an optional
// system instruction.
type Generator interface {
	GenerateText(ctx context.Context, prompt, system string) (string, error)
	GenerateJSON(ctx context.Context, prompt, system string) (string, error)
}

// Embedder turns text into a fixed-length vector. Documents and queries may
// use different indexing modes but share a dimensionality.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// TransientRetry is the retry policy for rate limits, server errors and
// timeouts from the model service: 3 attempts, 5s then 10s.
var TransientRetry = retry.Policy{MaxAttempts: 3, Initial: 5 * time.Second, Multiplier: 2, MaxDelay: 15 * time.Second}

// StatusError carries an HTTP status from a provider that does not expose a
// typed error of its own.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is a transient model-service failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{"RESOURCE_EXHAUSTED", "UNAVAILABLE", "rate limit", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529:
		return true
	}
	return false
}

// withRetry runs call under policy, retrying only transient failures.
func withRetry[T any](ctx context.Context, policy retry.Policy, logger *slog.Logger, op string, call func(context.Context) (T, error)) (T, error) {
	var out T
	err := policy.Do(ctx, func(attempt int) error {
		v, err := call(ctx)
		if err != nil {
			if !IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}, func(attempt int, err error, next time.Duration) {
		logger.Warn("model call failed, retrying",
			"op", op,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"wait", next.String(),
			"error", err,
		)
	})
	return out, err
}
