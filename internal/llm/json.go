package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/ippeo/consultd/internal/retry"
)

// ParseRetry is the call-site policy for malformed structured output: one
// extra attempt after a fixed 3s wait.
var ParseRetry = retry.Constant(2, 3*time.Second)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

// CleanJSON strips markdown fences and replaces control characters that
// models sometimes emit inside string literals.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return controlChars.ReplaceAllString(s, " ")
}

// DecodeJSON cleans raw and decodes it into v. A top-level array is
// unwrapped to its first element.
func DecodeJSON(raw string, v any) error {
	s := CleanJSON(raw)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrMalformedJSON)
	}
	if strings.HasPrefix(s, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}
		if len(arr) == 0 {
			return fmt.Errorf("%w: empty array", ErrMalformedJSON)
		}
		s = string(arr[0])
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

// Structured asks gen for JSON and decodes it into v, retrying under policy
// when the output cannot be decoded. Transport errors are returned as-is
// without a parse retry; the generator has already retried them. v must be a
// non-nil pointer. Each attempt decodes into a fresh value and v is only
// overwritten by an attempt that decoded cleanly.
func Structured(ctx context.Context, gen Generator, policy retry.Policy, logger *slog.Logger, op, prompt, system string, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("structured %s: target must be a non-nil pointer, got %T", op, v)
	}

	return policy.Do(ctx, func(attempt int) error {
		raw, err := gen.GenerateJSON(ctx, prompt, system)
		if err != nil {
			return retry.Permanent(err)
		}
		fresh := reflect.New(rv.Elem().Type())
		if err := DecodeJSON(raw, fresh.Interface()); err != nil {
			logger.Warn("structured output parse failed",
				"op", op,
				"attempt", attempt,
				"raw_len", len(raw),
				"error", err,
			)
			return err
		}
		rv.Elem().Set(fresh.Elem())
		return nil
	}, nil)
}
