package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ippeo/consultd/internal/report"
)

// DefaultMaxAttempts bounds the write-review loop.
const DefaultMaxAttempts = 3

// LoopResult is the outcome of a write-review loop. Doc is the last document
// written, whether or not it passed.
type LoopResult[D any] struct {
	Doc      D
	Attempts int
	Passed   bool
	Verdict  report.Verdict
	Feedback []string
}

// WriteFunc writes one attempt given all feedback accumulated so far.
type WriteFunc[D any] func(ctx context.Context, feedback []string) (D, error)

// ReviewFunc judges one attempt.
type ReviewFunc[D any] func(ctx context.Context, doc D) (report.Verdict, error)

// WriteReviewLoop alternates write and review up to maxAttempts times,
// stopping at the first passing review. Feedback from each failed review is
// appended to what the next write sees. Write or review errors abort the loop.
func WriteReviewLoop[D any](ctx context.Context, maxAttempts int, write WriteFunc[D], review ReviewFunc[D]) (LoopResult[D], error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var res LoopResult[D]
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		doc, err := write(ctx, res.Feedback)
		if err != nil {
			return res, fmt.Errorf("attempt %d: %w", attempt, err)
		}
		res.Doc = doc
		res.Attempts = attempt

		verdict, err := review(ctx, doc)
		if err != nil {
			return res, fmt.Errorf("attempt %d review: %w", attempt, err)
		}
		res.Verdict = verdict
		if verdict.Passed {
			res.Passed = true
			return res, nil
		}

		if attempt < maxAttempts {
			if fb := strings.TrimSpace(verdict.Steering()); fb != "" {
				res.Feedback = append(res.Feedback, fb)
			}
		}
	}
	return res, nil
}
