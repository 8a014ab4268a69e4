package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/llm"
	"github.com/ippeo/consultd/internal/retry"
)

// PassScore is the minimum score the reviewer is asked to pass at.
const PassScore = 80

// Verdict is the reviewer's judgement of one write attempt.
type Verdict struct {
	Passed      bool     `json:"passed"`
	Score       int      `json:"score"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Feedback    string   `json:"feedback"`
}

// Reviewer scores reports against the rubric of their type.
type Reviewer struct {
	llm        llm.Generator
	parseRetry retry.Policy
	logger     *slog.Logger
}

func NewReviewer(gen llm.Generator, logger *slog.Logger) *Reviewer {
	return &Reviewer{llm: gen, parseRetry: llm.ParseRetry, logger: logger}
}

// failOpen is returned when the reviewer's output cannot be parsed, so a
// malformed verdict never blocks delivery.
func failOpen() Verdict {
	return Verdict{
		Passed:      true,
		Score:       70,
		Issues:      []string{"review response could not be parsed"},
		Suggestions: []string{},
	}
}

// Review judges doc against the transcript and the reference candidates.
// Transport errors are returned; unparseable verdicts fail open.
func (r *Reviewer) Review(ctx context.Context, doc Document, candidates []domain.Candidate, transcript string) (Verdict, error) {
	tpl, ok := Lookup(doc.ReportType())
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %q", ErrUnknownReportType, doc.ReportType())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Report type\n%s\n\n", tpl.Name)
	fmt.Fprintf(&b, "## Report under review\n%s\n\n", mustJSON(doc))
	fmt.Fprintf(&b, "## Consultation transcript\n%s\n\n", transcript)
	b.WriteString(references(candidates, korean))
	b.WriteString(tpl.Rubric.Checklist)

	var v Verdict
	op := "report_reviewer_" + string(tpl.Type)
	err := llm.Structured(ctx, r.llm, r.parseRetry, r.logger, op, b.String(), tpl.Rubric.System, &v)
	if errors.Is(err, llm.ErrMalformedJSON) {
		r.logger.Error("review unparseable, failing open", "report_type", tpl.Type, "error", err)
		return failOpen(), nil
	}
	if err != nil {
		return Verdict{}, fmt.Errorf("review %s: %w", tpl.Type, err)
	}

	v.Issues = strs(v.Issues)
	v.Suggestions = strs(v.Suggestions)
	r.logger.Info("report reviewed",
		"report_type", tpl.Type,
		"passed", v.Passed,
		"score", v.Score,
		"issues", len(v.Issues),
	)
	return v, nil
}

// Steering is the feedback handed to the next write attempt. It falls back
// to the issue list when the reviewer left no free-text feedback.
func (v Verdict) Steering() string {
	if fb := strings.TrimSpace(v.Feedback); fb != "" {
		return fb
	}
	return strings.Join(v.Issues, "; ")
}
