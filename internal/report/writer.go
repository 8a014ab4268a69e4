package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/llm"
	"github.com/ippeo/consultd/internal/retry"
)

var (
	ErrUnknownReportType   = errors.New("unknown report type")
	ErrMissingPrerequisite = errors.New("missing prerequisite report")
)

// WriteInput is everything a writer may draw on for one attempt.
type WriteInput struct {
	OriginalText   string
	TranslatedText string
	InputLanguage  domain.Language
	CustomerName   string
	Category       domain.Category
	Intent         domain.Intent
	Candidates     []domain.Candidate
	CTALevel       domain.CTALevel
	CTASignals     []string
	Segments       []domain.SpeakerSegment
	AdminDirection string
	Feedback       []string

	Doctor     *DoctorBrief
	Operations *OperationsBrief
}

// Writer turns consultation analysis into a structured report.
type Writer struct {
	llm        llm.Generator
	parseRetry retry.Policy
	now        func() time.Time
	logger     *slog.Logger
}

func NewWriter(gen llm.Generator, logger *slog.Logger) *Writer {
	return &Writer{llm: gen, parseRetry: llm.ParseRetry, now: time.Now, logger: logger}
}

// Write generates one report of type t. The returned document is normalized
// and carries the creation date in the report's output language.
func (w *Writer) Write(ctx context.Context, t domain.ReportType, in WriteInput) (Document, error) {
	tpl, ok := Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReportType, t)
	}
	for _, dep := range tpl.Requires {
		if (dep == domain.ReportDoctor && in.Doctor == nil) || (dep == domain.ReportOperations && in.Operations == nil) {
			return nil, fmt.Errorf("%w: %s needs %s", ErrMissingPrerequisite, t, dep)
		}
	}

	loc := tpl.locale(in)
	doc := tpl.New()
	prompt := buildPrompt(tpl, in, loc)
	if err := llm.Structured(ctx, w.llm, w.parseRetry, w.logger, "report_writer_"+string(t), prompt, tpl.System, doc); err != nil {
		return nil, fmt.Errorf("write %s: %w", t, err)
	}

	doc.normalize()
	if cr, ok := doc.(*CustomerReport); ok && len(in.Intent.HospitalMentions) == 0 {
		cr.HospitalComparison = nil
	}
	date := loc.FormatDate(w.now())
	if t == domain.ReportCustomer {
		date = loc.DatePrefix + date
	}
	doc.setDate(date)

	w.logger.Info("report written",
		"report_type", t,
		"language", loc.Language,
		"references", len(in.Candidates),
		"feedback_rounds", len(in.Feedback),
	)
	return doc, nil
}

func buildPrompt(tpl Template, in WriteInput, loc Locale) string {
	var b strings.Builder

	if d := strings.TrimSpace(in.AdminDirection); d != "" {
		fmt.Fprintf(&b, "## Direction from the administrator (highest priority)\n%s\n\n", d)
	}

	fmt.Fprintf(&b, "## Specialty\n%s\n\n", loc.CategoryNote(in.Category))
	fmt.Fprintf(&b, "## Customer\n%s\n\n", loc.DisplayName(in.CustomerName))

	b.WriteString("## Consultation transcript\n")
	fmt.Fprintf(&b, "%s\n", transcriptSection(in))

	fmt.Fprintf(&b, "## Extracted intent\n%s\n\n", mustJSON(in.Intent))

	if tpl.Type != domain.ReportCustomer {
		fmt.Fprintf(&b, "## Visit intent\nCTA level: %s\nSignals: %s\n\n", in.CTALevel, strings.Join(in.CTASignals, " / "))
	}

	b.WriteString(references(in.Candidates, loc))

	if len(in.Intent.HospitalMentions) > 0 {
		fmt.Fprintf(&b, "## Hospitals mentioned in the consultation\n%s\n\n", mustJSON(in.Intent.HospitalMentions))
	}
	if in.Doctor != nil && tpl.Type != domain.ReportDoctor && tpl.Type != domain.ReportCustomer {
		fmt.Fprintf(&b, "## Doctor brief\n%s\n\n", mustJSON(in.Doctor))
	}
	if in.Operations != nil && tpl.Type == domain.ReportExecutive {
		fmt.Fprintf(&b, "## Operations brief\n%s\n\n", mustJSON(in.Operations))
	}

	fmt.Fprintf(&b, "## Output format\n%s\n", tpl.schema(in, loc))

	if len(in.Feedback) > 0 {
		b.WriteString("\n## Fix the following reviewer feedback\n")
		for _, fb := range in.Feedback {
			b.WriteString(loc.FeedbackNote(fb))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// references renders retrieved FAQ entries for fact checking only.
func references(cands []domain.Candidate, loc Locale) string {
	if len(cands) == 0 {
		return "## Reference material\n" + loc.NoReferences + "\n\n"
	}
	var b strings.Builder
	b.WriteString("## Reference material (for verifying accuracy only, do not quote or cite)\n")
	for i, c := range cands {
		fmt.Fprintf(&b, "[Reference %d]\nQ: %s\nA: %s\n", i+1, c.Question, c.Answer)
		if c.ProcedureName != "" {
			fmt.Fprintf(&b, "Procedure: %s\n", c.ProcedureName)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// transcriptSection shows one transcript for Korean input and both versions
// otherwise.
func transcriptSection(in WriteInput) string {
	if in.InputLanguage == domain.LanguageKorean || in.TranslatedText == "" {
		text := in.TranslatedText
		if text == "" {
			text = in.OriginalText
		}
		return text + "\n"
	}
	return fmt.Sprintf("### Original\n%s\n\n### Translated (Korean)\n%s\n", in.OriginalText, in.TranslatedText)
}
