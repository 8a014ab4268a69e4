package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/llm"
	"github.com/ippeo/consultd/internal/retry"
)

const translateReportSystemPrompt = `You translate cosmetic-medicine consultation reports for a Korean clinic.
Translate every string value into natural, professional %s. Keep every key, array length and null exactly as given.
Keep procedure names medically accurate and prices, dates and numbers unchanged. Output JSON only.`

const translateReportUserPrompt = `Translate the values of this report JSON:

%s`

// Translator produces a structurally identical copy of a report in another
// language for staff who do not read the customer's language.
type Translator struct {
	llm        llm.Generator
	parseRetry retry.Policy
	now        func() time.Time
	logger     *slog.Logger
}

func NewTranslator(gen llm.Generator, logger *slog.Logger) *Translator {
	return &Translator{llm: gen, parseRetry: llm.ParseRetry, now: time.Now, logger: logger}
}

// Translate renders doc into lang. The result has the same concrete type as
// doc and a date restamped in the target locale.
func (t *Translator) Translate(ctx context.Context, doc Document, lang domain.Language) (Document, error) {
	tpl, ok := Lookup(doc.ReportType())
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReportType, doc.ReportType())
	}
	loc := LocaleFor(lang)

	out := tpl.New()
	prompt := fmt.Sprintf(translateReportUserPrompt, mustJSON(doc))
	system := fmt.Sprintf(translateReportSystemPrompt, loc.Name)
	if err := llm.Structured(ctx, t.llm, t.parseRetry, t.logger, "report_translate_"+string(tpl.Type), prompt, system, out); err != nil {
		return nil, fmt.Errorf("translate %s to %s: %w", tpl.Type, lang, err)
	}

	out.normalize()
	if cr, ok := out.(*CustomerReport); ok {
		if src, _ := doc.(*CustomerReport); src != nil && src.HospitalComparison == nil {
			cr.HospitalComparison = nil
		}
	}
	date := loc.FormatDate(t.now())
	if tpl.Type == domain.ReportCustomer {
		date = loc.DatePrefix + date
	}
	out.setDate(date)

	t.logger.Info("report translated", "report_type", tpl.Type, "language", lang)
	return out, nil
}
