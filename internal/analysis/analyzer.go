package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/llm"
	"github.com/ippeo/consultd/internal/retry"
)

// Analyzer runs the model-backed analysis calls. Malformed output degrades to
// a safe default; transport errors are returned.
type Analyzer struct {
	llm        llm.Generator
	parseRetry retry.Policy
	logger     *slog.Logger
}

func New(gen llm.Generator, logger *slog.Logger) *Analyzer {
	return &Analyzer{llm: gen, parseRetry: llm.ParseRetry, logger: logger}
}

// structured runs a JSON call and reports whether the output was usable.
func (a *Analyzer) structured(ctx context.Context, op, prompt, system string, v any) (bool, error) {
	err := llm.Structured(ctx, a.llm, a.parseRetry, a.logger, op, prompt, system, v)
	if errors.Is(err, llm.ErrMalformedJSON) {
		a.logger.Error("structured output unusable, using default", "op", op, "error", err)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Translation is the working-language view of a transcript.
type Translation struct {
	Text       string
	Language   domain.Language
	Translated bool
}

// Translate detects the transcript language and translates Japanese into
// Korean. Korean input passes through without a model call.
func (a *Analyzer) Translate(ctx context.Context, text string) (Translation, error) {
	lang := DetectLanguage(text)
	if lang == domain.LanguageKorean {
		return Translation{Text: text, Language: lang}, nil
	}

	var out struct {
		TranslatedText string `json:"translated_text"`
	}
	ok, err := a.structured(ctx, "translate", fmt.Sprintf(translateUserPrompt, text), translateSystemPrompt, &out)
	if err != nil {
		return Translation{}, err
	}
	if !ok || strings.TrimSpace(out.TranslatedText) == "" {
		a.logger.Warn("translation empty, continuing with source text")
		return Translation{Text: text, Language: lang}, nil
	}
	return Translation{Text: out.TranslatedText, Language: lang, Translated: true}, nil
}

// CTAInput carries what the preprocessor already knows about speakers.
type CTAInput struct {
	Text         string
	Segments     []domain.SpeakerSegment
	CustomerText string
}

type CTAResult struct {
	Segments           []domain.SpeakerSegment `json:"speaker_segments"`
	CustomerUtterances string                  `json:"customer_utterances"`
	Level              domain.CTALevel         `json:"cta_level"`
	Signals            []string                `json:"cta_signals"`
}

// AnalyzeCTA estimates the customer's readiness. When segments are already
// known only the level is requested; otherwise the model also splits speakers.
func (a *Analyzer) AnalyzeCTA(ctx context.Context, in CTAInput) (CTAResult, error) {
	var raw struct {
		Segments           []domain.SpeakerSegment `json:"speaker_segments"`
		CustomerUtterances string                  `json:"customer_utterances"`
		Level              string                  `json:"cta_level"`
		Signals            []string                `json:"cta_signals"`
	}

	presegmented := len(in.Segments) > 0 && strings.TrimSpace(in.CustomerText) != ""
	var (
		ok  bool
		err error
	)
	if presegmented {
		ok, err = a.structured(ctx, "cta_analysis", fmt.Sprintf(ctaOnlyUserPrompt, in.CustomerText), ctaSystemPrompt, &raw)
	} else {
		ok, err = a.structured(ctx, "cta_analysis", fmt.Sprintf(ctaFullUserPrompt, in.Text), ctaSystemPrompt, &raw)
	}
	if err != nil {
		return CTAResult{}, err
	}

	res := CTAResult{
		Segments:           in.Segments,
		CustomerUtterances: in.CustomerText,
		Level:              domain.CTACool,
		Signals:            []string{},
	}
	if !ok {
		return res, nil
	}

	res.Level = domain.ParseCTALevel(raw.Level)
	if raw.Signals != nil {
		res.Signals = raw.Signals
	}
	if !presegmented {
		res.Segments = normalizeSegments(raw.Segments)
		res.CustomerUtterances = raw.CustomerUtterances
		if res.CustomerUtterances == "" {
			res.CustomerUtterances = joinCustomer(res.Segments)
		}
	}

	a.logger.Info("cta analyzed", "cta_level", res.Level, "signals", len(res.Signals), "segments", len(res.Segments))
	return res, nil
}

func normalizeSegments(segs []domain.SpeakerSegment) []domain.SpeakerSegment {
	out := make([]domain.SpeakerSegment, 0, len(segs))
	for _, s := range segs {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		speaker := domain.SpeakerCustomer
		switch strings.ToLower(strings.TrimSpace(s.Speaker)) {
		case domain.SpeakerCounselor, "상담사", "의사", "doctor":
			speaker = domain.SpeakerCounselor
		}
		out = append(out, domain.SpeakerSegment{Speaker: speaker, Text: text})
	}
	return out
}

func joinCustomer(segs []domain.SpeakerSegment) string {
	var parts []string
	for _, s := range segs {
		if s.Speaker == domain.SpeakerCustomer {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ExtractIntent returns the structured intent, or an empty intent when the
// model output cannot be parsed.
func (a *Analyzer) ExtractIntent(ctx context.Context, text string) (domain.Intent, error) {
	var intent domain.Intent
	ok, err := a.structured(ctx, "intent_extraction", fmt.Sprintf(intentUserPrompt, text), intentSystemPrompt, &intent)
	if err != nil {
		return domain.Intent{}, err
	}
	if !ok {
		intent = domain.Intent{}
	}
	intent.Normalize()

	a.logger.Info("intent extracted",
		"procedures", len(intent.MentionedProcedures),
		"keywords", len(intent.Keywords),
		"hospitals", len(intent.HospitalMentions),
	)
	return intent, nil
}

type classificationResponse struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

func (r classificationResponse) toDomain() domain.Classification {
	return domain.Classification{
		Category:   domain.ParseCategory(r.Classification),
		Confidence: r.Confidence,
		Reason:     r.Reason,
	}
}

// Classify picks one of the two report categories. Unparseable output yields
// Unclassified so the case is routed to manual review.
func (a *Analyzer) Classify(ctx context.Context, text string, intent domain.Intent) (domain.Classification, error) {
	var resp classificationResponse
	ok, err := a.structured(ctx, "classifier", fmt.Sprintf(classifyUserPrompt, intentJSON(intent), text), classifySystemPrompt, &resp)
	if err != nil {
		return domain.Classification{}, err
	}
	if !ok {
		return domain.Classification{Category: domain.Unclassified, Reason: "classification response could not be parsed"}, nil
	}
	cls := resp.toDomain()
	a.logger.Info("classified", "classification", cls.Category, "confidence", cls.Confidence)
	return cls, nil
}

// Validate re-examines a classification and may override it to Unclassified.
func (a *Analyzer) Validate(ctx context.Context, text string, intent domain.Intent, cls domain.Classification) (domain.Classification, error) {
	prompt := fmt.Sprintf(validateUserPrompt, cls.Category, cls.Confidence, cls.Reason, intentJSON(intent), text)

	var resp classificationResponse
	ok, err := a.structured(ctx, "validator", prompt, validateSystemPrompt, &resp)
	if err != nil {
		return domain.Classification{}, err
	}
	if !ok {
		return domain.Classification{Category: domain.Unclassified, Reason: "validation response could not be parsed"}, nil
	}
	out := resp.toDomain()
	a.logger.Info("classification validated",
		"proposed", cls.Category,
		"validated", out.Category,
		"confidence", out.Confidence,
	)
	return out, nil
}

func intentJSON(intent domain.Intent) string {
	b, err := json.MarshalIndent(intent, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
