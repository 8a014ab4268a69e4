package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ippeo/consultd/internal/analysis"
	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/hermes"
	"github.com/ippeo/consultd/internal/preprocess"
	"github.com/ippeo/consultd/internal/rag"
	"github.com/ippeo/consultd/internal/report"
	"github.com/ippeo/consultd/internal/slack"
)

var ErrInvalidCategory = errors.New("category must be plastic_surgery or dermatology")

// Store is the durable state the pipeline reads and writes one stage at a time.
type Store interface {
	GetConsultation(ctx context.Context, id uuid.UUID) (*domain.Consultation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, errMsg string) error
	SaveTranslation(ctx context.Context, id uuid.UUID, lang domain.Language, translated string) error
	SaveCTA(ctx context.Context, id uuid.UUID, segments []domain.SpeakerSegment, customerUtterances string, level domain.CTALevel, signals []string) error
	SaveIntent(ctx context.Context, id uuid.UUID, intent domain.Intent) error
	SaveClassification(ctx context.Context, id uuid.UUID, cls domain.Classification, manual bool) error

	UpsertReport(ctx context.Context, r *domain.Report) (*domain.Report, error)
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	GetReportByType(ctx context.Context, consultationID uuid.UUID, t domain.ReportType) (*domain.Report, error)
	SetReportTranslation(ctx context.Context, id uuid.UUID, data json.RawMessage) error
	MarkReportRejected(ctx context.Context, id uuid.UUID, notes string) error
	RefreshReportLink(ctx context.Context, id uuid.UUID) (time.Time, error)

	LogStage(ctx context.Context, entry domain.StageLog) error
}

type Analyzer interface {
	Translate(ctx context.Context, text string) (analysis.Translation, error)
	AnalyzeCTA(ctx context.Context, in analysis.CTAInput) (analysis.CTAResult, error)
	ExtractIntent(ctx context.Context, text string) (domain.Intent, error)
	Classify(ctx context.Context, text string, intent domain.Intent) (domain.Classification, error)
	Validate(ctx context.Context, text string, intent domain.Intent, cls domain.Classification) (domain.Classification, error)
}

type Refiner interface {
	Refine(ctx context.Context, text string) string
}

type Retriever interface {
	Retrieve(ctx context.Context, q rag.Query) ([]domain.Candidate, error)
}

type Writer interface {
	Write(ctx context.Context, t domain.ReportType, in report.WriteInput) (report.Document, error)
}

type Reviewer interface {
	Review(ctx context.Context, doc report.Document, candidates []domain.Candidate, transcript string) (report.Verdict, error)
}

type ReportTranslator interface {
	Translate(ctx context.Context, doc report.Document, lang domain.Language) (report.Document, error)
}

// Publisher emits pipeline events. hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Notifier alerts staff. slack.Poster satisfies it.
type Notifier interface {
	PostAlert(ctx context.Context, alert slack.Alert) error
}

// Deps are the pipeline's collaborators. Events and Notifier are optional.
type Deps struct {
	Store      Store
	Analyzer   Analyzer
	Refiner    Refiner
	Retriever  Retriever
	Writer     Writer
	Reviewer   Reviewer
	Translator ReportTranslator
	Events     Publisher
	Notifier   Notifier
	Metrics    *Metrics
}

// Config tunes report generation.
type Config struct {
	ReportTypes  []domain.ReportType
	MaxAttempts  int
	RAGThreshold float64
	RAGLimit     int
}

// Pipeline drives a consultation from transcript to reviewed reports.
type Pipeline struct {
	store      Store
	analyzer   Analyzer
	refiner    Refiner
	retriever  Retriever
	writer     Writer
	reviewer   Reviewer
	translator ReportTranslator
	events     Publisher
	notifier   Notifier
	metrics    *Metrics
	cfg        Config
	logger     *slog.Logger
}

func New(d Deps, cfg Config, logger *slog.Logger) *Pipeline {
	if len(cfg.ReportTypes) == 0 {
		cfg.ReportTypes = []domain.ReportType{domain.ReportCustomer}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	m := d.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Pipeline{
		store:      d.Store,
		analyzer:   d.Analyzer,
		refiner:    d.Refiner,
		retriever:  d.Retriever,
		writer:     d.Writer,
		reviewer:   d.Reviewer,
		translator: d.Translator,
		events:     d.Events,
		notifier:   d.Notifier,
		metrics:    m,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes the full pipeline for one consultation. Any error leaves the
// consultation in report_failed with the error recorded on it.
func (p *Pipeline) Run(ctx context.Context, id uuid.UUID) error {
	p.logger.Info("pipeline started", "consultation_id", id)

	outcome, err := p.run(ctx, id)
	if err != nil {
		p.fail(ctx, id, err.Error())
		p.metrics.runs.WithLabelValues("failed").Inc()
		return err
	}
	p.metrics.runs.WithLabelValues(outcome).Inc()
	p.logger.Info("pipeline finished", "consultation_id", id, "outcome", outcome)
	return nil
}

func (p *Pipeline) run(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := p.store.GetConsultation(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load consultation: %w", err)
	}

	pre, _ := runStage(ctx, p, id, "preprocessor", summary(c.OriginalText), func(context.Context) (preprocess.Result, error) {
		return preprocess.Preprocess(c.OriginalText), nil
	})

	tr, err := runStage(ctx, p, id, "translator", summary(pre.CleanedText), func(ctx context.Context) (analysis.Translation, error) {
		tr, err := p.analyzer.Translate(ctx, pre.CleanedText)
		if err != nil {
			return tr, err
		}
		return tr, p.store.SaveTranslation(ctx, id, tr.Language, tr.Text)
	})
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}

	text, err := runStage(ctx, p, id, "refiner", summary(tr.Text), func(ctx context.Context) (string, error) {
		refined := p.refiner.Refine(ctx, tr.Text)
		if refined == tr.Text {
			return refined, nil
		}
		return refined, p.store.SaveTranslation(ctx, id, tr.Language, refined)
	})
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}

	cta, err := runStage(ctx, p, id, "cta_analyzer", map[string]any{"presegmented": pre.HasSpeakerLabels}, func(ctx context.Context) (analysis.CTAResult, error) {
		cta, err := p.analyzer.AnalyzeCTA(ctx, analysis.CTAInput{Text: text, Segments: pre.Segments, CustomerText: pre.CustomerText})
		if err != nil {
			return cta, err
		}
		return cta, p.store.SaveCTA(ctx, id, cta.Segments, cta.CustomerUtterances, cta.Level, cta.Signals)
	})
	if err != nil {
		return "", fmt.Errorf("cta analysis: %w", err)
	}

	intent, err := runStage(ctx, p, id, "intent_extractor", summary(text), func(ctx context.Context) (domain.Intent, error) {
		intent, err := p.analyzer.ExtractIntent(ctx, text)
		if err != nil {
			return intent, err
		}
		return intent, p.store.SaveIntent(ctx, id, intent)
	})
	if err != nil {
		return "", fmt.Errorf("intent extraction: %w", err)
	}

	cls, err := runStage(ctx, p, id, "classifier", summary(text), func(ctx context.Context) (domain.Classification, error) {
		return p.analyzer.Classify(ctx, text, intent)
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	validated, err := runStage(ctx, p, id, "validator", cls, func(ctx context.Context) (domain.Classification, error) {
		v, err := p.analyzer.Validate(ctx, text, intent, cls)
		if err != nil || !v.Category.Reportable() {
			return v, err
		}
		return v, p.store.SaveClassification(ctx, id, v, false)
	})
	if err != nil {
		return "", fmt.Errorf("validate: %w", err)
	}

	c.InputLanguage = tr.Language
	c.TranslatedText = text
	c.CTALevel = cta.Level
	c.CTASignals = cta.Signals
	c.SpeakerSegments = cta.Segments
	c.CustomerUtterances = cta.CustomerUtterances
	c.Intent = &intent

	if !validated.Category.Reportable() {
		if err := p.store.UpdateStatus(ctx, id, domain.StatusClassificationPending, ""); err != nil {
			return "", fmt.Errorf("set classification pending: %w", err)
		}
		p.announcePending(ctx, c, validated)
		return "classification_pending", nil
	}

	c.Classification = validated.Category
	c.ClassificationConfidence = validated.Confidence
	c.ClassificationReason = validated.Reason

	if err := p.generate(ctx, c); err != nil {
		return "", err
	}
	return "report_ready", nil
}

// Resume re-enters the pipeline at retrieval after a manual classification,
// reusing the stored translation, intent and CTA analysis.
func (p *Pipeline) Resume(ctx context.Context, id uuid.UUID, category domain.Category) error {
	if !category.Reportable() {
		return ErrInvalidCategory
	}

	c, err := p.store.GetConsultation(ctx, id)
	if err != nil {
		return fmt.Errorf("load consultation: %w", err)
	}

	cls := domain.Classification{Category: category, Confidence: 1, Reason: "manually classified"}
	if err := p.store.SaveClassification(ctx, id, cls, true); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	c.Classification = category
	c.ClassificationConfidence = cls.Confidence
	c.ClassificationReason = cls.Reason
	c.IsManuallyClassified = true

	p.logger.Info("pipeline resumed", "consultation_id", id, "classification", category)
	if err := p.generate(ctx, c); err != nil {
		p.fail(ctx, id, err.Error())
		p.metrics.runs.WithLabelValues("failed").Inc()
		return err
	}
	p.metrics.runs.WithLabelValues("report_ready").Inc()
	return nil
}

// generate runs retrieval, every configured report and the final status
// transition. c must carry a reportable classification.
func (p *Pipeline) generate(ctx context.Context, c *domain.Consultation) error {
	if err := p.store.UpdateStatus(ctx, c.ID, domain.StatusReportGenerating, ""); err != nil {
		return fmt.Errorf("set report generating: %w", err)
	}

	var keywords []string
	if c.Intent != nil {
		keywords = c.Intent.Keywords
	}
	candidates := p.retrieve(ctx, c.ID, keywords, c.Classification)

	docs := make(map[domain.ReportType]report.Document)
	saved := make(map[domain.ReportType]uuid.UUID)
	for _, t := range report.Expand(p.cfg.ReportTypes) {
		in, ok := p.writeInput(c, candidates, "", docs, t)
		if !ok {
			p.logger.Warn("skipping report, prerequisite missing", "consultation_id", c.ID, "report_type", t)
			continue
		}

		rep, doc, err := p.produce(ctx, c, t, in, candidates)
		if err != nil {
			if t == domain.ReportCustomer {
				return fmt.Errorf("generate %s: %w", t, err)
			}
			p.logger.Error("variant report failed, skipping", "consultation_id", c.ID, "report_type", t, "error", err)
			continue
		}
		docs[t] = doc
		saved[t] = rep.ID
	}

	if err := p.store.UpdateStatus(ctx, c.ID, domain.StatusReportReady, ""); err != nil {
		return fmt.Errorf("set report ready: %w", err)
	}

	reports := make(map[string]string, len(saved))
	for t, id := range saved {
		reports[string(t)] = id.String()
	}
	p.publish(ctx, hermes.SubjectReportReady, map[string]any{
		"consultation_id": c.ID.String(),
		"reports":         reports,
	})
	return nil
}

// produce runs the write-review loop for one report type, persists the
// result and kicks off the best-effort side effects.
func (p *Pipeline) produce(ctx context.Context, c *domain.Consultation, t domain.ReportType, in report.WriteInput, candidates []domain.Candidate) (*domain.Report, report.Document, error) {
	transcript := transcriptFor(c)
	stageName := "report_" + string(t)

	res, err := runStage(ctx, p, c.ID, stageName, map[string]any{"references": len(candidates), "direction": in.AdminDirection}, func(ctx context.Context) (LoopResult[report.Document], error) {
		return WriteReviewLoop(ctx, p.cfg.MaxAttempts,
			func(ctx context.Context, feedback []string) (report.Document, error) {
				attempt := in
				attempt.Feedback = feedback
				return p.writer.Write(ctx, t, attempt)
			},
			func(ctx context.Context, doc report.Document) (report.Verdict, error) {
				return p.reviewer.Review(ctx, doc, candidates, transcript)
			},
		)
	})
	if err != nil {
		return nil, nil, err
	}

	data, err := json.Marshal(res.Doc)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal %s: %w", t, err)
	}
	rep, err := p.store.UpsertReport(ctx, &domain.Report{
		ConsultationID: c.ID,
		Type:           t,
		Data:           data,
		RAGContext:     candidates,
		ReviewCount:    res.Attempts,
		ReviewPassed:   res.Passed,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("save %s: %w", t, err)
	}

	p.metrics.reviewAttempts.WithLabelValues(string(t)).Observe(float64(res.Attempts))
	p.metrics.reports.WithLabelValues(string(t), fmt.Sprint(res.Passed)).Inc()
	p.logger.Info("report saved",
		"consultation_id", c.ID,
		"report_id", rep.ID,
		"report_type", t,
		"attempts", res.Attempts,
		"review_passed", res.Passed,
		"score", res.Verdict.Score,
	)

	if !res.Passed {
		p.alert(ctx, slack.Alert{
			Kind:           slack.AlertReviewFailed,
			ConsultationID: c.ID.String(),
			CustomerName:   c.CustomerName,
			Detail:         fmt.Sprintf("%s saved after %d attempts without passing review (score %d)", t, res.Attempts, res.Verdict.Score),
			Items:          res.Verdict.Issues,
		})
	}

	if t == domain.ReportCustomer && c.InputLanguage != domain.LanguageKorean && p.translator != nil {
		NonCritical{Name: "report_translation", Run: func(ctx context.Context) error {
			ko, err := p.translator.Translate(ctx, res.Doc, domain.LanguageKorean)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(ko)
			if err != nil {
				return err
			}
			return p.store.SetReportTranslation(ctx, rep.ID, raw)
		}}.Do(ctx, p.logger, "consultation_id", c.ID, "report_id", rep.ID)
	}

	return rep, res.Doc, nil
}

// writeInput assembles the writer input for t. It reports false when a
// prerequisite report is not available.
func (p *Pipeline) writeInput(c *domain.Consultation, candidates []domain.Candidate, direction string, docs map[domain.ReportType]report.Document, t domain.ReportType) (report.WriteInput, bool) {
	in := report.WriteInput{
		OriginalText:   cleanedOriginal(c),
		TranslatedText: c.TranslatedText,
		InputLanguage:  c.InputLanguage,
		CustomerName:   c.CustomerName,
		Category:       c.Classification,
		Candidates:     candidates,
		CTALevel:       c.CTALevel,
		CTASignals:     c.CTASignals,
		Segments:       c.SpeakerSegments,
		AdminDirection: direction,
	}
	if c.Intent != nil {
		in.Intent = *c.Intent
	}
	in.Intent.Normalize()

	tpl, _ := report.Lookup(t)
	for _, dep := range tpl.Requires {
		doc, ok := docs[dep]
		if !ok {
			return in, false
		}
		switch d := doc.(type) {
		case *report.DoctorBrief:
			in.Doctor = d
		case *report.OperationsBrief:
			in.Operations = d
		}
	}
	return in, true
}

// retrieve never fails: errors are logged and produce an empty result.
func (p *Pipeline) retrieve(ctx context.Context, id uuid.UUID, keywords []string, category domain.Category) []domain.Candidate {
	q := rag.Query{
		Keywords:  keywords,
		Category:  string(category),
		Threshold: p.ragThreshold(),
		Limit:     p.cfg.RAGLimit,
	}
	cands, err := runStage(ctx, p, id, "rag_retriever", map[string]any{"keywords": keywords, "category": category}, func(ctx context.Context) ([]domain.Candidate, error) {
		return p.retriever.Retrieve(ctx, q)
	})
	if err != nil {
		p.logger.Warn("retrieval failed, continuing without references", "consultation_id", id, "error", err)
		return []domain.Candidate{}
	}
	if cands == nil {
		cands = []domain.Candidate{}
	}
	return cands
}

// ragThreshold returns nil when no threshold is configured, leaving the
// retriever default in place.
func (p *Pipeline) ragThreshold() *float64 {
	if p.cfg.RAGThreshold <= 0 {
		return nil
	}
	t := p.cfg.RAGThreshold
	return &t
}

func (p *Pipeline) fail(ctx context.Context, id uuid.UUID, msg string) {
	p.logger.Error("pipeline failed", "consultation_id", id, "error", msg)
	p.logStage(ctx, domain.StageLog{
		ConsultationID: id,
		Agent:          "pipeline",
		Status:         domain.StageFailed,
		ErrorMessage:   msg,
	})
	if err := p.store.UpdateStatus(ctx, id, domain.StatusReportFailed, msg); err != nil {
		p.logger.Error("failed to record pipeline failure", "consultation_id", id, "error", err)
	}
	p.publish(ctx, hermes.SubjectReportFailed, map[string]any{
		"consultation_id": id.String(),
		"error":           msg,
	})
}

func (p *Pipeline) announcePending(ctx context.Context, c *domain.Consultation, cls domain.Classification) {
	p.logger.Info("classification pending manual review", "consultation_id", c.ID, "reason", cls.Reason)
	p.publish(ctx, hermes.SubjectClassificationPending, map[string]any{
		"consultation_id": c.ID.String(),
		"confidence":      cls.Confidence,
		"reason":          cls.Reason,
	})
	p.alert(ctx, slack.Alert{
		Kind:           slack.AlertClassificationPending,
		ConsultationID: c.ID.String(),
		CustomerName:   c.CustomerName,
		Detail:         cls.Reason,
	})
}

func (p *Pipeline) publish(ctx context.Context, subject string, payload any) {
	if p.events == nil {
		return
	}
	NonCritical{Name: "publish " + subject, Run: func(context.Context) error {
		return p.events.Publish(subject, payload)
	}}.Do(ctx, p.logger)
}

func (p *Pipeline) alert(ctx context.Context, a slack.Alert) {
	if p.notifier == nil {
		return
	}
	NonCritical{Name: "slack alert", Run: func(ctx context.Context) error {
		return p.notifier.PostAlert(ctx, a)
	}}.Do(ctx, p.logger, "consultation_id", a.ConsultationID)
}

// transcriptFor is the text the reviewer checks reports against. Korean
// input is reviewed against the refined Korean transcript alone.
func transcriptFor(c *domain.Consultation) string {
	original := cleanedOriginal(c)
	switch {
	case c.TranslatedText == "":
		return original
	case c.InputLanguage == domain.LanguageKorean:
		return c.TranslatedText
	default:
		return original + "\n\n" + c.TranslatedText
	}
}

// cleanedOriginal is the preprocessed source transcript. Preprocess is pure,
// so Resume and Regenerate reproduce what Run saw.
func cleanedOriginal(c *domain.Consultation) string {
	return preprocess.Preprocess(c.OriginalText).CleanedText
}

// summary truncates long text for stage logs.
func summary(text string) map[string]any {
	const previewRunes = 200
	r := []rune(text)
	preview := text
	if len(r) > previewRunes {
		preview = string(r[:previewRunes]) + "…"
	}
	return map[string]any{"length": len(r), "preview": strings.TrimSpace(preview)}
}
