package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ippeo/consultd/internal/analysis"
	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/rag"
	"github.com/ippeo/consultd/internal/report"
	"github.com/ippeo/consultd/internal/slack"
	"github.com/ippeo/consultd/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type reportKey struct {
	consultation uuid.UUID
	typ          domain.ReportType
}

// memStore mirrors the upsert and per-stage update semantics of store.Store.
type memStore struct {
	mu            sync.Mutex
	consultations map[uuid.UUID]*domain.Consultation
	reports       map[reportKey]*domain.Report
	statuses      []domain.Status
	logs          []domain.StageLog
	manual        bool
	upserts       int
	refreshes     int
}

func newMemStore(cs ...*domain.Consultation) *memStore {
	s := &memStore{
		consultations: make(map[uuid.UUID]*domain.Consultation),
		reports:       make(map[reportKey]*domain.Report),
	}
	for _, c := range cs {
		s.consultations[c.ID] = c
	}
	return s
}

func (s *memStore) GetConsultation(_ context.Context, id uuid.UUID) (*domain.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	c.ErrorMessage = errMsg
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *memStore) SaveTranslation(_ context.Context, id uuid.UUID, lang domain.Language, translated string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.consultations[id]
	c.InputLanguage = lang
	c.TranslatedText = translated
	return nil
}

func (s *memStore) SaveCTA(_ context.Context, id uuid.UUID, segments []domain.SpeakerSegment, utterances string, level domain.CTALevel, signals []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.consultations[id]
	c.SpeakerSegments = segments
	c.CustomerUtterances = utterances
	c.CTALevel = level
	c.CTASignals = signals
	return nil
}

func (s *memStore) SaveIntent(_ context.Context, id uuid.UUID, intent domain.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consultations[id].Intent = &intent
	return nil
}

func (s *memStore) SaveClassification(_ context.Context, id uuid.UUID, cls domain.Classification, manual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.consultations[id]
	c.Classification = cls.Category
	c.ClassificationConfidence = cls.Confidence
	c.ClassificationReason = cls.Reason
	c.IsManuallyClassified = manual
	s.manual = manual
	return nil
}

func (s *memStore) UpsertReport(_ context.Context, r *domain.Report) (*domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := reportKey{r.ConsultationID, r.Type}
	now := time.Now()
	if existing, ok := s.reports[key]; ok {
		existing.Data = r.Data
		existing.DataKo = nil
		existing.RAGContext = r.RAGContext
		existing.ReviewCount = r.ReviewCount
		existing.ReviewPassed = r.ReviewPassed
		existing.Status = domain.ReportDraft
		cp := *existing
		return &cp, nil
	}
	stored := *r
	stored.ID = uuid.New()
	stored.Status = domain.ReportDraft
	stored.AccessToken = uuid.NewString()
	stored.AccessExpiresAt = now.Add(30 * 24 * time.Hour)
	s.reports[key] = &stored
	cp := stored
	return &cp, nil
}

func (s *memStore) RefreshReportLink(_ context.Context, id uuid.UUID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findReport(id)
	if r == nil {
		return time.Time{}, store.ErrNotFound
	}
	s.refreshes++
	r.AccessExpiresAt = time.Now().Add(30 * 24 * time.Hour)
	return r.AccessExpiresAt, nil
}

func (s *memStore) findReport(id uuid.UUID) *domain.Report {
	for _, r := range s.reports {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *memStore) GetReport(_ context.Context, id uuid.UUID) (*domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findReport(id)
	if r == nil {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) GetReportByType(_ context.Context, cid uuid.UUID, t domain.ReportType) (*domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[reportKey{cid, t}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) SetReportTranslation(_ context.Context, id uuid.UUID, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findReport(id)
	if r == nil {
		return store.ErrNotFound
	}
	r.DataKo = data
	return nil
}

func (s *memStore) MarkReportRejected(_ context.Context, id uuid.UUID, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findReport(id)
	if r == nil {
		return store.ErrNotFound
	}
	r.Status = domain.ReportRejected
	r.ReviewNotes = notes
	return nil
}

func (s *memStore) LogStage(_ context.Context, entry domain.StageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *memStore) report(cid uuid.UUID, t domain.ReportType) *domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[reportKey{cid, t}]
}

func (s *memStore) stageNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.logs))
	for i, l := range s.logs {
		names[i] = l.Agent
	}
	return names
}

// fakeAnalyzer returns canned results and counts calls.
type fakeAnalyzer struct {
	translation analysis.Translation
	cta         analysis.CTAResult
	intent      domain.Intent
	cls         domain.Classification
	validated   domain.Classification
	intentErr   error
	calls       []string
}

func (a *fakeAnalyzer) Translate(_ context.Context, text string) (analysis.Translation, error) {
	a.calls = append(a.calls, "translate")
	tr := a.translation
	if tr.Text == "" {
		tr = analysis.Translation{Text: text, Language: domain.LanguageKorean}
	}
	return tr, nil
}

func (a *fakeAnalyzer) AnalyzeCTA(_ context.Context, in analysis.CTAInput) (analysis.CTAResult, error) {
	a.calls = append(a.calls, "cta")
	return a.cta, nil
}

func (a *fakeAnalyzer) ExtractIntent(context.Context, string) (domain.Intent, error) {
	a.calls = append(a.calls, "intent")
	return a.intent, a.intentErr
}

func (a *fakeAnalyzer) Classify(context.Context, string, domain.Intent) (domain.Classification, error) {
	a.calls = append(a.calls, "classify")
	return a.cls, nil
}

func (a *fakeAnalyzer) Validate(context.Context, string, domain.Intent, domain.Classification) (domain.Classification, error) {
	a.calls = append(a.calls, "validate")
	return a.validated, nil
}

type identityRefiner struct{}

func (identityRefiner) Refine(_ context.Context, text string) string { return text }

type fakeRetriever struct {
	cands   []domain.Candidate
	err     error
	queries []rag.Query
}

func (r *fakeRetriever) Retrieve(_ context.Context, q rag.Query) ([]domain.Candidate, error) {
	r.queries = append(r.queries, q)
	return r.cands, r.err
}

// fakeWriter returns an empty document of the requested type and records
// the feedback each attempt received.
type fakeWriter struct {
	failOn   map[domain.ReportType]error
	inputs   []report.WriteInput
	types    []domain.ReportType
	feedback [][]string
}

func (w *fakeWriter) Write(_ context.Context, t domain.ReportType, in report.WriteInput) (report.Document, error) {
	w.types = append(w.types, t)
	w.inputs = append(w.inputs, in)
	w.feedback = append(w.feedback, append([]string(nil), in.Feedback...))
	if err := w.failOn[t]; err != nil {
		return nil, err
	}
	tpl, ok := report.Lookup(t)
	if !ok {
		return nil, report.ErrUnknownReportType
	}
	doc := tpl.New()
	if cr, ok := doc.(*report.CustomerReport); ok {
		cr.Title = fmt.Sprintf("attempt %d", len(w.types))
	}
	return doc, nil
}

func (w *fakeWriter) count(t domain.ReportType) int {
	n := 0
	for _, got := range w.types {
		if got == t {
			n++
		}
	}
	return n
}

// scriptedReviewer passes from attempt passOn onward; zero never passes.
type scriptedReviewer struct {
	passOn      int
	calls       int
	transcripts []string
}

func (r *scriptedReviewer) Review(_ context.Context, _ report.Document, _ []domain.Candidate, transcript string) (report.Verdict, error) {
	r.calls++
	r.transcripts = append(r.transcripts, transcript)
	if r.passOn > 0 && r.calls >= r.passOn {
		return report.Verdict{Passed: true, Score: 90}, nil
	}
	return report.Verdict{
		Passed:   false,
		Score:    60,
		Issues:   []string{fmt.Sprintf("issue %d", r.calls)},
		Feedback: fmt.Sprintf("feedback %d", r.calls),
	}, nil
}

type fakeTranslator struct {
	err   error
	calls int
}

func (t *fakeTranslator) Translate(_ context.Context, doc report.Document, lang domain.Language) (report.Document, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return doc, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return p.err
}

type recordingNotifier struct {
	alerts []slack.Alert
}

func (n *recordingNotifier) PostAlert(_ context.Context, a slack.Alert) error {
	n.alerts = append(n.alerts, a)
	return errors.New("slack unavailable")
}
