package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ippeo/consultd/internal/analysis"
	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/hermes"
	"github.com/ippeo/consultd/internal/report"
	"github.com/ippeo/consultd/internal/slack"
)

type harness struct {
	p          *Pipeline
	store      *memStore
	analyzer   *fakeAnalyzer
	retriever  *fakeRetriever
	writer     *fakeWriter
	reviewer   *scriptedReviewer
	translator *fakeTranslator
	events     *recordingPublisher
	notifier   *recordingNotifier
	metrics    *Metrics
	c          *domain.Consultation
}

func newHarness(cfg Config) *harness {
	c := &domain.Consultation{
		ID:           uuid.New(),
		CustomerName: "김민지",
		OriginalText: "상담사: 안녕하세요\n고객: 코 수술 비용이 얼마예요?",
		Status:       domain.StatusRegistered,
	}
	h := &harness{
		store: newMemStore(c),
		analyzer: &fakeAnalyzer{
			cta:       analysis.CTAResult{Level: domain.CTAWarm, Signals: []string{}},
			intent:    domain.Intent{Keywords: []string{"코성형", "비용"}, MentionedProcedures: []string{"코 수술"}},
			cls:       domain.Classification{Category: domain.CategoryPlasticSurgery, Confidence: 0.9},
			validated: domain.Classification{Category: domain.CategoryPlasticSurgery, Confidence: 0.92, Reason: "코 수술 문의"},
		},
		retriever:  &fakeRetriever{cands: []domain.Candidate{{ID: "1", Category: "plastic_surgery", Similarity: 0.8}}},
		writer:     &fakeWriter{},
		reviewer:   &scriptedReviewer{passOn: 1},
		translator: &fakeTranslator{},
		events:     &recordingPublisher{},
		notifier:   &recordingNotifier{},
		metrics:    NewMetrics(prometheus.NewRegistry()),
		c:          c,
	}
	h.p = New(Deps{
		Store:      h.store,
		Analyzer:   h.analyzer,
		Refiner:    identityRefiner{},
		Retriever:  h.retriever,
		Writer:     h.writer,
		Reviewer:   h.reviewer,
		Translator: h.translator,
		Events:     h.events,
		Notifier:   h.notifier,
		Metrics:    h.metrics,
	}, cfg, discardLogger())
	return h
}

func (h *harness) consultation() *domain.Consultation {
	c, _ := h.store.GetConsultation(context.Background(), h.c.ID)
	return c
}

func TestWriteReviewLoop_NeverExceedsMaxAttempts(t *testing.T) {
	writes, reviews := 0, 0
	res, err := WriteReviewLoop(context.Background(), 3,
		func(_ context.Context, fb []string) (int, error) { writes++; return writes, nil },
		func(context.Context, int) (report.Verdict, error) {
			reviews++
			return report.Verdict{Feedback: "again"}, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, writes)
	assert.Equal(t, 3, reviews)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Passed)
	assert.Equal(t, 3, res.Doc, "last document is kept")
}

func TestWriteReviewLoop_AccumulatesFeedback(t *testing.T) {
	var seen [][]string
	calls := 0
	_, err := WriteReviewLoop(context.Background(), 3,
		func(_ context.Context, fb []string) (string, error) {
			seen = append(seen, append([]string(nil), fb...))
			return "doc", nil
		},
		func(context.Context, string) (report.Verdict, error) {
			calls++
			if calls == 1 {
				return report.Verdict{Feedback: "first"}, nil
			}
			return report.Verdict{Issues: []string{"second"}}, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, [][]string{nil, {"first"}, {"first", "second"}}, seen)
}

func TestWriteReviewLoop_WriteErrorAborts(t *testing.T) {
	boom := errors.New("malformed")
	reviews := 0
	_, err := WriteReviewLoop(context.Background(), 3,
		func(context.Context, []string) (string, error) { return "", boom },
		func(context.Context, string) (report.Verdict, error) { reviews++; return report.Verdict{}, nil },
	)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, reviews)
}

func TestRun_RetryBound(t *testing.T) {
	h := newHarness(Config{})
	h.reviewer.passOn = 0

	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	assert.Equal(t, 3, h.writer.count(domain.ReportCustomer))
	assert.Equal(t, 3, h.reviewer.calls)

	rep := h.store.report(h.c.ID, domain.ReportCustomer)
	require.NotNil(t, rep)
	assert.False(t, rep.ReviewPassed)
	assert.Equal(t, 3, rep.ReviewCount)
	assert.Equal(t, domain.StatusReportReady, h.consultation().Status, "unpassed reports still complete the run")

	assert.Equal(t, [][]string{nil, {"feedback 1"}, {"feedback 1", "feedback 2"}}, h.writer.feedback)

	require.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, slack.AlertReviewFailed, h.notifier.alerts[0].Kind)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.reports.WithLabelValues("r4", "false")))
}

func TestRun_PassShortCircuits(t *testing.T) {
	h := newHarness(Config{})
	h.reviewer.passOn = 2

	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	assert.Equal(t, 2, h.writer.count(domain.ReportCustomer))
	assert.Equal(t, 2, h.reviewer.calls)
	rep := h.store.report(h.c.ID, domain.ReportCustomer)
	assert.True(t, rep.ReviewPassed)
	assert.Equal(t, 2, rep.ReviewCount)
	assert.Empty(t, h.notifier.alerts)
}

func TestRun_UnclassifiedHalts(t *testing.T) {
	h := newHarness(Config{})
	h.analyzer.validated = domain.Classification{Category: domain.Unclassified, Reason: "모호함"}

	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	c := h.consultation()
	assert.Equal(t, domain.StatusClassificationPending, c.Status)
	assert.Empty(t, c.Classification, "classification is not stored when unclassified")
	assert.Empty(t, h.retriever.queries)
	assert.Empty(t, h.writer.types)
	assert.Contains(t, h.events.subjects, hermes.SubjectClassificationPending)
	require.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, slack.AlertClassificationPending, h.notifier.alerts[0].Kind)
}

func TestRun_StagesInOrder(t *testing.T) {
	h := newHarness(Config{})
	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	assert.Equal(t, []string{
		"preprocessor", "translator", "refiner", "cta_analyzer", "intent_extractor",
		"classifier", "validator", "rag_retriever", "report_r4",
	}, h.store.stageNames())
	assert.Equal(t, []domain.Status{domain.StatusReportGenerating, domain.StatusReportReady}, h.store.statuses)
	assert.Equal(t, []string{"translate", "cta", "intent", "classify", "validate"}, h.analyzer.calls)

	require.Len(t, h.retriever.queries, 1)
	q := h.retriever.queries[0]
	assert.Equal(t, []string{"코성형", "비용"}, q.Keywords)
	assert.Equal(t, "plastic_surgery", q.Category)
	assert.Empty(t, q.Focus)

	assert.Contains(t, h.events.subjects, hermes.SubjectReportReady)
	assert.Zero(t, h.translator.calls, "Korean input needs no Korean copy")
}

func TestRun_PassesConfiguredThreshold(t *testing.T) {
	h := newHarness(Config{RAGThreshold: 0.5})
	require.NoError(t, h.p.Run(context.Background(), h.c.ID))
	require.Len(t, h.retriever.queries, 1)
	require.NotNil(t, h.retriever.queries[0].Threshold)
	assert.Equal(t, 0.5, *h.retriever.queries[0].Threshold)

	h = newHarness(Config{})
	require.NoError(t, h.p.Run(context.Background(), h.c.ID))
	require.Len(t, h.retriever.queries, 1)
	assert.Nil(t, h.retriever.queries[0].Threshold)
}

func TestRun_RetrievalFailureContinues(t *testing.T) {
	h := newHarness(Config{})
	h.retriever.err = errors.New("vector store down")

	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	require.Len(t, h.writer.inputs, 1)
	assert.Empty(t, h.writer.inputs[0].Candidates)
	assert.NotNil(t, h.writer.inputs[0].Candidates)
	assert.Equal(t, domain.StatusReportReady, h.consultation().Status)
}

func TestRun_FailureMarksConsultationFailed(t *testing.T) {
	h := newHarness(Config{})
	h.analyzer.intentErr = errors.New("503 from model")

	err := h.p.Run(context.Background(), h.c.ID)
	require.Error(t, err)

	c := h.consultation()
	assert.Equal(t, domain.StatusReportFailed, c.Status)
	assert.Contains(t, c.ErrorMessage, "503 from model")
	assert.Contains(t, h.store.stageNames(), "pipeline")
	assert.Contains(t, h.events.subjects, hermes.SubjectReportFailed)
	assert.Empty(t, h.writer.types)
}

func TestRun_CustomerReportFailureIsFatal(t *testing.T) {
	h := newHarness(Config{})
	h.writer.failOn = map[domain.ReportType]error{domain.ReportCustomer: errors.New("malformed report")}

	require.Error(t, h.p.Run(context.Background(), h.c.ID))
	assert.Equal(t, domain.StatusReportFailed, h.consultation().Status)
	assert.Nil(t, h.store.report(h.c.ID, domain.ReportCustomer))
}

func TestRun_VariantFailureSkipsDependents(t *testing.T) {
	h := newHarness(Config{ReportTypes: []domain.ReportType{domain.ReportExecutive, domain.ReportCustomer}})
	h.writer.failOn = map[domain.ReportType]error{domain.ReportOperations: errors.New("malformed report")}

	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	assert.Equal(t, []domain.ReportType{domain.ReportDoctor, domain.ReportOperations, domain.ReportCustomer}, h.writer.types)
	assert.NotNil(t, h.store.report(h.c.ID, domain.ReportDoctor))
	assert.Nil(t, h.store.report(h.c.ID, domain.ReportOperations))
	assert.Nil(t, h.store.report(h.c.ID, domain.ReportExecutive))
	assert.NotNil(t, h.store.report(h.c.ID, domain.ReportCustomer))
	assert.Equal(t, domain.StatusReportReady, h.consultation().Status)
}

func TestRun_BriefsReceivePrerequisites(t *testing.T) {
	h := newHarness(Config{ReportTypes: []domain.ReportType{domain.ReportExecutive}})
	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	require.Len(t, h.writer.inputs, 3)
	assert.Nil(t, h.writer.inputs[0].Doctor)
	assert.NotNil(t, h.writer.inputs[1].Doctor)
	assert.NotNil(t, h.writer.inputs[2].Doctor)
	assert.NotNil(t, h.writer.inputs[2].Operations)
}

func TestRun_KoreanInputUsesCleanedTranscript(t *testing.T) {
	h := newHarness(Config{})
	h.c.OriginalText = "의사(660): 안녕하세요\n환자(1920): 코 수술 비용이 얼마예요?\n환자(1930): ???"

	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	cleaned := "상담사: 안녕하세요\n고객: 코 수술 비용이 얼마예요?"
	require.Len(t, h.writer.inputs, 1)
	in := h.writer.inputs[0]
	assert.Equal(t, domain.LanguageKorean, in.InputLanguage)
	assert.Equal(t, cleaned, in.OriginalText)
	assert.NotContains(t, in.OriginalText, "(660)")

	require.Len(t, h.reviewer.transcripts, 1)
	assert.Equal(t, cleaned, h.reviewer.transcripts[0])
	assert.NotContains(t, h.reviewer.transcripts[0], "???")
}

func TestTranscriptFor(t *testing.T) {
	ja := &domain.Consultation{
		OriginalText:   "カウンセラー(10): こんにちは\n相談者(20): ???",
		TranslatedText: "상담사: 안녕하세요",
		InputLanguage:  domain.LanguageJapanese,
	}
	assert.Equal(t, "상담사: こんにちは\n\n상담사: 안녕하세요", transcriptFor(ja))

	ko := &domain.Consultation{
		OriginalText:   "의사(1): 안녕하세요",
		TranslatedText: "상담사: 안녕하세요",
		InputLanguage:  domain.LanguageKorean,
	}
	assert.Equal(t, "상담사: 안녕하세요", transcriptFor(ko))
}

func TestRun_JapaneseInputGetsKoreanCopy(t *testing.T) {
	h := newHarness(Config{})
	h.analyzer.translation = analysis.Translation{Text: "코 수술 비용", Language: domain.LanguageJapanese, Translated: true}

	require.NoError(t, h.p.Run(context.Background(), h.c.ID))

	assert.Equal(t, 1, h.translator.calls)
	rep := h.store.report(h.c.ID, domain.ReportCustomer)
	assert.NotEmpty(t, rep.DataKo)
	assert.Equal(t, domain.LanguageJapanese, h.writer.inputs[0].InputLanguage)
}

func TestRun_KoreanCopyFailureIsNotFatal(t *testing.T) {
	h := newHarness(Config{})
	h.analyzer.translation = analysis.Translation{Text: "코 수술 비용", Language: domain.LanguageJapanese, Translated: true}
	h.translator.err = errors.New("translation quota")
	h.events.err = errors.New("nats down")

	require.NoError(t, h.p.Run(context.Background(), h.c.ID))
	assert.Equal(t, domain.StatusReportReady, h.consultation().Status)
	assert.Empty(t, h.store.report(h.c.ID, domain.ReportCustomer).DataKo)
}

func TestRun_UpsertPreservesAccessToken(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()

	require.NoError(t, h.p.Run(ctx, h.c.ID))
	first := h.store.report(h.c.ID, domain.ReportCustomer)
	token, id, expires := first.AccessToken, first.ID, first.AccessExpiresAt

	require.NoError(t, h.p.Run(ctx, h.c.ID))
	second := h.store.report(h.c.ID, domain.ReportCustomer)

	assert.Len(t, h.store.reports, 1)
	assert.Equal(t, id, second.ID)
	assert.Equal(t, token, second.AccessToken)
	assert.Equal(t, expires, second.AccessExpiresAt)
	assert.Equal(t, 2, h.store.upserts)
	assert.Zero(t, h.store.refreshes)
}

func TestResume(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()
	h.c.Status = domain.StatusClassificationPending
	h.c.TranslatedText = h.c.OriginalText
	h.c.InputLanguage = domain.LanguageKorean
	h.c.Intent = &domain.Intent{Keywords: []string{"여드름"}}

	require.NoError(t, h.p.Resume(ctx, h.c.ID, domain.CategoryDermatology))

	c := h.consultation()
	assert.Equal(t, domain.CategoryDermatology, c.Classification)
	assert.True(t, c.IsManuallyClassified)
	assert.Equal(t, domain.StatusReportReady, c.Status)
	assert.Empty(t, h.analyzer.calls, "analysis is not recomputed")
	require.Len(t, h.retriever.queries, 1)
	assert.Equal(t, []string{"여드름"}, h.retriever.queries[0].Keywords)
	assert.Equal(t, "dermatology", h.retriever.queries[0].Category)
}

func TestResume_RejectsUnclassified(t *testing.T) {
	h := newHarness(Config{})
	err := h.p.Resume(context.Background(), h.c.ID, domain.Unclassified)
	assert.ErrorIs(t, err, ErrInvalidCategory)
	assert.Empty(t, h.store.statuses)
}

func TestRegenerate(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()
	require.NoError(t, h.p.Run(ctx, h.c.ID))
	rep := *h.store.report(h.c.ID, domain.ReportCustomer)

	require.NoError(t, h.p.Regenerate(ctx, rep.ID, "회복 기간 비용"))

	require.Len(t, h.retriever.queries, 2)
	assert.Equal(t, []string{"코성형", "비용", "회복", "기간"}, h.retriever.queries[1].Keywords)
	last := h.writer.inputs[len(h.writer.inputs)-1]
	assert.Equal(t, "회복 기간 비용", last.AdminDirection)

	after := h.store.report(h.c.ID, domain.ReportCustomer)
	assert.Equal(t, rep.ID, after.ID)
	assert.Equal(t, rep.AccessToken, after.AccessToken)
	assert.Equal(t, 1, h.store.refreshes)
	assert.True(t, after.AccessExpiresAt.After(rep.AccessExpiresAt))
}

func TestRegenerate_FailureRejectsReport(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()
	require.NoError(t, h.p.Run(ctx, h.c.ID))
	rep := h.store.report(h.c.ID, domain.ReportCustomer)

	h.writer.failOn = map[domain.ReportType]error{domain.ReportCustomer: errors.New("model exhausted")}
	require.Error(t, h.p.Regenerate(ctx, rep.ID, "톤을 부드럽게"))

	c := h.consultation()
	assert.Equal(t, domain.StatusReportFailed, c.Status)
	assert.Contains(t, c.ErrorMessage, "regeneration failed: ")

	after := h.store.report(h.c.ID, domain.ReportCustomer)
	assert.Equal(t, domain.ReportRejected, after.Status)
	assert.Contains(t, after.ReviewNotes, "model exhausted")
}

func TestRegenerate_LoadsStoredPrerequisites(t *testing.T) {
	h := newHarness(Config{ReportTypes: []domain.ReportType{domain.ReportOperations}})
	ctx := context.Background()
	require.NoError(t, h.p.Run(ctx, h.c.ID))
	ops := h.store.report(h.c.ID, domain.ReportOperations)
	require.NotNil(t, ops)

	require.NoError(t, h.p.Regenerate(ctx, ops.ID, ""))
	last := h.writer.inputs[len(h.writer.inputs)-1]
	assert.NotNil(t, last.Doctor)
}

func TestMergeKeywords(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, MergeKeywords([]string{"a", "b", "a"}, "  b c "))
	assert.Equal(t, []string{}, MergeKeywords(nil, ""))
}

func TestHandleRegistered(t *testing.T) {
	h := newHarness(Config{})
	h.p.HandleRegistered(hermes.SubjectConsultationRegistered, []byte(`{"consultation_id":"`+h.c.ID.String()+`"}`))
	assert.Equal(t, domain.StatusReportReady, h.consultation().Status)

	h.p.HandleRegistered(hermes.SubjectConsultationRegistered, []byte(`{"consultation_id":"nope"}`))
	h.p.HandleRegistered(hermes.SubjectConsultationRegistered, []byte(`{`))
}

func TestNonCritical(t *testing.T) {
	ok := NonCritical{Name: "x", Run: func(context.Context) error { return errors.New("boom") }}.Do(context.Background(), discardLogger())
	assert.False(t, ok)
	ok = NonCritical{Name: "y", Run: func(context.Context) error { return nil }}.Do(context.Background(), discardLogger())
	assert.True(t, ok)
}
