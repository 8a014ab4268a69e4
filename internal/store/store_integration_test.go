//go:build integration

package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ippeo/consultd/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL, time.Hour)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func createConsultation(t *testing.T, s *Store) uuid.UUID {
	t.Helper()
	id, err := s.CreateConsultation(context.Background(), NewConsultation{
		CustomerName: "田中 花子",
		OriginalText: "カウンセラー: こんにちは\n顧客: 鼻の手術について",
	})
	if err != nil {
		t.Fatalf("CreateConsultation failed: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), `DELETE FROM consultations WHERE id = $1`, id)
		_, _ = s.pool.Exec(context.Background(), `DELETE FROM agent_logs WHERE consultation_id = $1`, id)
	})
	return id
}

func TestIntegration_ConsultationLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := createConsultation(t, s)

	if err := s.SaveTranslation(ctx, id, domain.LanguageJapanese, "상담사: 안녕하세요"); err != nil {
		t.Fatalf("SaveTranslation failed: %v", err)
	}
	segs := []domain.SpeakerSegment{{Speaker: domain.SpeakerCustomer, Text: "鼻の手術について"}}
	if err := s.SaveCTA(ctx, id, segs, "鼻の手術について", domain.CTAWarm, []string{"費用"}); err != nil {
		t.Fatalf("SaveCTA failed: %v", err)
	}
	if err := s.SaveIntent(ctx, id, domain.Intent{Keywords: []string{"코 수술"}}); err != nil {
		t.Fatalf("SaveIntent failed: %v", err)
	}
	cls := domain.Classification{Category: domain.CategoryPlasticSurgery, Confidence: 0.9, Reason: "nose"}
	if err := s.SaveClassification(ctx, id, cls, true); err != nil {
		t.Fatalf("SaveClassification failed: %v", err)
	}
	if err := s.UpdateStatus(ctx, id, domain.StatusReportFailed, "boom"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	c, err := s.GetConsultation(ctx, id)
	if err != nil {
		t.Fatalf("GetConsultation failed: %v", err)
	}
	if c.InputLanguage != domain.LanguageJapanese {
		t.Errorf("expected ja, got %q", c.InputLanguage)
	}
	if c.CTALevel != domain.CTAWarm || len(c.CTASignals) != 1 {
		t.Errorf("unexpected cta %q %v", c.CTALevel, c.CTASignals)
	}
	if len(c.SpeakerSegments) != 1 {
		t.Errorf("expected 1 segment, got %d", len(c.SpeakerSegments))
	}
	if c.Intent == nil || len(c.Intent.Keywords) != 1 || c.Intent.HospitalMentions == nil {
		t.Errorf("unexpected intent %+v", c.Intent)
	}
	if c.Classification != domain.CategoryPlasticSurgery || !c.IsManuallyClassified {
		t.Errorf("unexpected classification %q manual=%v", c.Classification, c.IsManuallyClassified)
	}
	if c.Status != domain.StatusReportFailed || c.ErrorMessage != "boom" {
		t.Errorf("unexpected status %q %q", c.Status, c.ErrorMessage)
	}

	if err := s.UpdateStatus(ctx, uuid.New(), domain.StatusReportReady, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestIntegration_UpsertPreservesToken(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := createConsultation(t, s)

	first, err := s.UpsertReport(ctx, &domain.Report{
		ConsultationID: id,
		Type:           domain.ReportCustomer,
		Data:           json.RawMessage(`{"title":"v1"}`),
		ReviewCount:    1,
		ReviewPassed:   true,
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if len(first.AccessToken) != 32 {
		t.Errorf("expected 32-char token, got %q", first.AccessToken)
	}
	if err := s.SetReportTranslation(ctx, first.ID, json.RawMessage(`{"title":"ko"}`)); err != nil {
		t.Fatalf("SetReportTranslation failed: %v", err)
	}
	if err := s.UpdateReportStatus(ctx, first.ID, domain.ReportApproved); err != nil {
		t.Fatalf("UpdateReportStatus failed: %v", err)
	}

	second, err := s.UpsertReport(ctx, &domain.Report{
		ConsultationID: id,
		Type:           domain.ReportCustomer,
		Data:           json.RawMessage(`{"title":"v2"}`),
		ReviewCount:    3,
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same row, got %s and %s", first.ID, second.ID)
	}
	if second.AccessToken != first.AccessToken {
		t.Errorf("token changed from %q to %q", first.AccessToken, second.AccessToken)
	}
	if !second.AccessExpiresAt.Equal(first.AccessExpiresAt) {
		t.Errorf("expiry moved from %v to %v", first.AccessExpiresAt, second.AccessExpiresAt)
	}
	if second.Status != domain.ReportDraft {
		t.Errorf("expected draft, got %q", second.Status)
	}
	if second.DataKo != nil {
		t.Errorf("expected Korean copy cleared, got %s", second.DataKo)
	}
	if second.ReviewPassed || second.ReviewCount != 3 {
		t.Errorf("unexpected review fields %d %v", second.ReviewCount, second.ReviewPassed)
	}

	pub, err := s.GetReportByToken(ctx, first.AccessToken)
	if err != nil {
		t.Fatalf("GetReportByToken failed: %v", err)
	}
	if pub.CustomerName != "田中 花子" {
		t.Errorf("unexpected customer name %q", pub.CustomerName)
	}

	opened, err := s.MarkOpened(ctx, first.AccessToken)
	if err != nil || !opened {
		t.Fatalf("first MarkOpened: opened=%v err=%v", opened, err)
	}
	opened, err = s.MarkOpened(ctx, first.AccessToken)
	if err != nil || opened {
		t.Errorf("second MarkOpened should be a no-op: opened=%v err=%v", opened, err)
	}
}

func TestIntegration_RefreshReportLink(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := createConsultation(t, s)

	rep, err := s.UpsertReport(ctx, &domain.Report{
		ConsultationID: id,
		Type:           domain.ReportCustomer,
		Data:           json.RawMessage(`{"title":"v1"}`),
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	later := time.Now().Add(48 * time.Hour)
	s.now = func() time.Time { return later }
	expires, err := s.RefreshReportLink(ctx, rep.ID)
	if err != nil {
		t.Fatalf("RefreshReportLink failed: %v", err)
	}
	if !expires.After(rep.AccessExpiresAt) {
		t.Errorf("expected expiry after %v, got %v", rep.AccessExpiresAt, expires)
	}

	got, err := s.GetReport(ctx, rep.ID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got.AccessToken != rep.AccessToken {
		t.Errorf("token changed on refresh")
	}
	if got.AccessExpiresAt.Sub(expires).Abs() > time.Millisecond {
		t.Errorf("stored expiry %v, want %v", got.AccessExpiresAt, expires)
	}

	if _, err := s.RefreshReportLink(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_LogStage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := createConsultation(t, s)

	err := s.LogStage(ctx, domain.StageLog{
		ConsultationID: id,
		Agent:          "classifier",
		Input:          map[string]int{"length": 10},
		Output:         domain.Classification{Category: domain.CategoryDermatology},
		DurationMS:     120,
		Status:         domain.StageSuccess,
	})
	if err != nil {
		t.Fatalf("LogStage failed: %v", err)
	}

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM agent_logs WHERE consultation_id = $1`, id).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 log row, got %d", n)
	}
}
