package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ippeo/consultd/internal/domain"
)

// NewConsultation is the registration payload of a consultation.
type NewConsultation struct {
	CustomerName  string
	CustomerEmail string
	OriginalText  string
}

// CreateConsultation inserts a registered consultation and returns its ID.
func (s *Store) CreateConsultation(ctx context.Context, nc NewConsultation) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consultations (id, customer_name, customer_email, original_text, status)
		VALUES ($1, $2, $3, $4, $5)`,
		id, nc.CustomerName, nc.CustomerEmail, nc.OriginalText, string(domain.StatusRegistered))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert consultation: %w", err)
	}
	return id, nil
}

func (s *Store) GetConsultation(ctx context.Context, id uuid.UUID) (*domain.Consultation, error) {
	var (
		c                        domain.Consultation
		lang, translated, cls    *string
		reason, cta              *string
		utterances, errMsg       *string
		status                   string
		intentJSON, segmentsJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, customer_name, customer_email, original_text, input_language,
		       translated_text, intent_extraction, classification, classification_confidence,
		       classification_reason, is_manually_classified, cta_level, cta_signals,
		       speaker_segments, customer_utterances, status, error_message, created_at, updated_at
		FROM consultations WHERE id = $1`, id,
	).Scan(&c.ID, &c.CustomerName, &c.CustomerEmail, &c.OriginalText, &lang,
		&translated, &intentJSON, &cls, &c.ClassificationConfidence,
		&reason, &c.IsManuallyClassified, &cta, &c.CTASignals,
		&segmentsJSON, &utterances, &status, &errMsg, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get consultation %s: %w", id, notFound(err))
	}

	c.InputLanguage = domain.Language(deref(lang))
	c.TranslatedText = deref(translated)
	c.Classification = domain.Category(deref(cls))
	c.ClassificationReason = deref(reason)
	c.CTALevel = domain.CTALevel(deref(cta))
	c.CustomerUtterances = deref(utterances)
	c.Status = domain.Status(status)
	c.ErrorMessage = deref(errMsg)

	if len(intentJSON) > 0 {
		var intent domain.Intent
		if err := json.Unmarshal(intentJSON, &intent); err != nil {
			return nil, fmt.Errorf("decode intent of %s: %w", id, err)
		}
		c.Intent = &intent
	}
	if len(segmentsJSON) > 0 {
		if err := json.Unmarshal(segmentsJSON, &c.SpeakerSegments); err != nil {
			return nil, fmt.Errorf("decode segments of %s: %w", id, err)
		}
	}
	return &c, nil
}

// UpdateStatus moves a consultation to status. errMsg is stored as NULL when empty.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, errMsg string) error {
	return s.execOne(ctx, "update status", `
		UPDATE consultations SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`, id, string(status), nullable(errMsg))
}

func (s *Store) SaveTranslation(ctx context.Context, id uuid.UUID, lang domain.Language, translated string) error {
	return s.execOne(ctx, "save translation", `
		UPDATE consultations SET input_language = $2, translated_text = $3, updated_at = now()
		WHERE id = $1`, id, string(lang), translated)
}

func (s *Store) SaveCTA(ctx context.Context, id uuid.UUID, segments []domain.SpeakerSegment, utterances string, level domain.CTALevel, signals []string) error {
	if segments == nil {
		segments = []domain.SpeakerSegment{}
	}
	if signals == nil {
		signals = []string{}
	}
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	return s.execOne(ctx, "save cta", `
		UPDATE consultations
		SET speaker_segments = $2, customer_utterances = $3, cta_level = $4, cta_signals = $5, updated_at = now()
		WHERE id = $1`, id, segJSON, utterances, string(level), signals)
}

func (s *Store) SaveIntent(ctx context.Context, id uuid.UUID, intent domain.Intent) error {
	intent.Normalize()
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	return s.execOne(ctx, "save intent", `
		UPDATE consultations SET intent_extraction = $2, updated_at = now()
		WHERE id = $1`, id, data)
}

// SaveClassification records the validated category. manual marks an
// operator-supplied category from a resume.
func (s *Store) SaveClassification(ctx context.Context, id uuid.UUID, cls domain.Classification, manual bool) error {
	return s.execOne(ctx, "save classification", `
		UPDATE consultations
		SET classification = $2, classification_confidence = $3, classification_reason = $4,
		    is_manually_classified = $5, updated_at = now()
		WHERE id = $1`, id, string(cls.Category), cls.Confidence, cls.Reason, manual)
}

// execOne runs an UPDATE that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
