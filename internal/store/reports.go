package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ippeo/consultd/internal/domain"
)

const reportColumns = `id, consultation_id, report_type, report_data, report_data_ko, rag_context,
	review_count, review_passed, status, access_token, access_expires_at, review_notes,
	email_opened_at, created_at, updated_at`

// newAccessToken returns 32 lowercase hex characters.
func newAccessToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// UpsertReport saves r keyed by (consultation_id, report_type). An existing
// access token is kept, the link expiry is refreshed, the Korean copy is
// cleared and the status returns to draft.
func (s *Store) UpsertReport(ctx context.Context, r *domain.Report) (*domain.Report, error) {
	rag := r.RAGContext
	if rag == nil {
		rag = []domain.Candidate{}
	}
	ragJSON, err := json.Marshal(rag)
	if err != nil {
		return nil, fmt.Errorf("encode rag context: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO reports (id, consultation_id, report_type, report_data, rag_context,
		                     review_count, review_passed, status, access_token, access_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'draft', $8, $9)
		ON CONFLICT (consultation_id, report_type) DO UPDATE SET
			report_data       = EXCLUDED.report_data,
			report_data_ko    = NULL,
			rag_context       = EXCLUDED.rag_context,
			review_count      = EXCLUDED.review_count,
			review_passed     = EXCLUDED.review_passed,
			status            = 'draft',
			access_token      = COALESCE(reports.access_token, EXCLUDED.access_token),
			access_expires_at = COALESCE(reports.access_expires_at, EXCLUDED.access_expires_at),
			updated_at        = now()
		RETURNING `+reportColumns,
		uuid.New(), r.ConsultationID, string(r.Type), []byte(r.Data), ragJSON,
		r.ReviewCount, r.ReviewPassed, newAccessToken(), s.now().Add(s.linkTTL))
	saved, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("upsert %s report: %w", r.Type, err)
	}
	return saved, nil
}

// RefreshReportLink restarts the public link's lifetime from now.
func (s *Store) RefreshReportLink(ctx context.Context, id uuid.UUID) (time.Time, error) {
	expires := s.now().Add(s.linkTTL)
	op := fmt.Sprintf("refresh link of report %s", id)
	if err := s.execOne(ctx, op, `UPDATE reports SET access_expires_at = $2, updated_at = now() WHERE id = $1`, id, expires); err != nil {
		return time.Time{}, err
	}
	return expires, nil
}

func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, notFound(err))
	}
	return r, nil
}

func (s *Store) GetReportByType(ctx context.Context, consultationID uuid.UUID, t domain.ReportType) (*domain.Report, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE consultation_id = $1 AND report_type = $2`, consultationID, string(t))
	r, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("get %s report of %s: %w", t, consultationID, notFound(err))
	}
	return r, nil
}

// PublicReport is a report as served through its access link.
type PublicReport struct {
	Report         *domain.Report
	CustomerName   string
	Classification domain.Category
}

func (s *Store) GetReportByToken(ctx context.Context, token string) (*PublicReport, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT r.id, r.consultation_id, r.report_type, r.report_data, r.report_data_ko, r.rag_context,
		       r.review_count, r.review_passed, r.status, r.access_token, r.access_expires_at, r.review_notes,
		       r.email_opened_at, r.created_at, r.updated_at, c.customer_name, c.classification
		FROM reports r JOIN consultations c ON c.id = r.consultation_id
		WHERE r.access_token = $1`, token)

	var (
		pr  PublicReport
		cls *string
	)
	r, err := scanReport(row, &pr.CustomerName, &cls)
	if err != nil {
		return nil, fmt.Errorf("get report by token: %w", notFound(err))
	}
	pr.Report = r
	pr.Classification = domain.Category(deref(cls))
	return &pr, nil
}

// UpdateReportStatus sets a report's review status.
func (s *Store) UpdateReportStatus(ctx context.Context, id uuid.UUID, status domain.ReportStatus) error {
	return s.execOne(ctx, "update report status", `
		UPDATE reports SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
}

func (s *Store) MarkReportRejected(ctx context.Context, id uuid.UUID, notes string) error {
	return s.execOne(ctx, "reject report", `
		UPDATE reports SET status = 'rejected', review_notes = $2, updated_at = now()
		WHERE id = $1`, id, nullable(notes))
}

// SetReportTranslation stores the Korean copy of a report.
func (s *Store) SetReportTranslation(ctx context.Context, id uuid.UUID, data json.RawMessage) error {
	return s.execOne(ctx, "save report translation", `
		UPDATE reports SET report_data_ko = $2, updated_at = now() WHERE id = $1`, id, []byte(data))
}

// MarkOpened stamps email_opened_at the first time the link is opened. It
// reports whether this call set it.
func (s *Store) MarkOpened(ctx context.Context, token string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reports SET email_opened_at = now()
		WHERE access_token = $1 AND email_opened_at IS NULL`, token)
	if err != nil {
		return false, fmt.Errorf("mark opened: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// scanReport reads reportColumns followed by any extra destinations.
func scanReport(row pgx.Row, extra ...any) (*domain.Report, error) {
	var (
		r                    domain.Report
		typ, status          string
		data, dataKo, ragRaw []byte
		token, notes         *string
		expires              *time.Time
	)
	dest := []any{&r.ID, &r.ConsultationID, &typ, &data, &dataKo, &ragRaw,
		&r.ReviewCount, &r.ReviewPassed, &status, &token, &expires, &notes,
		&r.EmailOpenedAt, &r.CreatedAt, &r.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	r.Type = domain.ReportType(typ)
	r.Status = domain.ReportStatus(status)
	r.Data = data
	if len(dataKo) > 0 {
		r.DataKo = dataKo
	}
	r.AccessToken = deref(token)
	r.ReviewNotes = deref(notes)
	if expires != nil {
		r.AccessExpiresAt = *expires
	}
	if len(ragRaw) > 0 {
		if err := json.Unmarshal(ragRaw, &r.RAGContext); err != nil {
			return nil, fmt.Errorf("decode rag context: %w", err)
		}
	}
	return &r, nil
}
