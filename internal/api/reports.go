package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/store"
)

type statusRequest struct {
	Status string `json:"status"`
}

type regenerateRequest struct {
	Direction string `json:"direction"`
}

// consultationStatusFor mirrors report review states onto the consultation.
var consultationStatusFor = map[domain.ReportStatus]domain.Status{
	domain.ReportApproved: domain.StatusReportApproved,
	domain.ReportSent:     domain.StatusSent,
}

// getReport handles GET /api/v1/reports/{id}
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rep, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// updateReportStatus handles PATCH /api/v1/reports/{id}/status
func (s *Server) updateReportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status := domain.ReportStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case domain.ReportApproved, domain.ReportSent, domain.ReportRejected:
	default:
		writeError(w, http.StatusBadRequest, "status must be approved, sent or rejected")
		return
	}

	ctx := r.Context()
	rep, err := s.store.GetReport(ctx, id)
	if err != nil {
		s.storeError(w, err, "report")
		return
	}
	if err := s.store.UpdateReportStatus(ctx, id, status); err != nil {
		s.storeError(w, err, "report")
		return
	}
	if cs, ok := consultationStatusFor[status]; ok {
		if err := s.store.UpdateStatus(ctx, rep.ConsultationID, cs, ""); err != nil {
			s.storeError(w, err, "consultation")
			return
		}
	}

	s.logger.Info("report status updated", "report_id", id, "status", status)
	writeJSON(w, http.StatusOK, map[string]string{"report_id": id.String(), "status": string(status)})
}

// regenerateReport handles POST /api/v1/reports/{id}/regenerate
func (s *Server) regenerateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req regenerateRequest
	if !decode(w, r, &req) {
		return
	}
	direction := strings.TrimSpace(req.Direction)
	if direction == "" {
		writeError(w, http.StatusBadRequest, "direction is required")
		return
	}
	if _, err := s.store.GetReport(r.Context(), id); err != nil {
		s.storeError(w, err, "report")
		return
	}

	s.background(r, "report regeneration", []any{"report_id", id}, func(ctx context.Context) error {
		return s.runner.Regenerate(ctx, id, direction)
	})
	writeJSON(w, http.StatusAccepted, acceptedResponse{ReportID: id.String(), Status: "regenerating"})
}

type publicReportResponse struct {
	ReportData     json.RawMessage `json:"report_data"`
	ReportDataKo   json.RawMessage `json:"report_data_ko"`
	CustomerName   string          `json:"customer_name"`
	Classification string          `json:"classification"`
	CreatedAt      time.Time       `json:"created_at"`
}

// publicReport handles GET /api/v1/public/report/{token}
func (s *Server) publicReport(w http.ResponseWriter, r *http.Request) {
	pr, ok := s.lookupToken(w, r)
	if !ok {
		return
	}
	switch pr.Report.Status {
	case domain.ReportApproved, domain.ReportSent:
	default:
		writeError(w, http.StatusForbidden, "report is not published")
		return
	}

	dataKo := pr.Report.DataKo
	if dataKo == nil {
		dataKo = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, publicReportResponse{
		ReportData:     pr.Report.Data,
		ReportDataKo:   dataKo,
		CustomerName:   pr.CustomerName,
		Classification: string(pr.Classification),
		CreatedAt:      pr.Report.CreatedAt,
	})
}

// verifyReport handles GET /api/v1/public/report/{token}/verify
func (s *Server) verifyReport(w http.ResponseWriter, r *http.Request) {
	pr, ok := s.lookupToken(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      true,
		"expires_at": pr.Report.AccessExpiresAt,
	})
}

// markOpened handles POST /api/v1/public/report/{token}/opened
func (s *Server) markOpened(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	opened, err := s.store.MarkOpened(r.Context(), token)
	if err != nil {
		s.storeError(w, err, "report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"first_open": opened})
}

// lookupToken resolves the path token, writing 404 or 410 when it is not usable.
func (s *Server) lookupToken(w http.ResponseWriter, r *http.Request) (*store.PublicReport, bool) {
	pr, err := s.store.GetReportByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.storeError(w, err, "report")
		return nil, false
	}
	if !pr.Report.AccessExpiresAt.IsZero() && s.now().After(pr.Report.AccessExpiresAt) {
		writeError(w, http.StatusGone, "report link has expired")
		return nil, false
	}
	return pr, true
}
