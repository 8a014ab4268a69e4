package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/store"
)

type createConsultationRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	OriginalText  string `json:"original_text"`
}

type resumeRequest struct {
	Classification string `json:"classification"`
}

type acceptedResponse struct {
	ConsultationID string `json:"consultation_id,omitempty"`
	ReportID       string `json:"report_id,omitempty"`
	Status         string `json:"status"`
}

// createConsultation handles POST /api/v1/consultations
func (s *Server) createConsultation(w http.ResponseWriter, r *http.Request) {
	var req createConsultationRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OriginalText) == "" {
		writeError(w, http.StatusBadRequest, "original_text is required")
		return
	}

	id, err := s.store.CreateConsultation(r.Context(), store.NewConsultation{
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		OriginalText:  req.OriginalText,
	})
	if err != nil {
		s.storeError(w, err, "consultation")
		return
	}

	s.logger.Info("consultation registered", "consultation_id", id)
	s.background(r, "pipeline run", []any{"consultation_id", id}, func(ctx context.Context) error {
		return s.runner.Run(ctx, id)
	})
	writeJSON(w, http.StatusAccepted, acceptedResponse{ConsultationID: id.String(), Status: string(domain.StatusRegistered)})
}

// getConsultation handles GET /api/v1/consultations/{id}
func (s *Server) getConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := s.store.GetConsultation(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "consultation")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// runConsultation handles POST /api/v1/consultations/{id}/run
func (s *Server) runConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetConsultation(r.Context(), id); err != nil {
		s.storeError(w, err, "consultation")
		return
	}

	s.background(r, "pipeline run", []any{"consultation_id", id}, func(ctx context.Context) error {
		return s.runner.Run(ctx, id)
	})
	writeJSON(w, http.StatusAccepted, acceptedResponse{ConsultationID: id.String(), Status: "started"})
}

// resumeConsultation handles POST /api/v1/consultations/{id}/resume
func (s *Server) resumeConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resumeRequest
	if !decode(w, r, &req) {
		return
	}
	category := domain.ParseCategory(req.Classification)
	if !category.Reportable() {
		writeError(w, http.StatusBadRequest, "classification must be plastic_surgery or dermatology")
		return
	}
	if _, err := s.store.GetConsultation(r.Context(), id); err != nil {
		s.storeError(w, err, "consultation")
		return
	}

	s.background(r, "pipeline resume", []any{"consultation_id", id, "classification", category}, func(ctx context.Context) error {
		return s.runner.Resume(ctx, id, category)
	})
	writeJSON(w, http.StatusAccepted, acceptedResponse{ConsultationID: id.String(), Status: "resumed"})
}
