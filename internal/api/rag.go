package api

import (
	"net/http"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/rag"
)

type ragSearchRequest struct {
	Keywords  []string `json:"keywords"`
	Category  string   `json:"category"`
	Focus     string   `json:"focus"`
	Threshold *float64 `json:"threshold"`
	Limit     int      `json:"limit"`
}

type ragSearchResponse struct {
	Results []domain.Candidate `json:"results"`
	Count   int                `json:"count"`
}

// ragSearch handles POST /api/v1/rag/search
func (s *Server) ragSearch(w http.ResponseWriter, r *http.Request) {
	var req ragSearchRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Keywords) == 0 && req.Focus == "" {
		writeError(w, http.StatusBadRequest, "keywords or focus is required")
		return
	}
	if req.Category != "" && !domain.ParseCategory(req.Category).Reportable() {
		writeError(w, http.StatusBadRequest, "category must be plastic_surgery or dermatology")
		return
	}

	if t := req.Threshold; t != nil && (*t < 0 || *t > 1) {
		writeError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
		return
	}

	results, err := s.retriever.Retrieve(r.Context(), rag.Query{
		Keywords:  req.Keywords,
		Category:  req.Category,
		Focus:     req.Focus,
		Threshold: req.Threshold,
		Limit:     req.Limit,
	})
	if err != nil {
		s.logger.Error("rag search failed", "error", err)
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	if results == nil {
		results = []domain.Candidate{}
	}
	writeJSON(w, http.StatusOK, ragSearchResponse{Results: results, Count: len(results)})
}
