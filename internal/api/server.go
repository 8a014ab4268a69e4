package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/rag"
	"github.com/ippeo/consultd/internal/store"
)

// Store is the persistence the API reads and writes directly.
type Store interface {
	Ping(ctx context.Context) error
	CreateConsultation(ctx context.Context, nc store.NewConsultation) (uuid.UUID, error)
	GetConsultation(ctx context.Context, id uuid.UUID) (*domain.Consultation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, errMsg string) error
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	UpdateReportStatus(ctx context.Context, id uuid.UUID, status domain.ReportStatus) error
	GetReportByToken(ctx context.Context, token string) (*store.PublicReport, error)
	MarkOpened(ctx context.Context, token string) (bool, error)
}

// Runner starts pipeline work. Calls block until the work is done.
type Runner interface {
	Run(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID, category domain.Category) error
	Regenerate(ctx context.Context, reportID uuid.UUID, direction string) error
}

type Retriever interface {
	Retrieve(ctx context.Context, q rag.Query) ([]domain.Candidate, error)
}

type Deps struct {
	Store     Store
	Runner    Runner
	Retriever Retriever
	Gatherer  prometheus.Gatherer
}

type Server struct {
	router    *chi.Mux
	port      int
	store     Store
	runner    Runner
	retriever Retriever
	logger    *slog.Logger
	now       func() time.Time

	httpSrv *http.Server
	jobs    sync.WaitGroup
}

func NewServer(port int, apiToken string, d Deps, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		store:     d.Store,
		runner:    d.Runner,
		retriever: d.Retriever,
		logger:    logger,
		now:       time.Now,
	}

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/public/report/{token}", func(r chi.Router) {
			r.Get("/", s.publicReport)
			r.Get("/verify", s.verifyReport)
			r.Post("/opened", s.markOpened)
		})

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(apiToken))

			r.Post("/consultations", s.createConsultation)
			r.Get("/consultations/{id}", s.getConsultation)
			r.Post("/consultations/{id}/run", s.runConsultation)
			r.Post("/consultations/{id}/resume", s.resumeConsultation)

			r.Get("/reports/{id}", s.getReport)
			r.Patch("/reports/{id}/status", s.updateReportStatus)
			r.Post("/reports/{id}/regenerate", s.regenerateReport)

			r.Post("/rag/search", s.ragSearch)
		})
	})

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for background jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background jobs still running at shutdown")
	}
	return err
}

// Wait blocks until every background job has returned.
func (s *Server) Wait() {
	s.jobs.Wait()
}

// BearerAuth rejects requests without the static API token. An empty token
// disables the check.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// background runs job detached from the request so it outlives the response.
func (s *Server) background(r *http.Request, name string, attrs []any, job func(context.Context) error) {
	ctx := context.WithoutCancel(r.Context())
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		if err := job(ctx); err != nil {
			s.logger.Error(name+" failed", append(attrs, "error", err)...)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps a store error onto a response.
func (s *Server) storeError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("store error", "what", what, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}
