// Package api serves the operational status HTTP API: health, fetch
// progress per constituency, and the current request budget.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/constituency-streets/internal/config"
	apperrors "github.com/constituency-streets/internal/errors"
	"github.com/constituency-streets/internal/logging"
	"github.com/constituency-streets/internal/service"
)

// StatusService answers the progress and usage queries the API exposes.
type StatusService interface {
	FetchProgress(ctx context.Context) ([]service.ConstituencyProgress, error)
	Usage(ctx context.Context) (service.UsageReport, error)
	SimilarConstituencies(ctx context.Context, query string) ([]string, error)
}

// Server is the status HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	status     StatusService
	logger     *logging.Logger
}

func NewServer(cfg config.ServerConfig, status StatusService, logger *logging.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		status: status,
		logger: logger.WithField("component", "api"),
	}

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/usage", s.handleUsage).Methods(http.MethodGet)
	api.HandleFunc("/constituencies/search", s.handleConstituencySearch).Methods(http.MethodGet)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "constituency-streets",
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.status.FetchProgress(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("progress query failed")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"constituencies": progress})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	report, err := s.status.Usage(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("usage query failed")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleConstituencySearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondServiceError(w, apperrors.NewValidationError("constituency search", "missing query parameter q"))
		return
	}
	matches, err := s.status.SimilarConstituencies(r.Context(), query)
	if err != nil {
		s.logger.WithError(err).Error("constituency search failed")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"query": query, "matches": matches})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("status API listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("status API shutting down")
	return s.httpServer.Shutdown(ctx)
}
