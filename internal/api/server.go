// Package api exposes the HTTP surface of the scoring engine.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/fraud"
	"github.com/kestrelhq/kestrel/internal/history"
	"github.com/kestrelhq/kestrel/internal/review"
	"github.com/kestrelhq/kestrel/internal/risk"
	"github.com/kestrelhq/kestrel/internal/screening"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(
	cfg domain.ServerConfig,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	fraudEnsemble *fraud.Ensemble,
	riskEnsemble *risk.Ensemble,
	screen *screening.Engine,
	ledger *review.Ledger,
	analyzer *history.Analyzer,
	version string,
) *Server {
	handler := NewHandler(repo, cache, bus, fraudEnsemble, riskEnsemble, screen, ledger, analyzer, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Fraud scoring
	router.Post("/fraud/evaluate", handler.Evaluate)
	router.Get("/transactions/{id}", handler.GetTransaction)
	router.Get("/transactions/{id}/score", handler.GetScore)

	// Pattern audit records
	router.Get("/patterns", handler.ListPatterns)
	router.Get("/patterns/stats", handler.PatternStats)
	router.Get("/patterns/{id}", handler.GetPattern)
	router.Post("/patterns/{id}/review", handler.ReviewPattern)

	// Credit risk
	router.Post("/risk/assess", handler.Assess)
	router.Get("/risk/users/{id}/trend", handler.Trend)
	router.Get("/assessments", handler.ListAssessments)
	router.Get("/assessments/{id}", handler.GetAssessment)
	router.Post("/assessments/{id}/review", handler.ReviewAssessment)

	// Screen rule management
	router.Get("/screen-rules", handler.ListScreenRules)
	router.Post("/screen-rules", handler.CreateScreenRule)
	router.Post("/screen-rules/reload", handler.ReloadScreenRules)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
