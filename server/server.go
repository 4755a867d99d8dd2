// Package server exposes the HTTP surface: event ingestion, session
// lifecycle, health, and the WebSocket upgrade for live delivery.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/db"
	"github.com/sagars2004/Flowstate/delivery"
	"github.com/sagars2004/Flowstate/inference"
	"github.com/sagars2004/Flowstate/intervention"
	"github.com/sagars2004/Flowstate/logging"
)

// StatsProvider reports rate-limit headroom for the health endpoint.
// The production implementation is *inference.Client; degraded mode
// has none.
type StatsProvider interface {
	Stats() inference.RateLimitStats
}

// Config holds server settings.
type Config struct {
	// Port to listen on
	Port int
	// ReadTimeout bounds request reading
	ReadTimeout time.Duration
	// WriteTimeout bounds response writing; must exceed the slowest
	// synchronous handler (session end waits on deep-tier inference)
	WriteTimeout time.Duration
}

// DefaultServerConfig returns standard timeouts for the given port.
func DefaultServerConfig(port int) Config {
	return Config{
		Port:         port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
}

// Deps collects the server's collaborators.
type Deps struct {
	Orchestrator  *intervention.Orchestrator
	Hub           *delivery.Hub
	Sessions      *db.SessionStore
	Interventions *db.InterventionStore
	Stats         StatsProvider // nil in degraded mode
	Logger        *logging.Logger
}

// Server wires the chi router over the orchestration pipeline.
type Server struct {
	deps Deps
	http *http.Server
}

// New builds the server and its routes.
func New(config Config, deps Deps) *Server {
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/events", s.handleIngestEvent)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/end", s.handleEndSession)
			r.Get("/interventions", s.handleInterventionHistory)
		})
	})
	r.Get("/ws/{sessionID}", s.handleWebSocket)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start listens until Shutdown or a listener error.
func (s *Server) Start() error {
	s.deps.Logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// logRequests is a minimal structured access log.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.deps.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
