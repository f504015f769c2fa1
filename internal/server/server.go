// Package server exposes the session's UI event stream over HTTP as
// Server-Sent Events, the only inbound surface SPEC_FULL.md names beyond
// the outbound Editor RPC and LLM provider calls internal/editorbridge
// and internal/llmbridge already own.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skcd-labs/sidecar-core/internal/event"
)

// Config holds the event-stream server's tunables.
type Config struct {
	Addr         string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig mirrors the teacher's own server defaults, with no write
// timeout since SSE connections are held open indefinitely.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// Server serves the /events SSE endpoint against a shared event.Bus.
type Server struct {
	config  Config
	bus     *event.Bus
	router  *chi.Mux
	httpSrv *http.Server
}

// New builds a Server publishing events from bus.
func New(config Config, bus *event.Bus) *Server {
	s := &Server{config: config, bus: bus, router: chi.NewRouter()}
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	if config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET"},
			AllowCredentials: false,
		}))
	}
	s.router.Get("/events", s.events)
	return s
}

// ListenAndServe starts the HTTP listener, blocking until it returns an
// error (including the graceful one from Shutdown).
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:        s.config.Addr,
		Handler:     s.router,
		ReadTimeout: s.config.ReadTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
