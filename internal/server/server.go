// Package server exposes simulation sessions over HTTP/JSON for the browser UI.
package server

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/keygenie/bb84sim/bb84"
	"github.com/keygenie/bb84sim/bb84/photon"
	"github.com/rs/zerolog"
)

// DefaultMaxSessions bounds the number of live sessions when Config leaves it
// unset.
const DefaultMaxSessions = 1024

// Config holds server configuration
type Config struct {
	Port int
	Log  zerolog.Logger

	// Seed, if non-zero, makes session randomness reproducible: the n-th
	// session created is seeded with Seed+n.
	Seed int64

	MaxSessions int
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	base   zerolog.Logger

	seed        int64
	created     atomic.Int64
	maxSessions int

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
}

// entry serializes access to one session; sessions are not safe for concurrent
// use.
type entry struct {
	mu      sync.Mutex
	session *bb84.Session
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		base:        cfg.Log,
		seed:        cfg.Seed,
		maxSessions: cfg.MaxSessions,
		sessions:    make(map[uuid.UUID]*entry),
	}
	if s.maxSessions <= 0 {
		s.maxSessions = DefaultMaxSessions
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Delete("/", s.handleDelete)
			r.Post("/advance", s.handleAdvance)
			r.Post("/retreat", s.handleRetreat)
			r.Post("/reset", s.handleReset)
			r.Post("/run", s.handleRun)
			r.Get("/report", s.handleReport)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) newSource() photon.Source {
	n := s.created.Add(1)
	if s.seed == 0 {
		return photon.NewSource(0)
	}
	return rand.New(rand.NewSource(s.seed + n))
}

func (s *Server) add(opts bb84.Opts) (*bb84.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.maxSessions {
		return nil, errTooManySessions
	}
	opts.Rand = s.newSource()
	opts.Log = &s.base
	sess, err := bb84.NewSession(opts)
	if err != nil {
		return nil, err
	}
	s.sessions[sess.ID()] = &entry{session: sess}
	return sess, nil
}

func (s *Server) lookup(id uuid.UUID) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	return e, ok
}

func (s *Server) remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}
