// Package server provides the HTTP API for yomu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/yomu/internal/answer"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/ingest"
	"github.com/hyperjump/yomu/internal/retriever"
	"github.com/hyperjump/yomu/internal/storage"
	"go.uber.org/zap"
)

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the yomu API.
type Server struct {
	retriever *retriever.Retriever
	pipeline  *ingest.Pipeline
	generator answer.Generator
	ledger    storage.Ledger
	watch     WatchService
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server

	configPath string
	configMu   sync.Mutex
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithGenerator enables /api/v1/ask.
func WithGenerator(g answer.Generator) Option {
	return func(s *Server) { s.generator = g }
}

// WithLedger enables source listing and source counts in status.
func WithLedger(l storage.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithWatch enables the watch directory endpoints. When configPath is set,
// directory changes are written back to the config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(r *retriever.Retriever, p *ingest.Pipeline, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		retriever: r,
		pipeline:  p,
		config:    cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Timeout(60*time.Second)).Post("/search", s.handleSearch)
		r.With(middleware.Timeout(180*time.Second)).Post("/ask", s.handleAsk)
		r.Post("/ingest", s.handleIngest)
		r.Post("/reset", s.handleReset)
		r.Post("/reload", s.handleReload)
		r.Get("/status", s.handleStatus)
		r.Get("/sources", s.handleSources)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("took", time.Since(start)))
	})
}
