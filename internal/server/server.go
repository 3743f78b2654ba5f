// Package server provides the HTTP API for gakumon.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/gakumon/internal/config"
	"github.com/hyperjump/gakumon/internal/engine"
	"github.com/hyperjump/gakumon/internal/indexer"
	"github.com/hyperjump/gakumon/internal/models"
	"github.com/hyperjump/gakumon/internal/storage"
)

// Engine is the retrieval side the API serves.
type Engine interface {
	Search(ctx context.Context, query string, k int) ([]models.Passage, error)
	Rebuild(ctx context.Context) error
	Status() engine.Status
}

// Answerer generates an answer from retrieved passages.
type Answerer interface {
	Answer(ctx context.Context, question string, passages []string) (string, error)
	Model() string
}

// Server is the HTTP server for the gakumon API.
type Server struct {
	engine   Engine
	indexer  *indexer.Indexer
	catalog  storage.Catalog
	answerer Answerer // nil when generation is disabled
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. answerer may be nil.
func NewServer(
	eng Engine,
	idx *indexer.Indexer,
	catalog storage.Catalog,
	answerer Answerer,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   eng,
		indexer:  idx,
		catalog:  catalog,
		answerer: answerer,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if d := s.config.Server.RequestTimeout(); d > 0 {
		r.Use(middleware.Timeout(d))
	}
	r.Use(middleware.Compress(5))
	if n := s.config.Server.MaxBodyBytes; n > 0 {
		r.Use(middleware.RequestSize(n))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/ask", s.handleAsk)
		r.Post("/documents", s.handleAddDocument)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Post("/rebuild", s.handleRebuild)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
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
