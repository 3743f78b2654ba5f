package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/gakumon/internal/answer"
	"github.com/hyperjump/gakumon/internal/embedding"
	"github.com/hyperjump/gakumon/internal/engine"
	"github.com/hyperjump/gakumon/internal/models"
	"github.com/hyperjump/gakumon/internal/storage"
	"github.com/hyperjump/gakumon/internal/vector"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrieveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(s.config.Retrieval.MaxTopK); err != nil {
		s.respondErr(w, err)
		return
	}
	s.logger.Debug("retrieve request", zap.String("query", req.Query), zap.Int("k", req.K))
	start := time.Now()
	passages, err := s.engine.Search(r.Context(), req.Query, req.K)
	if err != nil {
		s.logger.Error("retrieve failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.RetrieveResponse{
		Query:     req.Query,
		Passages:  passagePointers(passages),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.answerer == nil {
		s.respondErr(w, answer.ErrNotConfigured)
		return
	}
	var req models.AskRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(s.config.Retrieval.MaxTopK); err != nil {
		s.respondErr(w, err)
		return
	}
	start := time.Now()
	passages, err := s.engine.Search(r.Context(), req.Question, req.K)
	if err != nil {
		s.logger.Error("ask retrieval failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	text, err := s.answerer.Answer(r.Context(), req.Question, texts)
	if err != nil {
		s.logger.Error("ask generation failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.AskResponse{
		Question:  req.Question,
		Answer:    text,
		Model:     s.answerer.Model(),
		Passages:  passagePointers(passages),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if !s.decodeBody(w, r, &input) {
		return
	}
	s.logger.Debug("add document request", zap.String("id", input.ID), zap.String("title", input.Title))
	res, err := s.indexer.IndexText(r.Context(), input)
	if err != nil {
		s.logger.Error("add document failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	s.respondJSON(w, status, res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxListLimit)
	docs, err := s.catalog.List(r.Context(), offset, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	total, err := s.catalog.Count(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.DocumentList{Documents: docs, Total: int(total)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("rebuild requested")
	start := time.Now()
	if err := s.engine.Rebuild(r.Context()); err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	st := s.engine.Status()
	s.respondJSON(w, http.StatusOK, &models.RebuildResponse{
		Status:     "rebuilt",
		Chunks:     st.Size,
		Dimensions: st.Dimensions,
		TookMS:     time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	docs, err := s.catalog.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	resp := &models.StatusResponse{
		State:          st.State.String(),
		Chunks:         st.Size,
		Dimensions:     st.Dimensions,
		Model:          st.Model,
		IndexType:      st.IndexType,
		SnapshotIndex:  st.SnapshotIndex,
		SnapshotChunks: st.SnapshotChunks,
		Documents:      int(docs),
	}
	if n, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, st.SnapshotIndex, st.SnapshotChunks); err == nil {
		resp.DiskUsageBytes = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.engine.Status().State != engine.StateReady {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps engine and collaborator errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, engine.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vector.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, answer.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, embedding.ErrEmbeddingUnavailable), errors.Is(err, answer.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func passagePointers(ps []models.Passage) []*models.Passage {
	out := make([]*models.Passage, len(ps))
	for i := range ps {
		out[i] = &ps[i]
	}
	return out
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// decodeBody decodes the JSON request body into v, writing the error response on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	s.respondError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(err), err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
