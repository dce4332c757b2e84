package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hyperjump/yomu/internal/answer"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/retriever"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/store"
	"go.uber.org/zap"
)

const defaultSourcesLimit = 100

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	start := time.Now()
	results, err := s.retriever.Search(r.Context(), req.Query, req.K)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Query:     req.Query,
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.respondError(w, http.StatusNotImplemented, "answer generation not configured")
		return
	}
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	start := time.Now()
	text, chunks, err := answer.Ask(r.Context(), s.retriever, s.generator, req.Question, req.K)
	if err != nil {
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.AskResponse{
		Question:  req.Question,
		Answer:    text,
		Sources:   chunks,
		QueryTime: time.Since(start).Milliseconds(),
	})
}

type ingestRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Debug("ingest request", zap.String("path", req.Path), zap.Bool("dir", info.IsDir()))

	var resp *models.IngestResponse
	if info.IsDir() {
		resp, err = s.pipeline.IngestDirectory(r.Context(), req.Path)
	} else {
		resp, err = s.pipeline.IngestFile(r.Context(), req.Path)
	}
	if err != nil {
		s.logger.Error("ingest failed", zap.String("path", req.Path), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Reset(r.Context()); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report, err := s.pipeline.Reload(r.Context())
	if err != nil {
		s.logger.Error("reload after reset failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "reset", "load": report})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	report, err := s.pipeline.Reload(r.Context())
	if err != nil {
		s.logger.Error("reload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	dbPath := ""
	if s.config != nil {
		dbPath = s.config.Storage.DatabasePath
	}
	resp, err := BuildStatus(r.Context(), s.retriever, s.ledger, dbPath)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// BuildStatus reports the store behind r. ledger may be nil.
func BuildStatus(ctx context.Context, r *retriever.Retriever, ledger storage.Ledger, dbPath string) (*models.StatusResponse, error) {
	st := r.Store()
	resp := &models.StatusResponse{
		Dimension:        st.Dimension(),
		EmbeddingModelID: r.Embedder().ModelID(),
		StoreModelID:     st.ModelID(),
		Chunks:           st.Count(),
		TopK:             r.TopK(),
		LastLoad:         string(st.LastLoad().State),
	}
	if ledger != nil {
		n, err := ledger.CountSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("count sources: %w", err)
		}
		resp.Sources = int(n)
	}
	var paths []string
	if p := st.Path(); p != "" {
		paths = append(paths, p, p+store.MetaSuffix)
	}
	if dbPath != "" {
		paths = append(paths, dbPath)
	}
	if bytes, err := storage.DiskUsageBytes(paths...); err == nil {
		resp.DiskUsageBytes = bytes
	}
	return resp, nil
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "ledger not enabled")
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultSourcesLimit
	}
	sources, err := s.ledger.ListSources(r.Context(), max(offset, 0), limit)
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []*storage.Source{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		s.respondError(w, statusFor(err), "directory not found")
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, retriever.ErrEmptyQuery),
		errors.Is(err, search.ErrInvalidK),
		errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrModelMismatch):
		return http.StatusConflict
	case errors.Is(err, store.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
