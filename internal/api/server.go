// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/filevault/filevault/internal/files"
	"github.com/filevault/filevault/internal/logging"
	"github.com/filevault/filevault/internal/metadata"
	"github.com/filevault/filevault/internal/metrics"
	"github.com/filevault/filevault/internal/session"
)

// tokenHeader carries the opaque session token.
const tokenHeader = "X-Token"

// Server is the HTTP server.
type Server struct {
	files         *files.Service
	sessions      session.Resolver
	maxUploadSize int64
}

// NewServer creates a new server.
func NewServer(filesSvc *files.Service, sessions session.Resolver, maxUploadSize int64) *Server {
	return &Server{
		files:         filesSvc,
		sessions:      sessions,
		maxUploadSize: maxUploadSize,
	}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /files", s.handleUpload)
	mux.HandleFunc("GET /files", s.handleList)
	mux.HandleFunc("GET /files/{id}", s.handleGet)
	mux.HandleFunc("PUT /files/{id}/publish", s.handlePublish)
	mux.HandleFunc("PUT /files/{id}/unpublish", s.handleUnpublish)
	mux.HandleFunc("GET /files/{id}/data", s.handleDownload)

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the X-Token header to a user id.
func (s *Server) authenticate(r *http.Request) (string, error) {
	token := r.Header.Get(tokenHeader)
	if token == "" {
		return "", files.ErrUnauthorized
	}
	userID, err := s.sessions.Resolve(r.Context(), token)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		return "", files.ErrUnauthorized
	}
	metrics.RecordAuthAttempt(true)
	return userID, nil
}

// identity resolves the caller if a valid token is present, and returns the
// empty identity otherwise. Used by download, where auth is optional and an
// invalid token must behave like no token.
func (s *Server) identity(r *http.Request) string {
	token := r.Header.Get(tokenHeader)
	if token == "" {
		return ""
	}
	userID, err := s.sessions.Resolve(r.Context(), token)
	if err != nil {
		return ""
	}
	return userID
}

// parentID accepts the JSON parentId field as either a number or a string;
// clients send both forms.
type parentID string

func (p *parentID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*p = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = parentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("parentId must be a string or number")
	}
	*p = parentID(n.String())
	return nil
}

type uploadRequest struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	ParentID parentID `json:"parentId"`
	IsPublic bool     `json:"isPublic"`
	Data     string   `json:"data"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.files.Upload(r.Context(), userID, files.UploadParams{
		Name:     req.Name,
		Type:     req.Type,
		ParentID: string(req.ParentID),
		IsPublic: req.IsPublic,
		Data:     req.Data,
	})
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	rec, err := s.files.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 0 {
		page = 0
	}

	records, err := s.files.List(r.Context(), userID, r.URL.Query().Get("parentId"), page)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, records)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	s.setPublic(w, r, s.files.Publish)
}

func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	s.setPublic(w, r, s.files.Unpublish)
}

func (s *Server) setPublic(w http.ResponseWriter, r *http.Request, toggle func(context.Context, string, string) (*metadata.FileRecord, error)) {
	userID, err := s.authenticate(r)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	rec, err := toggle(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	content, err := s.files.Download(r.Context(), s.identity(r), r.PathValue("id"))
	if err != nil {
		metrics.RecordDownload(0, false)
		s.sendServiceError(w, err)
		return
	}
	defer content.Reader.Close()

	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(content.Size, 10))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, content.Reader)
	if err != nil {
		logging.Warn("content transfer error", zap.String("path", r.URL.Path), zap.Error(err))
	}
	metrics.RecordDownload(n, err == nil)
}

// errorResponse is the structured error body; it carries a reason string
// and nothing else.
type errorResponse struct {
	Error string `json:"error"`
}

// sendServiceError maps controller errors onto status codes. Unexpected
// errors are logged and reported as a generic 500.
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, files.ErrUnauthorized):
		s.sendError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, files.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, files.ErrMissingName),
		errors.Is(err, files.ErrMissingType),
		errors.Is(err, files.ErrMissingData),
		errors.Is(err, files.ErrParentNotFound),
		errors.Is(err, files.ErrParentNotFolder),
		errors.Is(err, files.ErrFolderNoContent):
		s.sendError(w, http.StatusBadRequest, err.Error())
	default:
		logging.Error("request failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, errorResponse{Error: message})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn("response encode failed", zap.Error(err))
	}
}
