// Package web exposes the chat executor over HTTP.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mixelka/docsbot/internal/chat"
	"github.com/mixelka/docsbot/pkg/models"
)

// Asker runs one chat turn for a session
type Asker interface {
	Ask(ctx context.Context, sess *chat.Session, question, focus string) (models.Exchange, error)
}

// Server routes chat requests to the executor and serves transcript
// export/import for individual sessions.
type Server struct {
	asker    Asker
	sessions *chat.Registry
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer creates the HTTP surface over asker
func NewServer(asker Asker, sessions *chat.Registry, logger *slog.Logger) *Server {
	s := &Server{
		asker:    asker,
		sessions: sessions,
		logger:   logger.With("component", "web"),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/sessions/{id}/export", s.handleExport)
	s.mux.HandleFunc("POST /api/sessions/{id}/import", s.handleImport)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ChatRequest is the request body for a chat turn
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	Focus     string `json:"focus,omitempty"`
}

// ChatResponse carries the answer and its sources
type ChatResponse struct {
	SessionID string          `json:"sessionId"`
	Answer    string          `json:"answer"`
	Sources   []models.Source `json:"sources,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	sess := s.sessions.GetOrCreate(req.SessionID)
	ex, err := s.asker.Ask(r.Context(), sess, req.Question, req.Focus)
	if err != nil {
		s.logger.Error("chat turn failed", "session", req.SessionID, "error", err)
		http.Error(w, "failed to answer question", http.StatusBadGateway)
		return
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{
		SessionID: req.SessionID,
		Answer:    ex.Answer,
		Sources:   ex.Sources,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	data, err := chat.Export(sess)
	if err != nil {
		s.logger.Error("transcript export failed", "session", id, "error", err)
		http.Error(w, "failed to export transcript", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="transcript-`+id+`.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write response body", "error", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, 1<<20)); err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sess := s.sessions.GetOrCreate(id)
	if err := chat.Import(sess, buf.Bytes()); err != nil {
		http.Error(w, "invalid transcript: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Info("transcript imported", "session", id, "exchanges", len(sess.Exchanges()))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"exchanges": len(sess.Exchanges()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON buffers the encoded body first so a failed encode can
// still produce a clean 500 instead of a half-written response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("failed to write response body", "error", err)
	}
}
