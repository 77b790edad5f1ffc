package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ent0n29/companion/internal/codec"
	"github.com/ent0n29/companion/internal/session"
)

type appendMessageRequest struct {
	Role      session.Role   `json:"role"`
	Content   string         `json:"content"`
	AudioPath string         `json:"audio_path,omitempty"`
	AudioData string         `json:"audio_data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	// UserID, when set, also archives the turn in long-term memory.
	UserID string `json:"user_id,omitempty"`
}

// saveSessionRequest replaces the stored messages. Omitted metadata or mono
// keeps what is stored; an empty value clears it.
type saveSessionRequest struct {
	Messages []session.Message  `json:"messages"`
	Metadata map[string]any     `json:"metadata"`
	Mono     []session.MonoItem `json:"mono_context"`
}

type addMonoRequest struct {
	Content string `json:"content"`
	Rounds  int    `json:"rounds"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:   uuid.NewString(),
		MaxMessages: s.sessions.MaxMessages(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	summaries, err := s.sessions.ListSessions(limit)
	if err != nil {
		s.log.Error("list sessions failed", "err", err)
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.sessions.Stats()
	if err != nil {
		s.log.Error("session stats failed", "err", err)
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, state := s.sessions.Lookup(id)
	switch state {
	case codec.Found:
		respondJSON(w, http.StatusOK, doc)
	case codec.Corrupt:
		respondError(w, http.StatusUnprocessableEntity, "session_corrupt", "stored session could not be decoded")
	default:
		respondError(w, http.StatusNotFound, "session_not_found", "no stored session "+id)
	}
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req saveSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Messages == nil {
		req.Messages = []session.Message{}
	}
	for _, m := range req.Messages {
		if !m.Role.Valid() {
			respondError(w, http.StatusBadRequest, "invalid_role", "role must be user, assistant or system")
			return
		}
	}
	if err := s.sessions.Save(id, req.Messages, req.Metadata, req.Mono); err != nil {
		s.respondSessionError(w, err)
		return
	}
	doc, _ := s.sessions.Lookup(id)
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Clear(id); err != nil {
		s.respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	count, err := intQuery(r, "count", s.sessions.MaxMessages())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_count", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   s.sessions.Recent(id, count),
	})
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req appendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !req.Role.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_role", "role must be user, assistant or system")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}

	msg := session.Message{
		Role:      req.Role,
		Content:   req.Content,
		AudioPath: req.AudioPath,
		AudioData: req.AudioData,
		Metadata:  req.Metadata,
	}
	if err := s.sessions.Append(id, msg); err != nil {
		s.respondSessionError(w, err)
		return
	}

	if s.memory != nil && strings.TrimSpace(req.UserID) != "" && req.Role != session.RoleSystem {
		// The turn is already durable in the session; an archive failure is
		// logged by the archiver and does not fail the request.
		_, _ = s.memory.Archive(r.Context(), req.UserID, id, string(req.Role), req.Content, time.Now())
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id": id,
		"messages":   s.sessions.Recent(id, s.sessions.MaxMessages()),
	})
}

func (s *Server) handleGetMono(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"mono":       s.sessions.GetMono(id),
	})
}

func (s *Server) handleAddMono(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req addMonoRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	item, err := s.sessions.AddMono(id, req.Content, req.Rounds)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleClearExpiredMono(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.sessions.ClearExpiredMono(id)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "removed": removed})
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrInvalidSessionID) {
		respondError(w, http.StatusBadRequest, "invalid_session_id", err.Error())
		return
	}
	s.log.Error("session write failed", "err", err)
	respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
}
