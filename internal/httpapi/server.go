package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/companion/internal/config"
	"github.com/ent0n29/companion/internal/eventlog"
	"github.com/ent0n29/companion/internal/memory"
	"github.com/ent0n29/companion/internal/observability"
	"github.com/ent0n29/companion/internal/session"
)

// Deps are the store instances the API serves. Memory may be nil.
type Deps struct {
	Sessions *session.Store
	Events   *eventlog.Store
	Memory   *memory.Archiver
	// MemoryMode names the archive backend for the readiness report.
	MemoryMode string
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

type Server struct {
	cfg        config.Config
	sessions   *session.Store
	events     *eventlog.Store
	memory     *memory.Archiver
	memoryMode string
	metrics    *observability.Metrics
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		sessions:   deps.Sessions,
		events:     deps.Events,
		memory:     deps.Memory,
		memoryMode: deps.MemoryMode,
		metrics:    deps.Metrics,
		log:        logger.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless the
				// operator opts out.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Platform bridges are not browsers and omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/ops", s.handlePerfOps)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Get("/stats", s.handleSessionStats)
		r.Get("/{id}", s.handleGetSession)
		r.Put("/{id}", s.handleSaveSession)
		r.Delete("/{id}", s.handleClearSession)
		r.Get("/{id}/messages", s.handleRecentMessages)
		r.Post("/{id}/messages", s.handleAppendMessage)
		r.Get("/{id}/mono", s.handleGetMono)
		r.Post("/{id}/mono", s.handleAddMono)
		r.Delete("/{id}/mono/expired", s.handleClearExpiredMono)
	})

	r.Route("/v1/events", func(r chi.Router) {
		r.Get("/", s.handleRecentEvents)
		r.Post("/", s.handleAddEvent)
		r.Get("/stats", s.handleEventStats)
		r.Post("/cleanup", s.handleCleanupEvents)
		r.Get("/prompt", s.handleEventPrompt)
		r.Get("/ws", s.handleEventsWS)
		r.Get("/{id}", s.handleGetEvent)
		r.Post("/{id}/audit", s.handleAuditEvent)
	})

	r.Get("/v1/memory/{user}", s.handleRecentMemory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"memory_mode": s.memoryMode,
	})
}

func (s *Server) handleRecentMemory(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(chi.URLParam(r, "user"))
	if user == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	if s.memory == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "memory archive not configured")
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	turns, err := s.memory.Recent(r.Context(), user, limit)
	if err != nil {
		s.log.Error("memory query failed", "user_id", user, "err", err)
		respondError(w, http.StatusInternalServerError, "memory_unavailable", err.Error())
		return
	}
	if turns == nil {
		turns = []memory.TurnRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": user, "turns": turns})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

func boolQuery(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
