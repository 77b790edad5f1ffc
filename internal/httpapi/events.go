package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/companion/internal/codec"
	"github.com/ent0n29/companion/internal/eventlog"
	"github.com/ent0n29/companion/internal/protocol"
)

const maxRetentionDays = 36500

type auditRequest struct {
	Allowed    bool           `json:"allowed"`
	Reason     string         `json:"reason,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

func (a auditRequest) outcome() eventlog.Outcome {
	return eventlog.Outcome{
		Allowed:    a.Allowed,
		Reason:     a.Reason,
		Categories: a.Categories,
		Details:    a.Details,
	}
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseEventQuery(w, r)
	if !ok {
		return
	}
	status := eventlog.Status(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "":
		respondJSON(w, http.StatusOK, map[string]any{"events": s.events.Recent(q)})
	case eventlog.StatusApproved, eventlog.StatusRejected:
		if q.OnlyRaw {
			respondError(w, http.StatusBadRequest, "invalid_status", "status cannot be combined with only_raw")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"events": s.events.Audited(q, status)})
	default:
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be approved or rejected")
	}
}

func (s *Server) handleCleanupEvents(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "retention_days", 0)
	if err == nil && (days < 0 || days > maxRetentionDays) {
		err = fmt.Errorf("retention_days must be between 0 and %d", maxRetentionDays)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_retention_days", err.Error())
		return
	}
	res, err := s.events.Cleanup(days)
	if err != nil {
		s.log.Error("event cleanup failed", "err", err)
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleEventPrompt(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseEventQuery(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(eventlog.FormatForPrompt(s.events.Recent(q))))
}

func (s *Server) parseEventQuery(w http.ResponseWriter, r *http.Request) (eventlog.Query, bool) {
	count, err := intQuery(r, "count", eventlog.DefaultRecent)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_count", err.Error())
		return eventlog.Query{}, false
	}
	q := eventlog.Query{
		Count:    count,
		OnlyRaw:  boolQuery(r, "only_raw"),
		Platform: strings.TrimSpace(r.URL.Query().Get("platform")),
	}
	if since := strings.TrimSpace(r.URL.Query().Get("since")); since != "" {
		t, ok := codec.ParseTimestamp(since)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_since", "since must be an ISO-8601 timestamp")
			return eventlog.Query{}, false
		}
		q.Since = t
	}
	return q, true
}

func (s *Server) handleEventStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.events.Statistics())
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.events.ByID(id, boolQuery(r, "only_raw"))
	if !ok {
		respondError(w, http.StatusNotFound, "event_not_found", eventlog.ErrNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var ev protocol.LiveEvent
	if err := decodeJSON(r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(ev.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	rec, err := s.events.AddRaw(recordFromLive(ev))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleAuditEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req auditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rec, found, err := s.events.UpdateAudit(id, req.outcome())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "event_not_found", eventlog.ErrNotFound.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// recordFromLive maps a bridge payload onto a record. An unreadable
// timestamp is dropped and the store stamps the record on append.
func recordFromLive(ev protocol.LiveEvent) eventlog.Record {
	rec := eventlog.Record{
		ID:         strings.TrimSpace(ev.ID),
		Platform:   strings.TrimSpace(ev.Platform),
		RoomID:     ev.RoomID,
		Username:   ev.Username,
		UID:        ev.UID,
		Content:    ev.Content,
		BadgeLevel: ev.BadgeLevel,
		BadgeName:  ev.BadgeName,
	}
	if t, ok := codec.ParseTimestamp(ev.Timestamp); ok {
		rec.Timestamp = codec.At(t)
	}
	return rec
}
