package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/companion/internal/protocol"
)

const (
	wsReadLimit    = 1 << 20
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS accepts a stream of live events from a platform bridge. Every
// client message gets exactly one reply, written from the read loop so writes
// stay single-threaded.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.log.Info("event bridge connected", "remote", r.RemoteAddr)
	defer s.log.Info("event bridge disconnected", "remote", r.RemoteAddr)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		reply := s.handleWSMessage(data)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			s.log.Warn("event bridge write failed", "err", err)
			return
		}
		if t, ok := messageTypeOf(reply); ok {
			s.metrics.ObserveWSMessage("outbound", string(t))
		}
	}
}

func (s *Server) handleWSMessage(data []byte) any {
	parsed, err := protocol.ParseClientMessage(data)
	if err != nil {
		return protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "invalid_client_message",
			Detail: err.Error(),
		}
	}
	if t, ok := messageTypeOf(parsed); ok {
		s.metrics.ObserveWSMessage("inbound", string(t))
	}

	switch m := parsed.(type) {
	case protocol.EventIngest:
		rec, err := s.events.AddRaw(recordFromLive(m.Event))
		if err != nil {
			return protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				RequestID: m.RequestID,
				Code:      "storage_error",
				Retryable: true,
				Detail:    err.Error(),
			}
		}
		return protocol.EventAck{
			Type:        protocol.TypeEventAck,
			RequestID:   m.RequestID,
			EventID:     rec.ID,
			AuditStatus: string(rec.AuditStatus),
		}
	case protocol.EventAudit:
		rec, found, err := s.events.UpdateAudit(m.EventID, auditRequest{
			Allowed:    m.Allowed,
			Reason:     m.Reason,
			Categories: m.Categories,
			Details:    m.Details,
		}.outcome())
		if err != nil {
			return protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				RequestID: m.RequestID,
				Code:      "storage_error",
				Retryable: true,
				Detail:    err.Error(),
			}
		}
		return protocol.AuditAck{
			Type:        protocol.TypeAuditAck,
			RequestID:   m.RequestID,
			EventID:     m.EventID,
			Found:       found,
			AuditStatus: string(rec.AuditStatus),
		}
	case protocol.Ping:
		return protocol.Pong{Type: protocol.TypePong, RequestID: m.RequestID}
	default:
		return protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "unsupported_message",
			Detail: protocol.ErrUnsupportedType.Error(),
		}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.EventIngest:
		return m.Type, true
	case protocol.EventAudit:
		return m.Type, true
	case protocol.Ping:
		return m.Type, true
	case protocol.EventAck:
		return m.Type, true
	case protocol.AuditAck:
		return m.Type, true
	case protocol.Pong:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
