package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeEventIngest MessageType = "event_ingest"
	TypeEventAudit  MessageType = "event_audit"
	TypePing        MessageType = "ping"

	TypeEventAck   MessageType = "event_ack"
	TypeAuditAck   MessageType = "audit_ack"
	TypePong       MessageType = "pong"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// LiveEvent is the event payload a platform bridge pushes.
type LiveEvent struct {
	ID         string `json:"id,omitempty"`
	Platform   string `json:"platform"`
	RoomID     string `json:"room_id"`
	Username   string `json:"username"`
	UID        string `json:"uid"`
	Content    string `json:"content"`
	BadgeLevel int    `json:"badge_level"`
	BadgeName  string `json:"badge_name"`
	Timestamp  string `json:"timestamp,omitempty"`
}

type EventIngest struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Event     LiveEvent   `json:"event"`
}

// EventAudit carries a moderation verdict for an ingested event.
type EventAudit struct {
	Type       MessageType    `json:"type"`
	RequestID  string         `json:"request_id,omitempty"`
	EventID    string         `json:"event_id"`
	Allowed    bool           `json:"allowed"`
	Reason     string         `json:"reason,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

type Ping struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
}

type EventAck struct {
	Type        MessageType `json:"type"`
	RequestID   string      `json:"request_id,omitempty"`
	EventID     string      `json:"event_id"`
	AuditStatus string      `json:"audit_status"`
}

type AuditAck struct {
	Type        MessageType `json:"type"`
	RequestID   string      `json:"request_id,omitempty"`
	EventID     string      `json:"event_id"`
	Found       bool        `json:"found"`
	AuditStatus string      `json:"audit_status,omitempty"`
}

type Pong struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeEventIngest:
		var msg EventIngest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Event.Content) == "" {
			return nil, errors.New("invalid event_ingest: content is required")
		}
		return msg, nil
	case TypeEventAudit:
		var msg EventAudit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.EventID) == "" {
			return nil, errors.New("invalid event_audit: event_id is required")
		}
		return msg, nil
	case TypePing:
		var msg Ping
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
