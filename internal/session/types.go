package session

import (
	"maps"

	"github.com/ent0n29/companion/internal/codec"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is one conversational turn. Timestamp is set at creation and never
// rewritten.
type Message struct {
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Timestamp codec.Timestamp `json:"timestamp"`
	AudioPath string          `json:"audio_path,omitempty"`
	AudioData string          `json:"audio_data,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// MonoItem is a pinned fact that stays in context until ExpiresAt. Rounds is
// the count used to compute the expiry and is kept for display only.
type MonoItem struct {
	Content   string          `json:"content"`
	ExpiresAt codec.Timestamp `json:"expires_at"`
	Rounds    int             `json:"rounds"`
}

// Document is the full durable state of one session.
type Document struct {
	SessionID   string          `json:"session_id"`
	CreatedAt   codec.Timestamp `json:"created_at"`
	LastActive  codec.Timestamp `json:"last_active"`
	Messages    []Message       `json:"messages"`
	MonoContext []MonoItem      `json:"mono_context"`
	Metadata    map[string]any  `json:"metadata"`
}

// Summary is the projection returned by ListSessions.
type Summary struct {
	SessionID    string          `json:"session_id"`
	CreatedAt    codec.Timestamp `json:"created_at"`
	LastActive   codec.Timestamp `json:"last_active"`
	MessageCount int             `json:"message_count"`
	Metadata     map[string]any  `json:"metadata"`
}

type Stats struct {
	SessionCount   int `json:"session_count"`
	TotalMessages  int `json:"total_messages"`
	CachedSessions int `json:"cached_sessions"`
	CacheCapacity  int `json:"cache_capacity"`
}

// CreateResponse returns a freshly minted session id.
type CreateResponse struct {
	SessionID   string `json:"session_id"`
	MaxMessages int    `json:"max_messages"`
}

func (d Document) summary() Summary {
	return Summary{
		SessionID:    d.SessionID,
		CreatedAt:    d.CreatedAt,
		LastActive:   d.LastActive,
		MessageCount: len(d.Messages),
		Metadata:     maps.Clone(d.Metadata),
	}
}

// normalize fills defaults so documents written by older versions load.
func (d *Document) normalize(sessionID string) {
	if d.SessionID == "" {
		d.SessionID = sessionID
	}
	if d.Messages == nil {
		d.Messages = []Message{}
	}
	if d.MonoContext == nil {
		d.MonoContext = []MonoItem{}
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
}

func clone(d Document) Document {
	c := d
	c.Messages = cloneMessages(d.Messages)
	c.MonoContext = append([]MonoItem(nil), d.MonoContext...)
	if c.MonoContext == nil {
		c.MonoContext = []MonoItem{}
	}
	c.Metadata = maps.Clone(d.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c
}

func cloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	for i, m := range in {
		m.Metadata = maps.Clone(m.Metadata)
		out[i] = m
	}
	return out
}
