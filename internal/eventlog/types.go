package eventlog

import (
	"maps"
	"strings"
	"time"

	"github.com/ent0n29/companion/internal/codec"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Outcome is the moderation verdict attached to an audited record.
type Outcome struct {
	Allowed    bool           `json:"allowed"`
	Reason     string         `json:"reason,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

func (o Outcome) Status() Status {
	if o.Allowed {
		return StatusApproved
	}
	return StatusRejected
}

// Record is one live event, such as a chat message from a stream room.
type Record struct {
	ID          string          `json:"id"`
	Platform    string          `json:"platform"`
	RoomID      string          `json:"room_id"`
	Username    string          `json:"username"`
	UID         string          `json:"uid"`
	Content     string          `json:"content"`
	BadgeLevel  int             `json:"badge_level"`
	BadgeName   string          `json:"badge_name"`
	Timestamp   codec.Timestamp `json:"timestamp"`
	Raw         bool            `json:"raw"`
	AuditStatus Status          `json:"audit_status"`
	AuditResult *Outcome        `json:"audit_result,omitempty"`
}

// Query selects records for Recent.
type Query struct {
	Count    int
	OnlyRaw  bool
	Platform string
	// Since drops records created before it. Records with an unknown
	// timestamp always pass.
	Since time.Time
}

type Stats struct {
	RawCount      int `json:"raw_count"`
	AuditedCount  int `json:"audited_count"`
	ApprovedCount int `json:"approved_count"`
	RejectedCount int `json:"rejected_count"`
	PendingCount  int `json:"pending_count"`
}

// CleanupResult reports what the retention sweep did to each log.
type CleanupResult struct {
	Cutoff         time.Time `json:"cutoff"`
	RawRemoved     int       `json:"raw_removed"`
	RawKept        int       `json:"raw_kept"`
	AuditedRemoved int       `json:"audited_removed"`
	AuditedKept    int       `json:"audited_kept"`
}

func (r *Record) applyDefaults() {
	if strings.TrimSpace(r.Platform) == "" {
		r.Platform = "live"
	}
	if strings.TrimSpace(r.Username) == "" {
		r.Username = "unknown"
	}
	if strings.TrimSpace(r.UID) == "" {
		r.UID = "0"
	}
	if r.AuditStatus == "" {
		r.AuditStatus = StatusPending
	}
	if r.AuditStatus == StatusPending {
		r.AuditResult = nil
	}
}

func (r Record) clone() Record {
	c := r
	if r.AuditResult != nil {
		o := *r.AuditResult
		o.Categories = append([]string(nil), o.Categories...)
		o.Details = maps.Clone(o.Details)
		c.AuditResult = &o
	}
	return c
}
