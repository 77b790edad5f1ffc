// Package memory archives chat turns beyond the bounded session window so
// older conversation stays queryable per user.
package memory

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 200
)

var ErrMissingUser = errors.New("memory: user id is required")

// TurnRecord is one archived user or assistant turn.
type TurnRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves archived turns. RecentTurns returns turns in
// chronological order, oldest first.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]TurnRecord, error)
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}
