package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/companion/internal/policy"
)

// Archiver redacts turns and writes them to a Store.
type Archiver struct {
	store Store
	log   *slog.Logger
}

func NewArchiver(store Store, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, log: logger.With("component", "memory")}
}

// Archive stores one turn with contact details masked. Empty content is
// ignored.
func (a *Archiver) Archive(ctx context.Context, userID, sessionID, role, content string, at time.Time) (TurnRecord, error) {
	if a == nil || a.store == nil || strings.TrimSpace(content) == "" {
		return TurnRecord{}, nil
	}
	redacted, changed := policy.RedactPII(content)
	rec := TurnRecord{
		ID:          uuid.NewString(),
		UserID:      strings.TrimSpace(userID),
		SessionID:   sessionID,
		Role:        role,
		Content:     redacted,
		PIIRedacted: changed,
		CreatedAt:   at.UTC(),
	}
	if err := a.store.SaveTurn(ctx, rec); err != nil {
		a.log.Warn("archive turn failed", "session_id", sessionID, "err", err)
		return TurnRecord{}, err
	}
	return rec, nil
}

func (a *Archiver) Recent(ctx context.Context, userID string, limit int) ([]TurnRecord, error) {
	if a == nil || a.store == nil {
		return nil, nil
	}
	return a.store.RecentTurns(ctx, userID, limit)
}
