package session

import (
	"fmt"
	"math"
	"time"

	"github.com/ent0n29/companion/internal/codec"
)

// AddMono pins content into the session for rounds × RoundDuration of wall
// clock time. Expired items already stored are dropped in the same write.
func (s *Store) AddMono(sessionID, content string, rounds int) (MonoItem, error) {
	defer s.track("session.add_mono")()
	if err := validateSessionID(sessionID); err != nil {
		return MonoItem{}, err
	}
	if rounds < 1 {
		rounds = 1
	}
	// Saturate so the expiry cannot wrap into the past.
	if limit := math.MaxInt64 / int64(s.roundDuration); int64(rounds) > limit {
		rounds = int(limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := MonoItem{
		Content:   content,
		ExpiresAt: codec.At(s.now().Add(time.Duration(rounds) * s.roundDuration)),
		Rounds:    rounds,
	}

	doc, _ := s.lookup(sessionID)
	mono := append(append([]MonoItem{}, doc.MonoContext...), item)
	if err := s.save(sessionID, doc.Messages, nil, mono); err != nil {
		return MonoItem{}, err
	}
	s.log.Debug("mono item pinned", "session_id", sessionID, "rounds", rounds, "expires_at", item.ExpiresAt.String())
	return item, nil
}

// GetMono returns the content of every unexpired item in insertion order.
func (s *Store) GetMono(sessionID string) []string {
	defer s.track("session.get_mono")()
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _ := s.lookup(sessionID)
	now := s.now()
	out := make([]string, 0, len(doc.MonoContext))
	for _, item := range doc.MonoContext {
		if monoValid(item, now) {
			out = append(out, item.Content)
		}
	}
	return out
}

// ClearExpiredMono drops expired items and rewrites the document only when
// something was removed. It returns the number of items dropped.
func (s *Store) ClearExpiredMono(sessionID string) (int, error) {
	defer s.track("session.clear_expired_mono")()
	if err := validateSessionID(sessionID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearExpiredMono(sessionID)
}

// SweepExpiredMono runs ClearExpiredMono over every stored session.
func (s *Store) SweepExpiredMono() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.sessionIDs()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		if validateSessionID(id) != nil {
			continue
		}
		n, err := s.clearExpiredMono(id)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Store) clearExpiredMono(sessionID string) (int, error) {
	doc, state := s.lookup(sessionID)
	if state != codec.Found {
		return 0, nil
	}
	valid := validMono(doc.MonoContext, s.now())
	removed := len(doc.MonoContext) - len(valid)
	if removed == 0 {
		return 0, nil
	}
	if err := s.save(sessionID, doc.Messages, nil, valid); err != nil {
		return 0, fmt.Errorf("clear expired mono: %w", err)
	}
	s.log.Debug("expired mono items dropped", "session_id", sessionID, "removed", removed)
	return removed, nil
}

// monoValid reports whether item is still live at now. An item whose expiry
// cannot be parsed is kept.
func monoValid(item MonoItem, now time.Time) bool {
	expires, ok := item.ExpiresAt.Time()
	if !ok {
		return true
	}
	return now.Before(expires)
}

func validMono(items []MonoItem, now time.Time) []MonoItem {
	out := make([]MonoItem, 0, len(items))
	for _, item := range items {
		if monoValid(item, now) {
			out = append(out, item)
		}
	}
	return out
}
