package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultPerUserCap bounds the in-process archive per user.
const defaultPerUserCap = 1000

// InMemoryStore is an in-process archive for local/dev use. The oldest turns
// of a user are dropped once the per-user cap is reached.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]TurnRecord
	cap     int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]TurnRecord), cap: defaultPerUserCap}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record TurnRecord) error {
	if strings.TrimSpace(record.UserID) == "" {
		return ErrMissingUser
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	arr := append(s.records[record.UserID], record)
	if over := len(arr) - s.cap; over > 0 {
		arr = append([]TurnRecord(nil), arr[over:]...)
	}
	s.records[record.UserID] = arr
	return nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, userID string, limit int) ([]TurnRecord, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]TurnRecord, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
