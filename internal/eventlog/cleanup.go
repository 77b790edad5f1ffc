package eventlog

import (
	"fmt"
	"time"

	"github.com/ent0n29/companion/internal/codec"
)

// Cleanup rewrites both logs without records older than retentionDays. Lines
// whose timestamp cannot be read are kept. A retentionDays <= 0 uses the
// store's configured retention. The whole sweep runs under the store lock.
func (s *Store) Cleanup(retentionDays int) (CleanupResult, error) {
	defer s.track("eventlog.cleanup")()
	if retentionDays <= 0 {
		retentionDays = s.retentionDays
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	res := CleanupResult{Cutoff: cutoff}

	var err error
	res.RawKept, res.RawRemoved, err = s.prune(s.rawPath, logRaw, cutoff)
	if err != nil {
		return res, err
	}
	res.AuditedKept, res.AuditedRemoved, err = s.prune(s.auditedPath, logAudited, cutoff)
	if err != nil {
		return res, err
	}

	s.log.Info("event retention sweep done",
		"retention_days", retentionDays,
		"raw_removed", res.RawRemoved,
		"audited_removed", res.AuditedRemoved,
	)
	return res, nil
}

func (s *Store) prune(path, name string, cutoff time.Time) (kept, removed int, err error) {
	lines, err := codec.ReadLines(path)
	if err != nil {
		// A partial read would drop the unread tail on rewrite.
		return 0, 0, fmt.Errorf("cleanup %s log: %w", name, err)
	}

	keep := make([]codec.Line, 0, len(lines))
	for _, line := range lines {
		if expired(line, cutoff) {
			removed++
			continue
		}
		keep = append(keep, line)
	}
	if removed == 0 {
		return len(keep), 0, nil
	}

	if err := codec.RewriteLines(path, keep); err != nil {
		s.metrics.ObserveWrite(storeLabel, "cleanup_"+name, err)
		return 0, 0, fmt.Errorf("cleanup %s log: %w", name, err)
	}
	s.metrics.ObserveWrite(storeLabel, "cleanup_"+name, nil)
	s.metrics.ObserveEventsPruned(name, removed)
	return len(keep), removed, nil
}

// expired reports whether line has a readable timestamp at or before cutoff.
func expired(line codec.Line, cutoff time.Time) bool {
	var stamp struct {
		Timestamp codec.Timestamp `json:"timestamp"`
	}
	if err := line.Decode(&stamp); err != nil {
		return false
	}
	ts, ok := stamp.Timestamp.Time()
	if !ok {
		return false
	}
	return !ts.After(cutoff)
}
