// Package eventlog keeps incoming live events in two append-only JSONL logs:
// the raw log holds every event exactly as ingested, the audited log holds a
// new copy of an event each time moderation completes.
package eventlog

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ent0n29/companion/internal/codec"
	"github.com/ent0n29/companion/internal/observability"
)

const (
	// MaxRecent bounds a single Recent read.
	MaxRecent = 100

	DefaultRecent        = 10
	DefaultRetentionDays = 7

	RawFile     = "raw_events.jsonl"
	AuditedFile = "audited_events.jsonl"

	storeLabel = "eventlog"
	logRaw     = "raw"
	logAudited = "audited"
)

var ErrNotFound = errors.New("event not found")

type Config struct {
	Dir           string
	RetentionDays int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
	// Entropy seeds event ids; defaults to crypto/rand.
	Entropy io.Reader
}

// Store owns the raw and audited logs. One lock serializes every read and
// write so that readers never observe a half-written line from this process
// and the retention rewrite cannot race an append.
type Store struct {
	mu sync.Mutex

	rawPath       string
	auditedPath   string
	retentionDays int
	entropy       *ulid.MonotonicEntropy

	log     *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("event log: directory is required")
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Entropy == nil {
		cfg.Entropy = rand.Reader
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("event log: init directory %s: %w", cfg.Dir, err)
	}

	s := &Store{
		rawPath:       filepath.Join(cfg.Dir, RawFile),
		auditedPath:   filepath.Join(cfg.Dir, AuditedFile),
		retentionDays: cfg.RetentionDays,
		entropy:       ulid.Monotonic(cfg.Entropy, 0),
		log:           cfg.Logger.With("component", "event_log"),
		metrics:       cfg.Metrics,
		now:           cfg.Now,
	}
	s.log.Info("event log ready", "dir", cfg.Dir, "retention_days", cfg.RetentionDays)
	return s, nil
}

// AddRaw appends rec to the raw log as a pending record with no audit result.
// Missing id and timestamp are filled in. The stored record is returned.
func (s *Store) AddRaw(rec Record) (Record, error) {
	defer s.track("eventlog.add_raw")()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec = rec.clone()
	rec.Raw = true
	rec.AuditStatus = StatusPending
	rec.AuditResult = nil
	if err := s.prepare(&rec); err != nil {
		return Record{}, err
	}
	if err := s.appendRecord(s.rawPath, logRaw, rec); err != nil {
		return Record{}, err
	}
	s.log.Debug("raw event added", "id", rec.ID, "platform", rec.Platform)
	return rec, nil
}

// AddAudited appends a copy of rec carrying outcome to the audited log. The
// raw entry for the same event is left untouched.
func (s *Store) AddAudited(rec Record, outcome Outcome) (Record, error) {
	defer s.track("eventlog.add_audited")()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAudited(rec, outcome)
}

// Recent returns up to q.Count records, newest first. Only the tail of the
// log (twice the requested count) is examined, so heavy filtering can return
// fewer than q.Count records.
func (s *Store) Recent(q Query) []Record {
	defer s.track("eventlog.recent")()
	count := clampCount(q.Count)

	s.mu.Lock()
	defer s.mu.Unlock()

	path, name := s.auditedPath, logAudited
	if q.OnlyRaw {
		path, name = s.rawPath, logRaw
	}
	lines := s.readLines(path, name)
	if window := 2 * count; len(lines) > window {
		lines = lines[len(lines)-window:]
	}

	out := make([]Record, 0, count)
	for i := len(lines) - 1; i >= 0 && len(out) < count; i-- {
		rec, ok := s.decode(lines[i], path)
		if !ok || !q.matches(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Audited returns recent audited records matching q, optionally limited to
// one status. q.OnlyRaw is ignored.
func (s *Store) Audited(q Query, status Status) []Record {
	q.OnlyRaw = false
	recs := s.Recent(q)
	if status == "" {
		return recs
	}
	out := recs[:0]
	for _, r := range recs {
		if r.AuditStatus == status {
			out = append(out, r)
		}
	}
	return out
}

// ByID scans for the newest record with id. With onlyRaw the raw log is
// searched; otherwise the audited log is searched first so a moderated event
// resolves to its audited copy, falling back to the raw log.
func (s *Store) ByID(id string, onlyRaw bool) (Record, bool) {
	defer s.track("eventlog.by_id")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !onlyRaw {
		if rec, ok := s.find(s.auditedPath, logAudited, id); ok {
			return rec, true
		}
	}
	return s.find(s.rawPath, logRaw, id)
}

// UpdateAudit records the moderation outcome for the raw event id. When the
// raw event is not visible yet it reports false without an error.
func (s *Store) UpdateAudit(id string, outcome Outcome) (Record, bool, error) {
	defer s.track("eventlog.update_audit")()
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.find(s.rawPath, logRaw, id)
	if !ok {
		s.log.Warn("audit for unknown event", "id", id, "allowed", outcome.Allowed)
		return Record{}, false, nil
	}
	rec, err := s.addAudited(raw, outcome)
	if err != nil {
		return Record{}, true, err
	}
	s.log.Info("event audited", "id", id, "status", rec.AuditStatus)
	return rec, true, nil
}

// Statistics counts the records in both logs. Pending is the raw total since
// raw entries are never rewritten after moderation.
func (s *Store) Statistics() Stats {
	defer s.track("eventlog.statistics")()
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	for _, line := range s.readLines(s.rawPath, logRaw) {
		if _, ok := s.decode(line, s.rawPath); ok {
			st.RawCount++
		}
	}
	for _, line := range s.readLines(s.auditedPath, logAudited) {
		rec, ok := s.decode(line, s.auditedPath)
		if !ok {
			continue
		}
		st.AuditedCount++
		switch rec.AuditStatus {
		case StatusApproved:
			st.ApprovedCount++
		case StatusRejected:
			st.RejectedCount++
		}
	}
	st.PendingCount = st.RawCount
	return st
}

func (s *Store) addAudited(rec Record, outcome Outcome) (Record, error) {
	rec.Raw = false
	rec.AuditStatus = outcome.Status()
	rec.AuditResult = &outcome
	rec = rec.clone()
	if err := s.prepare(&rec); err != nil {
		return Record{}, err
	}
	if err := s.appendRecord(s.auditedPath, logAudited, rec); err != nil {
		return Record{}, err
	}
	s.log.Debug("audited event added", "id", rec.ID, "status", rec.AuditStatus)
	return rec, nil
}

func (s *Store) prepare(rec *Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		id, err := s.newID()
		if err != nil {
			return err
		}
		rec.ID = id
	}
	if !rec.Timestamp.Valid() && rec.Timestamp.Raw() == "" {
		rec.Timestamp = codec.At(s.now())
	}
	rec.applyDefaults()
	return nil
}

// newID mints an id ordered by creation time; ids minted within the same
// millisecond stay distinct and increasing. Callers must hold s.mu.
func (s *Store) newID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(s.now()), s.entropy)
	if err != nil {
		return "", fmt.Errorf("mint event id: %w", err)
	}
	return "evt_" + strings.ToLower(id.String()), nil
}

func (s *Store) appendRecord(path, name string, rec Record) error {
	line, err := codec.EncodeLine(rec)
	if err != nil {
		return err
	}
	if err := codec.AppendLine(path, line); err != nil {
		s.metrics.ObserveWrite(storeLabel, "append_"+name, err)
		s.log.Error("event append failed", "log", name, "id", rec.ID, "err", err)
		return fmt.Errorf("append %s event %s: %w", name, rec.ID, err)
	}
	s.metrics.ObserveWrite(storeLabel, "append_"+name, nil)
	s.metrics.ObserveEventAppended(name, string(rec.AuditStatus))
	return nil
}

// find scans path newest first for id. Callers must hold s.mu.
func (s *Store) find(path, name, id string) (Record, bool) {
	if strings.TrimSpace(id) == "" {
		return Record{}, false
	}
	lines := s.readLines(path, name)
	for i := len(lines) - 1; i >= 0; i-- {
		rec, ok := s.decode(lines[i], path)
		if ok && rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}

// readLines returns whatever could be read; a scan error is logged and the
// lines read before it are kept.
func (s *Store) readLines(path, name string) []codec.Line {
	lines, err := codec.ReadLines(path)
	if err != nil {
		s.log.Warn("event log read incomplete", "log", name, "path", path, "err", err)
	}
	return lines
}

func (s *Store) decode(line codec.Line, path string) (Record, bool) {
	var rec Record
	if err := line.Decode(&rec); err != nil {
		s.metrics.ObserveCorrupt(storeLabel)
		s.log.Warn("skipping corrupt event line", "path", path, "line", line.No, "err", err)
		return Record{}, false
	}
	rec.applyDefaults()
	return rec, true
}

func (q Query) matches(rec Record) bool {
	if q.Platform != "" && rec.Platform != q.Platform {
		return false
	}
	if !q.Since.IsZero() {
		if ts, ok := rec.Timestamp.Time(); ok && ts.Before(q.Since) {
			return false
		}
	}
	return true
}

func clampCount(n int) int {
	if n <= 0 {
		return DefaultRecent
	}
	if n > MaxRecent {
		return MaxRecent
	}
	return n
}

func (s *Store) track(op string) func() {
	start := time.Now()
	return func() {
		s.metrics.ObserveOp(op, time.Since(start))
	}
}
