package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/companion/internal/cache"
	"github.com/ent0n29/companion/internal/codec"
	"github.com/ent0n29/companion/internal/observability"
)

var ErrInvalidSessionID = errors.New("invalid session id")

const (
	storeLabel           = "session"
	documentExt          = ".json"
	defaultRoundDuration = 2 * time.Minute
)

type Config struct {
	// Dir holds one <session_id>.json document per session.
	Dir           string
	MaxMessages   int
	CacheTTL      time.Duration
	CacheSize     int
	RoundDuration time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Store keeps one durable document per session and serves reads from a
// bounded cache. Every operation runs under a single lock, so read-modify-write
// sequences on the same session never interleave.
type Store struct {
	mu sync.Mutex

	dir           string
	maxMessages   int
	roundDuration time.Duration
	cache         *cache.LRU[string, Document]

	log     *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("session store: directory is required")
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 40
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = defaultRoundDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("session store: init directory %s: %w", cfg.Dir, err)
	}

	return &Store{
		dir:           cfg.Dir,
		maxMessages:   cfg.MaxMessages,
		roundDuration: cfg.RoundDuration,
		cache:         cache.New[string, Document](cfg.CacheSize, cfg.CacheTTL, cfg.Now),
		log:           cfg.Logger.With("component", "session_store"),
		metrics:       cfg.Metrics,
		now:           cfg.Now,
	}, nil
}

func (s *Store) MaxMessages() int {
	return s.maxMessages
}

// Save writes the full document for sessionID. created_at is carried over
// from the stored document. A nil metadata or mono argument keeps the stored
// value; a non-nil empty one clears it. Messages are persisted as given.
func (s *Store) Save(sessionID string, messages []Message, metadata map[string]any, mono []MonoItem) error {
	defer s.track("session.save")()
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(sessionID, messages, metadata, mono)
}

// Load returns the session's messages, or an empty slice when no readable
// document exists.
func (s *Store) Load(sessionID string) []Message {
	defer s.track("session.load")()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, _ := s.lookup(sessionID)
	return cloneMessages(doc.Messages)
}

// Lookup returns the whole document and whether it was found, absent or
// unreadable.
func (s *Store) Lookup(sessionID string) (Document, codec.ReadState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, state := s.lookup(sessionID)
	return clone(doc), state
}

// Append adds msg and keeps only the trailing MaxMessages messages.
func (s *Store) Append(sessionID string, msg Message) error {
	defer s.track("session.append")()
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if !msg.Timestamp.Valid() && msg.Timestamp.Raw() == "" {
		msg.Timestamp = codec.At(s.now())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _ := s.lookup(sessionID)
	messages := append(cloneMessages(doc.Messages), msg)
	if len(messages) > s.maxMessages {
		messages = messages[len(messages)-s.maxMessages:]
	}
	return s.save(sessionID, messages, nil, nil)
}

// Recent returns up to count trailing messages in chronological order.
func (s *Store) Recent(sessionID string, count int) []Message {
	defer s.track("session.recent")()
	if count <= 0 {
		return []Message{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _ := s.lookup(sessionID)
	msgs := doc.Messages
	if len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	return cloneMessages(msgs)
}

// Clear deletes the session document and drops it from the cache. Clearing a
// session that does not exist is not an error.
func (s *Store) Clear(sessionID string) error {
	defer s.track("session.clear")()
	path, err := s.pathFor(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	s.cache.Invalidate(sessionID)
	s.metrics.SetCachedSessions(s.cache.Len())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.metrics.ObserveWrite(storeLabel, "clear", err)
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	s.metrics.ObserveWrite(storeLabel, "clear", nil)
	s.log.Debug("session cleared", "session_id", sessionID)
	return nil
}

// ListSessions scans every stored document and returns summaries ordered by
// last activity, newest first. A limit <= 0 returns all of them.
func (s *Store) ListSessions(limit int) ([]Summary, error) {
	defer s.track("session.list")()
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.scan()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.summary())
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].LastActive.Time()
		tj, _ := out[j].LastActive.Time()
		return ti.After(tj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats reports totals across all stored sessions.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.scan()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{SessionCount: len(docs), CachedSessions: s.cache.Len(), CacheCapacity: s.cache.Capacity()}
	for _, d := range docs {
		st.TotalMessages += len(d.Messages)
	}
	return st, nil
}

func (s *Store) save(sessionID string, messages []Message, metadata map[string]any, mono []MonoItem) error {
	existing, state := s.lookup(sessionID)
	now := s.now()

	doc := Document{
		SessionID:   sessionID,
		CreatedAt:   codec.At(now),
		LastActive:  codec.At(now),
		Messages:    cloneMessages(messages),
		MonoContext: existing.MonoContext,
		Metadata:    existing.Metadata,
	}
	if state == codec.Found && (existing.CreatedAt.Valid() || existing.CreatedAt.Raw() != "") {
		doc.CreatedAt = existing.CreatedAt
	}
	if metadata != nil {
		doc.Metadata = metadata
	}
	if mono != nil {
		doc.MonoContext = validMono(mono, now)
	}
	doc = clone(doc)

	path, err := s.pathFor(sessionID)
	if err != nil {
		return err
	}
	if err := codec.WriteDocument(path, doc); err != nil {
		s.metrics.ObserveWrite(storeLabel, "save", err)
		s.log.Error("session save failed", "session_id", sessionID, "err", err)
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	s.metrics.ObserveWrite(storeLabel, "save", nil)

	s.cache.Put(sessionID, doc)
	s.metrics.SetCachedSessions(s.cache.Len())
	s.log.Debug("session saved", "session_id", sessionID, "messages", len(doc.Messages), "mono", len(doc.MonoContext))
	return nil
}

// lookup serves from the cache when fresh, otherwise reads the document and
// caches it. Callers must hold s.mu. The returned document is shared with the
// cache and must not be mutated.
func (s *Store) lookup(sessionID string) (Document, codec.ReadState) {
	var empty Document
	empty.normalize(sessionID)

	if doc, ok := s.cache.Get(sessionID); ok {
		s.metrics.ObserveCacheLookup(true)
		return doc, codec.Found
	}
	s.metrics.ObserveCacheLookup(false)
	s.metrics.SetCachedSessions(s.cache.Len())

	path, err := s.pathFor(sessionID)
	if err != nil {
		s.log.Warn("session lookup rejected", "session_id", sessionID, "err", err)
		return empty, codec.Absent
	}

	var doc Document
	state, err := codec.ReadDocument(path, &doc)
	switch state {
	case codec.Absent:
		return empty, codec.Absent
	case codec.Corrupt:
		s.metrics.ObserveCorrupt(storeLabel)
		s.log.Warn("session document unreadable, starting fresh", "session_id", sessionID, "path", path, "err", err)
		return empty, codec.Corrupt
	}

	doc.normalize(sessionID)
	s.cache.Put(sessionID, doc)
	s.metrics.SetCachedSessions(s.cache.Len())
	return doc, codec.Found
}

// scan decodes every document on disk, skipping unreadable ones. Callers must
// hold s.mu.
func (s *Store) scan() ([]Document, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions in %s: %w", s.dir, err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != documentExt {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		var doc Document
		state, err := codec.ReadDocument(path, &doc)
		if state != codec.Found {
			if err != nil {
				s.metrics.ObserveCorrupt(storeLabel)
				s.log.Warn("skipping unreadable session document", "path", path, "err", err)
			}
			continue
		}
		doc.normalize(strings.TrimSuffix(e.Name(), documentExt))
		docs = append(docs, doc)
	}
	return docs, nil
}

// sessionIDs lists the ids of all stored documents. Callers must hold s.mu.
func (s *Store) sessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions in %s: %w", s.dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != documentExt || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), documentExt))
	}
	return ids, nil
}

func (s *Store) pathFor(sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("session store: abs dir: %w", err)
	}
	resolved := filepath.Join(dir, sessionID+documentExt)
	if !strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the store directory", ErrInvalidSessionID, sessionID)
	}
	return resolved, nil
}

func validateSessionID(sessionID string) error {
	switch {
	case strings.TrimSpace(sessionID) == "":
		return fmt.Errorf("%w: empty", ErrInvalidSessionID)
	case sessionID == "." || sessionID == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	case strings.HasPrefix(sessionID, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidSessionID, sessionID)
	case strings.ContainsAny(sessionID, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidSessionID, sessionID)
	}
	return nil
}

func (s *Store) track(op string) func() {
	start := time.Now()
	return func() {
		s.metrics.ObserveOp(op, time.Since(start))
	}
}
