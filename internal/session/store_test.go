package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/companion/internal/codec"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T, mutate func(*Config)) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := Config{
		Dir:           filepath.Join(t.TempDir(), "sessions"),
		MaxMessages:   4,
		CacheTTL:      time.Minute,
		CacheSize:     8,
		RoundDuration: time.Minute,
		Now:           clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	st, err := NewStore(cfg)
	require.NoError(t, err)
	return st, clock
}

func reopen(t *testing.T, st *Store, clock *testClock) *Store {
	t.Helper()
	fresh, err := NewStore(Config{
		Dir:           st.dir,
		MaxMessages:   st.maxMessages,
		RoundDuration: st.roundDuration,
		Now:           clock.Now,
	})
	require.NoError(t, err)
	return fresh
}

func msg(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestAppendThenRecent(t *testing.T) {
	st, _ := newTestStore(t, nil)

	require.NoError(t, st.Append("s1", msg(RoleUser, "hi")))
	require.NoError(t, st.Append("s1", msg(RoleAssistant, "hello")))

	got := st.Recent("s1", 1)
	require.Len(t, got, 1)
	assert.Equal(t, RoleAssistant, got[0].Role)
	assert.Equal(t, "hello", got[0].Content)
	assert.True(t, got[0].Timestamp.Valid(), "append stamps the message")
}

func TestAppendKeepsSlidingWindow(t *testing.T) {
	st, clock := newTestStore(t, nil)

	for i := 0; i < 11; i++ {
		require.NoError(t, st.Append("s1", msg(RoleUser, fmt.Sprintf("m%d", i))))
	}
	want := []string{"m7", "m8", "m9", "m10"}
	assert.Equal(t, want, contents(st.Load("s1")))

	// Same answer from a cold cache.
	assert.Equal(t, want, contents(reopen(t, st, clock).Load("s1")))
}

func TestSaveDoesNotTruncate(t *testing.T) {
	st, _ := newTestStore(t, nil)
	var msgs []Message
	for i := 0; i < 6; i++ {
		msgs = append(msgs, msg(RoleUser, fmt.Sprintf("m%d", i)))
	}
	require.NoError(t, st.Save("s1", msgs, nil, nil))
	assert.Len(t, st.Load("s1"), 6)
}

func TestLoadMissingSessionIsEmpty(t *testing.T) {
	st, _ := newTestStore(t, nil)
	got := st.Load("nobody")
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, state := st.Lookup("nobody")
	assert.Equal(t, codec.Absent, state)
}

func TestCorruptDocumentDegradesToFresh(t *testing.T) {
	st, _ := newTestStore(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(st.dir, "broken.json"), []byte("{not json"), 0o600))

	assert.Empty(t, st.Load("broken"))
	_, state := st.Lookup("broken")
	assert.Equal(t, codec.Corrupt, state)

	require.NoError(t, st.Append("broken", msg(RoleUser, "again")))
	doc, state := st.Lookup("broken")
	assert.Equal(t, codec.Found, state)
	assert.Equal(t, []string{"again"}, contents(doc.Messages))
}

func TestOlderDocumentWithoutMonoLoads(t *testing.T) {
	st, _ := newTestStore(t, nil)
	legacy := `{"session_id":"old","created_at":"2025-01-01T10:00:00","last_active":"2025-01-01T10:05:00",
"messages":[{"role":"user","content":"hey","timestamp":"2025-01-01T10:00:00.123456","audio_path":null}]}`
	require.NoError(t, os.WriteFile(filepath.Join(st.dir, "old.json"), []byte(legacy), 0o600))

	doc, state := st.Lookup("old")
	require.Equal(t, codec.Found, state)
	assert.Equal(t, []string{"hey"}, contents(doc.Messages))
	assert.Empty(t, doc.MonoContext)
	assert.NotNil(t, doc.Metadata)
	assert.Empty(t, st.GetMono("old"))
}

func TestSavePreservesCreatedAt(t *testing.T) {
	st, clock := newTestStore(t, nil)
	require.NoError(t, st.Append("s1", msg(RoleUser, "a")))
	first, _ := st.Lookup("s1")

	clock.Advance(5 * time.Minute)
	require.NoError(t, st.Append("s1", msg(RoleUser, "b")))
	second, _ := reopen(t, st, clock).Lookup("s1")

	assert.Equal(t, first.CreatedAt.String(), second.CreatedAt.String())
	created, _ := second.CreatedAt.Time()
	active, _ := second.LastActive.Time()
	assert.Equal(t, 5*time.Minute, active.Sub(created))
}

func TestSaveNilKeepsMetadataAndMono(t *testing.T) {
	st, _ := newTestStore(t, nil)
	require.NoError(t, st.Save("s1", nil, map[string]any{"persona": "warm"}, nil))
	_, err := st.AddMono("s1", "user is driving", 3)
	require.NoError(t, err)

	require.NoError(t, st.Append("s1", msg(RoleUser, "hi")))

	doc, _ := st.Lookup("s1")
	assert.Equal(t, "warm", doc.Metadata["persona"])
	assert.Equal(t, []string{"user is driving"}, st.GetMono("s1"))

	require.NoError(t, st.Save("s1", doc.Messages, map[string]any{}, []MonoItem{}))
	doc, _ = st.Lookup("s1")
	assert.Empty(t, doc.Metadata)
	assert.Empty(t, doc.MonoContext)
}

func TestCacheAndDiskAgree(t *testing.T) {
	st, clock := newTestStore(t, nil)
	require.NoError(t, st.Append("s1", Message{Role: RoleUser, Content: "hi", Metadata: map[string]any{"lang": "en"}}))
	require.NoError(t, st.Append("s1", msg(RoleAssistant, "hello")))

	cached := st.Load("s1")
	st.mu.Lock()
	st.cache.Invalidate("s1")
	st.mu.Unlock()
	fromDisk := st.Load("s1")

	require.Len(t, fromDisk, len(cached))
	for i := range cached {
		assert.Equal(t, cached[i].Content, fromDisk[i].Content)
		assert.Equal(t, cached[i].Role, fromDisk[i].Role)
		assert.Equal(t, cached[i].Timestamp.String(), fromDisk[i].Timestamp.String())
		assert.Equal(t, fmt.Sprint(cached[i].Metadata), fmt.Sprint(fromDisk[i].Metadata))
	}
	assert.Equal(t, contents(cached), contents(reopen(t, st, clock).Load("s1")))
}

func TestStaleCacheRereadsDisk(t *testing.T) {
	st, clock := newTestStore(t, nil)
	require.NoError(t, st.Append("s1", msg(RoleUser, "v1")))

	// Another writer replaces the file behind the cache.
	other := reopen(t, st, clock)
	require.NoError(t, other.Save("s1", []Message{msg(RoleUser, "v2")}, nil, nil))

	assert.Equal(t, []string{"v1"}, contents(st.Load("s1")), "fresh cache entry wins")
	clock.Advance(time.Minute)
	assert.Equal(t, []string{"v2"}, contents(st.Load("s1")), "stale entry is re-read")
}

func TestLoadReturnsCopies(t *testing.T) {
	st, _ := newTestStore(t, nil)
	require.NoError(t, st.Append("s1", msg(RoleUser, "original")))

	got := st.Load("s1")
	got[0].Content = "mutated"
	assert.Equal(t, "original", st.Load("s1")[0].Content)
}

func TestClearIsIdempotent(t *testing.T) {
	st, _ := newTestStore(t, nil)
	require.NoError(t, st.Append("s1", msg(RoleUser, "hi")))

	require.NoError(t, st.Clear("s1"))
	require.NoError(t, st.Clear("s1"))
	assert.Empty(t, st.Load("s1"))
	_, err := os.Stat(filepath.Join(st.dir, "s1.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidSessionIDs(t *testing.T) {
	st, _ := newTestStore(t, nil)
	for _, id := range []string{"", "  ", "..", "../escape", `a\b`, ".hidden"} {
		err := st.Append(id, msg(RoleUser, "x"))
		assert.ErrorIs(t, err, ErrInvalidSessionID, "id %q", id)
		assert.ErrorIs(t, st.Clear(id), ErrInvalidSessionID, "id %q", id)
		assert.Empty(t, st.Load(id))
	}
}

func TestListSessionsOrderAndLimit(t *testing.T) {
	st, clock := newTestStore(t, nil)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.Append(id, msg(RoleUser, "hi "+id)))
		clock.Advance(time.Second)
	}
	require.NoError(t, st.Append("a", msg(RoleAssistant, "back")))
	require.NoError(t, os.WriteFile(filepath.Join(st.dir, "junk.json"), []byte("]["), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(st.dir, "notes.txt"), []byte("ignore"), 0o600))

	all, err := st.ListSessions(0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.SessionID
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)
	assert.Equal(t, 2, all[0].MessageCount)

	top, err := st.ListSessions(2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	stats, err := st.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SessionCount)
	assert.Equal(t, 4, stats.TotalMessages)
	assert.Equal(t, 8, stats.CacheCapacity)
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	st, _ := newTestStore(t, func(c *Config) { c.MaxMessages = 200 })

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, st.Append("shared", msg(RoleUser, fmt.Sprintf("w%d-%d", w, i))))
			}
		}(w)
	}
	wg.Wait()
	assert.Len(t, st.Load("shared"), 80)
}

func TestWriteFailureSurfaces(t *testing.T) {
	st, _ := newTestStore(t, nil)
	require.NoError(t, st.Append("s1", msg(RoleUser, "hi")))

	// Replace the store directory with a file so writes cannot land.
	require.NoError(t, os.RemoveAll(st.dir))
	require.NoError(t, os.WriteFile(st.dir, []byte("x"), 0o600))

	err := st.Append("s2", msg(RoleUser, "lost"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidSessionID)
}
