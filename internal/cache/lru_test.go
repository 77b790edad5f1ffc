package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func TestLRUGetPut(t *testing.T) {
	c := New[string, int](2, time.Minute, newClock().Now)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", 1)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	c.Put("a", 2)
	got, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, c.Len())
}

func TestLRUEvictsLeastRecentlyTouched(t *testing.T) {
	const capacity = 4
	c := New[string, int](capacity, time.Hour, newClock().Now)
	for i := 0; i < capacity; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}

	// k0 becomes most recent, so k1 is now the oldest.
	_, ok := c.Get("k0")
	require.True(t, ok)

	evicted, didEvict := c.Put("k4", 4)
	require.True(t, didEvict)
	assert.Equal(t, "k1", evicted)

	assert.Equal(t, capacity, c.Len())
	_, ok = c.Get("k1")
	assert.False(t, ok)
	for _, key := range []string{"k0", "k2", "k3", "k4"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "expected %s to survive", key)
	}
}

func TestLRUFreshnessWindow(t *testing.T) {
	clock := newClock()
	c := New[string, string](8, 10*time.Second, clock.Now)
	c.Put("s", "doc")

	clock.Advance(9 * time.Second)
	_, ok := c.Get("s")
	assert.True(t, ok, "entry should still be fresh")

	clock.Advance(time.Second)
	_, ok = c.Get("s")
	assert.False(t, ok, "entry at exactly ttl is stale")
	assert.Zero(t, c.Len(), "stale entry is dropped on read")
}

func TestLRUGetDoesNotRefreshFreshness(t *testing.T) {
	clock := newClock()
	c := New[string, int](2, 10*time.Second, clock.Now)
	c.Put("s", 1)

	clock.Advance(6 * time.Second)
	_, ok := c.Get("s")
	require.True(t, ok)

	clock.Advance(6 * time.Second)
	_, ok = c.Get("s")
	assert.False(t, ok)
}

func TestLRUInvalidate(t *testing.T) {
	c := New[string, int](2, time.Minute, nil)
	c.Invalidate("missing")

	c.Put("a", 1)
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestLRUGetTouchesRecency(t *testing.T) {
	c := New[string, int](3, 0, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a")

	evicted, didEvict := c.Put("d", 4)
	require.True(t, didEvict)
	assert.Equal(t, "b", evicted)
	assert.Equal(t, 3, c.Capacity())
}
