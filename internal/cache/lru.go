// Package cache holds the bounded in-memory snapshot cache shared by the
// session and event stores.
package cache

import (
	"container/list"
	"time"
)

// LRU maps keys to document snapshots with a fixed capacity and a freshness
// window. It is not safe for concurrent use; the owning store serializes
// access behind its own lock.
type LRU[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	order *list.List
	items map[K]*list.Element
}

type entry[K comparable, V any] struct {
	key         K
	value       V
	refreshedAt time.Time
}

// New returns a cache holding at most capacity entries, each considered fresh
// for ttl after its last Put. A nil clock defaults to time.Now.
func New[K comparable, V any](capacity int, ttl time.Duration, now func() time.Time) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	if now == nil {
		now = time.Now
	}
	return &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
	}
}

// Get returns the snapshot for key when present and fresh. A stale entry is
// dropped and reported as a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.ttl > 0 && c.now().Sub(e.refreshedAt) >= c.ttl {
		c.removeElement(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Put inserts or overwrites key, marks it most recently used and evicts the
// least recently used entry when over capacity. It reports the evicted key.
func (c *LRU[K, V]) Put(key K, value V) (evicted K, didEvict bool) {
	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.refreshedAt = now
		c.order.MoveToFront(el)
		return evicted, false
	}

	el := c.order.PushFront(&entry[K, V]{key: key, value: value, refreshedAt: now})
	c.items[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			evicted = oldest.Value.(*entry[K, V]).key
			c.removeElement(oldest)
			return evicted, true
		}
	}
	return evicted, false
}

// Invalidate removes key if present.
func (c *LRU[K, V]) Invalidate(key K) {
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

func (c *LRU[K, V]) Len() int {
	return c.order.Len()
}

func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

func (c *LRU[K, V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
