// Package cache implements the bounded, recency-ordered map used for both
// the Scheduler's RAM tier and its GPU-cache mirror. It is generic over any
// "named tile" — an entity that can report its own tileid.ID — the same
// shape the scheduler's quad and GPU-cache-info types share.
package cache

import (
	"container/list"
	"sync"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

// NamedTile is anything the cache can key by tileid.ID. TileQuad and
// GpuCacheInfo both implement it.
type NamedTile interface {
	TileID() tileid.ID
}

type entry[T NamedTile] struct {
	id    tileid.ID
	value T
}

// Cache is a bounded map[tileid.ID]T with most-recent-first iteration order,
// used wherever spec.md's Cache<T> appears: the RAM quad cache and the
// GPU-cache-info mirror. All methods are safe for concurrent use, though in
// this scheduler only the pipeline goroutine ever touches a given instance.
type Cache[T NamedTile] struct {
	mu    sync.Mutex
	items map[tileid.ID]*list.Element
	order *list.List // front = most recently touched
	limit int
}

// New creates a Cache with no enforced limit (callers purge explicitly via
// Purge, matching the Scheduler's own purge-timer debounce).
func New[T NamedTile]() *Cache[T] {
	return &Cache[T]{
		items: make(map[tileid.ID]*list.Element),
		order: list.New(),
	}
}

// Insert adds or replaces the entry for t.TileID(), moving it to the front
// of recency order.
func (c *Cache[T]) Insert(t T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := t.TileID()
	if el, ok := c.items[id]; ok {
		el.Value.(*entry[T]).value = t
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&entry[T]{id: id, value: t})
	c.items[id] = el
}

// Contains reports whether id is present, without affecting recency.
func (c *Cache[T]) Contains(id tileid.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[id]
	return ok
}

// PeekAt returns the value stored for id without updating its recency.
func (c *Cache[T]) PeekAt(id tileid.ID) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return el.Value.(*entry[T]).value, true
}

// Touch moves an existing entry to the front of recency order without
// changing its value, and reports whether it was present. This is how the
// Scheduler promotes recency for entries it includes in the GPU working set
// (spec.md §4.7 step 4: "take the first K entries ... and touch them").
func (c *Cache[T]) Touch(id tileid.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		return false
	}
	c.order.MoveToFront(el)
	return true
}

// Remove deletes id from the cache, if present.
func (c *Cache[T]) Remove(id tileid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.items, id)
}

// Visit iterates entries most-recent-first, stopping early if fn returns
// false. fn must not call back into the Cache.
func (c *Cache[T]) Visit(fn func(T) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; el = el.Next() {
		if !fn(el.Value.(*entry[T]).value) {
			return
		}
	}
}

// Purge drops least-recently-touched entries until at most limit remain,
// and returns the IDs it dropped.
func (c *Cache[T]) Purge(limit int) []tileid.ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []tileid.ID
	for c.order.Len() > limit {
		el := c.order.Back()
		e := el.Value.(*entry[T])
		c.order.Remove(el)
		delete(c.items, e.id)
		removed = append(removed, e.id)
	}
	return removed
}

// Len returns the number of entries currently cached.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
